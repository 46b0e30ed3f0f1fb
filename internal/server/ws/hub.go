// Package ws streams scanner events to browser and CLI clients over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/triarb/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay below pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
	queueSize      = 256
)

// defaultChannels are the event channels every client starts subscribed to.
var defaultChannels = []string{
	"ch:status",
	"ch:state",
	"ch:opportunity",
	"ch:spread",
	"ch:error",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

type envelope struct {
	channel string
	data    []byte
}

// Hub relays scanner events to the clients subscribed to their channel.
// Events arrive from the Redis signal bus when one is configured and
// through Broadcast otherwise.
type Hub struct {
	bus    domain.SignalBus
	queue  chan envelope
	done   chan struct{}
	logger *slog.Logger

	mode      string
	startedAt time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub. bus may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		queue:     make(chan envelope, queueSize),
		done:      make(chan struct{}),
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: startedAt,
		clients:   make(map[*client]struct{}),
	}
}

// Broadcast queues data for the clients subscribed to channel. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) Broadcast(channel string, data []byte) {
	select {
	case h.queue <- envelope{channel: channel, data: data}:
	default:
		h.logger.Warn("ws: queue full, dropping message", slog.String("channel", channel))
	}
}

// Run fans queued events out to clients until ctx is cancelled. All
// connections are closed on return.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range defaultChannels {
			go h.relay(ctx, ch)
		}
	}
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-h.queue:
			h.fanOut(env)
		}
	}
}

func (h *Hub) fanOut(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subs.matches(env.channel) {
			continue
		}
		select {
		case c.send <- env.data:
		default:
			h.logger.Warn("ws: slow client, dropping message", slog.String("channel", env.channel))
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	close(h.done)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// relay forwards one Redis channel into the queue.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.queue <- envelope{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("ws: client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("ws: client disconnected", slog.Int("clients", len(h.clients)))
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: newSubscriptions(defaultChannels),
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	c.send <- h.hello()

	go c.writePump()
	go c.readPump()
}

type helloPayload struct {
	Mode          string   `json:"mode"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Channels      []string `json:"channels"`
}

// hello is the first frame a client receives.
func (h *Hub) hello() []byte {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	msg, _ := json.Marshal(struct {
		Type    string       `json:"type"`
		Payload helloPayload `json:"payload"`
	}{
		Type: "hello",
		Payload: helloPayload{
			Mode:          h.mode,
			UptimeSeconds: uptime,
			Channels:      defaultChannels,
		},
	})
	return msg
}
