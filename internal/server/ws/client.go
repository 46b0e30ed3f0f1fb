package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs *subscriptions
}

// subscriptions is the channel filter of one client. An entry ending in
// "*" matches every channel with that prefix.
type subscriptions struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func newSubscriptions(channels []string) *subscriptions {
	s := &subscriptions{set: make(map[string]struct{}, len(channels))}
	for _, ch := range channels {
		s.set[ch] = struct{}{}
	}
	return s
}

func (s *subscriptions) matches(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.set[channel]; ok {
		return true
	}
	for sub := range s.set {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// subscribeMsg is a client request. Both {"action":"subscribe","channels":[...]}
// and the shorthand {"subscribe":[...],"unsubscribe":[...]} are accepted.
type subscribeMsg struct {
	Action      string   `json:"action"`
	Channels    []string `json:"channels"`
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

func (m subscribeMsg) empty() bool {
	return m.Action == "" && len(m.Channels) == 0 && len(m.Subscribe) == 0 && len(m.Unsubscribe) == 0
}

func (s *subscriptions) apply(msg subscribeMsg) {
	add, drop := msg.Subscribe, msg.Unsubscribe
	switch msg.Action {
	case "subscribe":
		add = append(add, msg.Channels...)
	case "unsubscribe":
		drop = append(drop, msg.Channels...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range add {
		s.set[ch] = struct{}{}
	}
	for _, ch := range drop {
		delete(s.set, ch)
	}
}

// readPump applies subscription requests until the connection fails.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(data, &msg) == nil && !msg.empty() {
			c.subs.apply(msg)
		}
	}
}

// writePump writes queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
