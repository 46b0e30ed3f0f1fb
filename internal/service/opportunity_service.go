// Package service turns scanner events into durable and user-visible side
// effects: history, pub/sub, the Kafka stream and chat alerts.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// EventStream is the durable Redis stream every event is appended to.
const EventStream = "stream:events"

const (
	defaultRingSize = 500
	sideEffectTTL   = 5 * time.Second
)

// ErrNoEventStream is returned by Events when no bus is configured.
var ErrNoEventStream = errors.New("event stream not configured")

// Channel returns the pub/sub channel for an event kind.
func Channel(kind domain.EventKind) string {
	return "ch:" + string(kind)
}

// Notifier delivers an alert to chat channels.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Broadcaster pushes an encoded event to in-process listeners.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// Config tunes the OpportunityService.
type Config struct {
	RingSize int
	DedupTTL time.Duration
}

// OpportunityService implements domain.Sink. Every collaborator is optional;
// a failure in one is logged and never blocks the others.
type OpportunityService struct {
	store     domain.OpportunityStore
	bus       domain.SignalBus
	publisher domain.Publisher
	notifier  Notifier
	broadcast Broadcaster
	dedup     *Dedup
	recent    *ring
	logger    *slog.Logger
}

var _ domain.Sink = (*OpportunityService)(nil)

// Option configures an OpportunityService.
type Option func(*OpportunityService)

// WithStore persists opportunities.
func WithStore(s domain.OpportunityStore) Option {
	return func(o *OpportunityService) { o.store = s }
}

// WithBus publishes every event on its kind channel and appends it to
// EventStream.
func WithBus(b domain.SignalBus) Option {
	return func(o *OpportunityService) { o.bus = b }
}

// WithPublisher streams opportunity and spread events.
func WithPublisher(p domain.Publisher) Option {
	return func(o *OpportunityService) { o.publisher = p }
}

// WithNotifier sends chat alerts.
func WithNotifier(n Notifier) Option {
	return func(o *OpportunityService) { o.notifier = n }
}

// WithBroadcaster pushes events to in-process listeners.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *OpportunityService) { o.broadcast = b }
}

// NewOpportunityService creates the service.
func NewOpportunityService(cfg Config, logger *slog.Logger, opts ...Option) *OpportunityService {
	size := cfg.RingSize
	if size <= 0 {
		size = defaultRingSize
	}
	s := &OpportunityService{
		dedup:  NewDedup(cfg.DedupTTL),
		recent: newRing(size),
		logger: logger.With(slog.String("component", "opportunity_service")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Emit records one event.
func (s *OpportunityService) Emit(ctx context.Context, evt domain.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTTL)
	defer cancel()

	s.log(ctx, evt)

	if evt.Kind == domain.EventOpportunity && evt.Opportunity != nil {
		s.recent.push(*evt.Opportunity)
		if s.store != nil {
			if err := s.store.Insert(ctx, *evt.Opportunity); err != nil {
				s.logger.WarnContext(ctx, "store opportunity failed",
					slog.String("id", evt.Opportunity.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode event failed", slog.String("error", err.Error()))
		return
	}

	channel := Channel(evt.Kind)
	if s.broadcast != nil {
		s.broadcast.Broadcast(channel, payload)
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, channel, payload); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
			s.logger.WarnContext(ctx, "append event failed", slog.String("error", err.Error()))
		}
	}
	if s.publisher != nil && (evt.Kind == domain.EventOpportunity || evt.Kind == domain.EventSpread) {
		if err := s.publisher.Publish(ctx, evt.SessionID, payload); err != nil {
			s.logger.WarnContext(ctx, "stream event failed", slog.String("error", err.Error()))
		}
	}

	s.alert(ctx, evt)
}

func (s *OpportunityService) log(ctx context.Context, evt domain.Event) {
	attrs := []any{slog.String("session", evt.SessionID)}
	switch evt.Kind {
	case domain.EventOpportunity:
		if o := evt.Opportunity; o != nil {
			s.logger.InfoContext(ctx, "opportunity",
				append(attrs,
					slog.String("exchange", o.Exchange),
					slog.String("path", o.Path),
					slog.Float64("profit", o.Profit),
					slog.Float64("profit_pct", o.ProfitPct()),
				)...,
			)
		}
	case domain.EventSpread:
		if sp := evt.Spread; sp != nil {
			level := slog.LevelDebug
			if sp.Profitable {
				level = slog.LevelInfo
			}
			s.logger.Log(ctx, level, "spread",
				append(attrs,
					slog.String("symbol", sp.Symbol),
					slog.String("buy", sp.BuyOn),
					slog.String("sell", sp.SellOn),
					slog.Float64("profit", sp.Profit),
				)...,
			)
		}
	case domain.EventError:
		s.logger.ErrorContext(ctx, evt.Message, attrs...)
	case domain.EventState:
		s.logger.DebugContext(ctx, "state", append(attrs, slog.String("state", evt.State))...)
	default:
		s.logger.InfoContext(ctx, evt.Message, attrs...)
	}
}

// alert forwards opportunities, profitable spreads and errors to the
// notifier. Repeats of the same walk or venue pair inside the dedup window
// are dropped.
func (s *OpportunityService) alert(ctx context.Context, evt domain.Event) {
	if s.notifier == nil {
		return
	}
	var key, title, body string
	switch evt.Kind {
	case domain.EventOpportunity:
		o := evt.Opportunity
		if o == nil {
			return
		}
		key = o.Exchange + "|" + o.Triangle.Key()
		title = fmt.Sprintf("Triangle on %s: %.4f%%", o.Exchange, o.ProfitPct())
		body = o.Summary()
	case domain.EventSpread:
		sp := evt.Spread
		if sp == nil || !sp.Profitable {
			return
		}
		key = sp.Symbol + "|" + sp.BuyOn + "|" + sp.SellOn
		title = fmt.Sprintf("Spread on %s", sp.Symbol)
		body = fmt.Sprintf("buy on %s at %g, sell on %s at %g, profit %.6f",
			sp.BuyOn, sp.BuyPrice, sp.SellOn, sp.SellPrice, sp.Profit)
	case domain.EventError:
		key = "error|" + evt.SessionID + "|" + evt.Message
		title = "Scan failed"
		body = evt.Message
	default:
		return
	}
	if s.dedup.IsDuplicate(key) {
		return
	}
	if err := s.notifier.Notify(ctx, string(evt.Kind), title, body); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

// ListRecent returns the newest opportunities, from the store when one is
// configured and from memory otherwise.
func (s *OpportunityService) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if s.store == nil {
		return s.recent.recent(limit), nil
	}
	opps, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return opps, nil
}

// Events reads the durable event stream after lastID. Use "0" to read from
// the start.
func (s *OpportunityService) Events(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.bus == nil {
		return nil, ErrNoEventStream
	}
	if lastID == "" {
		lastID = "0"
	}
	msgs, err := s.bus.StreamRead(ctx, EventStream, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: read events: %w", err)
	}
	return msgs, nil
}

// RunCleanup purges expired dedup entries every interval until ctx ends.
func (s *OpportunityService) RunCleanup(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.dedup.Cleanup()
		}
	}
}
