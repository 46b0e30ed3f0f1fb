// Package notify fans scanner alerts out to chat channels (Telegram, Discord).
// Alerts can be filtered by event kind.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Sender delivers one alert to a chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string // e.g. "telegram"
}

// Notifier delivers alerts to every configured Sender in parallel.
type Notifier struct {
	senders []Sender
	kinds   map[string]struct{} // empty means every kind
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Notify only forwards event kinds listed in
// events; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	kinds := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			kinds[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		kinds:   kinds,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

func (n *Notifier) wants(event string) bool {
	if len(n.kinds) == 0 {
		return true
	}
	_, ok := n.kinds[event]
	return ok
}

// Notify sends the alert when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.wants(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends the alert regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch waits for every sender. One failing sender does not stop the
// others; all failures are joined in sender order.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	errs := make([]error, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return
			}
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
