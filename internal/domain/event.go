package domain

import (
	"context"
	"time"
)

// EventKind classifies an Event.
type EventKind string

const (
	EventStatus      EventKind = "status"
	EventState       EventKind = "state"
	EventOpportunity EventKind = "opportunity"
	EventSpread      EventKind = "spread"
	EventError       EventKind = "error"
)

// Event is one item delivered to a Sink. Exactly one of the payload fields
// is set for opportunity and spread events.
type Event struct {
	Kind        EventKind          `json:"kind"`
	SessionID   string             `json:"session_id,omitempty"`
	Message     string             `json:"message,omitempty"`
	State       string             `json:"state,omitempty"`
	Opportunity *Opportunity       `json:"opportunity,omitempty"`
	Spread      *SpreadOpportunity `json:"spread,omitempty"`
	At          time.Time          `json:"at"`
}

// Sink receives status lines and results. Implementations must be safe for
// concurrent use; events from one session arrive in emission order.
type Sink interface {
	Emit(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, evt Event) { f(ctx, evt) }

// Status builds a status event.
func Status(sessionID, msg string) Event {
	return Event{Kind: EventStatus, SessionID: sessionID, Message: msg, At: time.Now().UTC()}
}
