package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/service"
)

// OpportunityService defines the methods the opportunity handler requires.
type OpportunityService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error)
	Events(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// OpportunityHandler serves opportunity history and the event stream.
type OpportunityHandler struct {
	svc    OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(svc OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logHandler(logger, "opportunity")}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ListRecent returns the most recent triangular opportunities.
// GET /api/opportunities/recent?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit, maxLimit)

	opps, err := h.svc.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}

type eventEntry struct {
	ID    string       `json:"id"`
	Event domain.Event `json:"event"`
}

type listEventsResponse struct {
	Events []eventEntry `json:"events"`
	Next   string       `json:"next,omitempty"`
}

// ListEvents pages through the durable event stream.
// GET /api/events?after=0&count=100
func (h *OpportunityHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	count := queryInt(r, "count", defaultLimit, maxLimit)

	msgs, err := h.svc.Events(r.Context(), after, count)
	if errors.Is(err, service.ErrNoEventStream) {
		writeError(w, http.StatusNotImplemented, "event stream not configured")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	resp := listEventsResponse{Events: make([]eventEntry, 0, len(msgs))}
	for _, m := range msgs {
		var evt domain.Event
		if err := json.Unmarshal(m.Payload, &evt); err != nil {
			h.logger.WarnContext(r.Context(), "skipping undecodable event", slog.String("id", m.ID))
			continue
		}
		resp.Events = append(resp.Events, eventEntry{ID: m.ID, Event: evt})
	}
	if len(msgs) > 0 {
		resp.Next = msgs[len(msgs)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}
