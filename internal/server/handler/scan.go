package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/scanner"
)

const maxBodyBytes = 1 << 16

// ScanController is the part of the scanner the API drives.
type ScanController interface {
	Start(ctx context.Context, p scanner.Params) (string, error)
	Stop() error
	Status() scanner.Status
}

// ParamsResolver fills in anything a start request left out, such as stored
// credentials.
type ParamsResolver func(ctx context.Context, p *scanner.Params) error

// ScanHandler starts, stops and reports on triangular scan sessions.
type ScanHandler struct {
	scan    ScanController
	resolve ParamsResolver
	logger  *slog.Logger
}

// NewScanHandler creates a ScanHandler. resolve may be nil.
func NewScanHandler(scan ScanController, resolve ParamsResolver, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{scan: scan, resolve: resolve, logger: logHandler(logger, "scan")}
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

// Start launches a session from the JSON-encoded params in the body.
// POST /api/scan/start
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var p scanner.Params
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if p.Exchange == "" {
		writeError(w, http.StatusBadRequest, "exchange is required")
		return
	}
	if h.resolve != nil {
		if err := h.resolve(r.Context(), &p); err != nil {
			h.logger.ErrorContext(r.Context(), "resolve params failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to resolve credentials")
			return
		}
	}

	id, err := h.scan.Start(r.Context(), p)
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "scan started",
		slog.String("session_id", id),
		slog.String("exchange", p.Exchange),
	)
	writeJSON(w, http.StatusAccepted, startResponse{SessionID: id})
}

// Stop ends the running session and returns once it has unwound.
// POST /api/scan/stop
func (h *ScanHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.scan.Stop(); err != nil {
		if errors.Is(err, domain.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "stop failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to stop scan")
		return
	}
	writeJSON(w, http.StatusOK, h.scan.Status())
}

// Status reports the current or last session.
// GET /api/scan/status
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scan.Status())
}
