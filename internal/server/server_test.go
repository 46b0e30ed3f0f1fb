package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
	"github.com/alanyoungcy/triarb/internal/exchange/memory"
	"github.com/alanyoungcy/triarb/internal/scanner"
	"github.com/alanyoungcy/triarb/internal/server/handler"
	"github.com/alanyoungcy/triarb/internal/service"
)

type paperOpener struct{}

func (paperOpener) Open(string, domain.Credentials, exchange.Options) (domain.Exchange, error) {
	return memory.Paper(), nil
}

func testHandler(t *testing.T, apiKey string) (http.Handler, *scanner.Scanner) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewOpportunityService(service.Config{}, logger)
	cfg := scanner.DefaultConfig()
	cfg.Interval = time.Hour
	sc := scanner.New(paperOpener{}, cfg, scanner.WithSink(svc), scanner.WithLogger(logger))

	h := NewHandler(Config{APIKey: apiKey}, Handlers{
		Health:        handler.NewHealthHandler("server", logger),
		Opportunities: handler.NewOpportunityHandler(svc, logger),
		Scan:          handler.NewScanHandler(sc, nil, logger),
	}, nil, nil, logger)
	return h, sc
}

func do(h http.Handler, method, target, body, key string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	h, _ := testHandler(t, "k")
	if rec := do(h, http.MethodGet, "/api/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/scan/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without key = %d", rec.Code)
	}
}

func TestScanLifecycleOverHTTP(t *testing.T) {
	h, sc := testHandler(t, "k")

	rec := do(h, http.MethodPost, "/api/scan/start", `{"exchange":"paper","min_trade_volume":1}`, "k")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for sc.Status().Ticks == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no tick completed, status %+v", sc.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = do(h, http.MethodGet, "/api/opportunities/recent?limit=5", "", "k")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "USDT->ETH->BTC->USDT") {
		t.Fatalf("recent = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodPost, "/api/scan/stop", "", "k")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"state":"stopped"`) {
		t.Fatalf("stop = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(h, http.MethodPost, "/api/scan/stop", "", "k"); rec.Code != http.StatusConflict {
		t.Fatalf("second stop = %d", rec.Code)
	}
}
