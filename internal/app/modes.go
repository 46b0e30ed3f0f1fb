package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/triarb/internal/blob/s3"
	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/scanner"
	"github.com/alanyoungcy/triarb/internal/server"
	"github.com/alanyoungcy/triarb/internal/server/handler"
	"github.com/alanyoungcy/triarb/internal/server/ws"
	"github.com/alanyoungcy/triarb/internal/service"
	"github.com/alanyoungcy/triarb/internal/spotarb"
)

const dedupCleanupInterval = time.Minute

// ScanMode runs one triangular session for the configured exchange until
// ctx is cancelled or the session fails to initialise.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	params, err := a.scanParams(ctx, deps)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	svc := a.buildService(deps, nil)
	sc := a.newScanner(deps, svc)

	g.Go(func() error {
		defer cancel()
		return sc.Run(gctx, params)
	})
	g.Go(func() error {
		return svc.RunCleanup(gctx, dedupCleanupInterval)
	})

	return g.Wait()
}

// SpotMode runs the cross-exchange spread scanner until ctx is cancelled.
func (a *App) SpotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting spot mode",
		slog.Any("exchanges", a.cfg.Spot.Exchanges),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	svc := a.buildService(deps, nil)
	spot, err := a.newSpotScanner(gctx, deps, svc)
	if err != nil {
		return err
	}

	g.Go(func() error {
		defer cancel()
		return spot.Run(gctx)
	})
	g.Go(func() error {
		return svc.RunCleanup(gctx, dedupCleanupInterval)
	})

	return g.Wait()
}

// ServerMode serves the HTTP API only. Sessions are started and stopped
// over HTTP.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svc, _ := a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		return svc.RunCleanup(ctx, dedupCleanupInterval)
	})

	return g.Wait()
}

// FullMode serves the HTTP API and runs the autostarted scan, the spot
// scanner and the archiver when each is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svc, sc := a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		return svc.RunCleanup(ctx, dedupCleanupInterval)
	})

	if a.cfg.Scan.Autostart {
		params, err := a.scanParams(ctx, deps)
		if err != nil {
			return err
		}
		id, err := sc.Start(ctx, params)
		if err != nil {
			return fmt.Errorf("autostart scan: %w", err)
		}
		a.logger.InfoContext(ctx, "scan autostarted",
			slog.String("session_id", id),
			slog.String("exchange", params.Exchange),
		)
	}

	if len(a.cfg.Spot.Exchanges) >= 2 {
		spot, err := a.newSpotScanner(ctx, deps, svc)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return spot.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps.Archiver)
		})
	}

	return g.Wait()
}

// startHTTPServer wires the hub, handlers and server into g. The returned
// scanner is stopped when ctx is done.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*service.OpportunityService, *scanner.Scanner) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	svc := a.buildService(deps, hub)
	sc := a.newScanner(deps, svc)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:        handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Opportunities: handler.NewOpportunityHandler(svc, a.logger),
		Scan:          handler.NewScanHandler(sc, a.paramsResolver(deps), a.logger),
	}, hub, deps.Limiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		if err := sc.Stop(); err != nil && !errors.Is(err, domain.ErrNotRunning) {
			a.logger.Warn("stop scan", slog.String("error", err.Error()))
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})

	return svc, sc
}

// buildService assembles the event sink from whatever backends are wired.
// hub receives events directly only when there is no Redis bus for it to
// subscribe to.
func (a *App) buildService(deps *Dependencies, hub *ws.Hub) *service.OpportunityService {
	var opts []service.Option
	if deps.Notifier.Enabled() {
		opts = append(opts, service.WithNotifier(deps.Notifier))
	}
	if deps.Opportunities != nil {
		opts = append(opts, service.WithStore(deps.Opportunities))
	}
	if deps.Bus != nil {
		opts = append(opts, service.WithBus(deps.Bus))
	} else if hub != nil {
		opts = append(opts, service.WithBroadcaster(hub))
	}
	if deps.Publisher != nil {
		opts = append(opts, service.WithPublisher(deps.Publisher))
	}
	return service.NewOpportunityService(service.Config{
		DedupTTL: a.cfg.Notify.DedupTTL.Duration,
	}, a.logger, opts...)
}

func (a *App) newScanner(deps *Dependencies, sink domain.Sink) *scanner.Scanner {
	opts := []scanner.Option{
		scanner.WithSink(sink),
		scanner.WithLogger(a.logger),
	}
	if deps.Mirror != nil {
		opts = append(opts, scanner.WithMirror(deps.Mirror))
	}
	return scanner.New(configuredOpener{reg: deps.Exchanges, cfg: a.cfg}, a.scannerConfig(), opts...)
}

// scannerConfig overlays the configured values on the scanner defaults.
func (a *App) scannerConfig() scanner.Config {
	cfg := scanner.DefaultConfig()
	if a.cfg.Scan.FeeRate > 0 {
		cfg.FeeRate = a.cfg.Scan.FeeRate
	}
	if d := a.cfg.Scan.Interval.Duration; d > 0 {
		cfg.Interval = d
	}
	cfg.RankByProfit = a.cfg.Scan.RankByProfit
	cfg.AllEligibleStarts = a.cfg.Scan.AllEligibleStarts
	if d := a.cfg.Fetch.CacheTTL.Duration; d > 0 {
		cfg.CacheTTL = d
	}
	if a.cfg.Exchange.Depth > 0 {
		cfg.Depth = a.cfg.Exchange.Depth
	}
	if d := a.cfg.Fetch.Throttle.Duration; d > 0 {
		cfg.Fetch.Throttle = d
	}
	if a.cfg.Fetch.Concurrency > 0 {
		cfg.Fetch.Concurrency = a.cfg.Fetch.Concurrency
	}
	if a.cfg.Fetch.Retries > 0 {
		cfg.Fetch.Retries = a.cfg.Fetch.Retries
	}
	if d := a.cfg.Fetch.Backoff.Duration; d > 0 {
		cfg.Fetch.Backoff = d
	}
	return cfg
}

// scanParams builds the session parameters of the configured exchange.
func (a *App) scanParams(ctx context.Context, deps *Dependencies) (scanner.Params, error) {
	p := scanner.Params{
		Exchange:       a.cfg.Exchange.ID,
		Whitelist:      a.cfg.Scan.Whitelist,
		Blacklist:      a.cfg.Scan.Blacklist,
		MinTradeVolume: a.cfg.Scan.MinTradeVolume,
		Sandbox:        a.cfg.Exchange.Sandbox,
	}
	if err := a.paramsResolver(deps)(ctx, &p); err != nil {
		return scanner.Params{}, err
	}
	return p, nil
}

// paramsResolver fills credentials that an HTTP start request left out.
func (a *App) paramsResolver(deps *Dependencies) handler.ParamsResolver {
	return func(ctx context.Context, p *scanner.Params) error {
		creds, err := resolveCredentials(ctx, a.cfg, deps.Credentials, p.Exchange, p.Credentials)
		if err != nil {
			return err
		}
		p.Credentials = creds
		return nil
	}
}

func (a *App) newSpotScanner(ctx context.Context, deps *Dependencies, sink domain.Sink) (*spotarb.Scanner, error) {
	creds := make(map[string]domain.Credentials, len(a.cfg.Spot.Exchanges))
	for _, id := range a.cfg.Spot.Exchanges {
		c, err := resolveCredentials(ctx, a.cfg, deps.Credentials, id, domain.Credentials{})
		if err != nil {
			return nil, err
		}
		creds[id] = c
	}
	return spotarb.New(configuredOpener{reg: deps.Exchanges, cfg: a.cfg}, spotarb.Config{
		Exchanges:   a.cfg.Spot.Exchanges,
		Credentials: creds,
		Symbols:     a.cfg.Spot.Symbols,
		OrderSizes:  a.cfg.Spot.OrderSizes,
		MinProfit:   a.cfg.Spot.MinProfit,
		FeeRate:     a.cfg.Scan.FeeRate,
		Interval:    a.cfg.Spot.Interval.Duration,
		Sandbox:     a.cfg.Exchange.Sandbox,
	}, spotarb.WithSink(sink), spotarb.WithLogger(a.logger)), nil
}

// runArchiver moves opportunities older than the retention window to S3
// every archive interval.
func (a *App) runArchiver(ctx context.Context, archiver *s3blob.OpportunityArchiver) error {
	interval := a.cfg.S3.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.S3.RetentionDays),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetentionDays)
			n, err := archiver.ArchiveBefore(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.Time("cutoff", cutoff),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "archive run complete",
				slog.Time("cutoff", cutoff),
				slog.Int64("archived", n),
			)
		}
	}
}
