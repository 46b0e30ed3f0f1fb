// Package fetcher retrieves order books through a shared cache, a blanket
// throttle, a bounded concurrency gate and retry with exponential backoff.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Cache is the subset of the order book cache the fetcher needs.
type Cache interface {
	Get(pair domain.TradingPair) (domain.OrderBookSnapshot, bool)
	Put(pair domain.TradingPair, snap domain.OrderBookSnapshot, ts time.Time)
}

// Config holds the pacing and retry parameters.
type Config struct {
	Throttle    time.Duration
	Concurrency int
	Retries     int
	Backoff     time.Duration
}

// DefaultConfig returns 100ms throttle, 10 concurrent requests, 3 attempts
// and a 1s initial backoff.
func DefaultConfig() Config {
	return Config{
		Throttle:    100 * time.Millisecond,
		Concurrency: 10,
		Retries:     3,
		Backoff:     time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Fetcher is owned by one scan session. Its gate and in-flight set are not
// shared across sessions.
type Fetcher struct {
	src       domain.OrderBookSource
	cache     Cache
	gate      *semaphore.Weighted
	cfg       Config
	sink      domain.Sink
	sessionID string
	logger    *slog.Logger
	now       func() time.Time
	sleep     Sleeper

	mu       sync.Mutex
	inflight map[uint64]context.CancelFunc
	nextID   uint64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSink emits one status line per attempt to sink.
func WithSink(sink domain.Sink, sessionID string) Option {
	return func(f *Fetcher) {
		f.sink = sink
		f.sessionID = sessionID
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l.With(slog.String("component", "fetcher")) }
}

// WithClock replaces time.Now for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithSleeper replaces the throttle and backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// New creates a Fetcher reading from src through cache.
func New(src domain.OrderBookSource, cache Cache, cfg Config, opts ...Option) *Fetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	f := &Fetcher{
		src:      src,
		cache:    cache,
		gate:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		cfg:      cfg,
		logger:   slog.Default().With(slog.String("component", "fetcher")),
		now:      time.Now,
		sleep:    sleepContext,
		inflight: make(map[uint64]context.CancelFunc),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchOrderBook returns the book for pair, from cache when fresh. After the
// last failed attempt it returns a *domain.FetchError for this pair only.
func (f *Fetcher) FetchOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	if snap, ok := f.cache.Get(pair); ok {
		return snap, nil
	}

	if err := f.sleep(ctx, f.cfg.Throttle); err != nil {
		return domain.OrderBookSnapshot{}, &domain.FetchError{Pair: pair, Err: err}
	}

	if err := f.gate.Acquire(ctx, 1); err != nil {
		return domain.OrderBookSnapshot{}, &domain.FetchError{Pair: pair, Err: err}
	}
	defer f.gate.Release(1)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.Retries; attempt++ {
		f.status(ctx, fmt.Sprintf("Fetching order book for pair: %s (Attempt %d)", pair, attempt))

		snap, err := f.src.FetchOrderBook(ctx, pair)
		if err == nil {
			ts := f.now()
			snap.Pair = pair
			snap.FetchedAt = ts
			f.cache.Put(pair, snap, ts)
			return snap, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.OrderBookSnapshot{}, &domain.FetchError{Pair: pair, Attempts: attempt, Err: ctxErr}
		}
		if attempt == f.cfg.Retries {
			break
		}

		wait := f.cfg.Backoff * time.Duration(1<<(attempt-1))
		f.logger.WarnContext(ctx, "order book fetch failed, backing off",
			slog.String("pair", pair.String()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		if err := f.sleep(ctx, wait); err != nil {
			return domain.OrderBookSnapshot{}, &domain.FetchError{Pair: pair, Attempts: attempt, Err: err}
		}
	}

	f.status(ctx, fmt.Sprintf("Failed to fetch order book for pair: %s", pair))
	return domain.OrderBookSnapshot{}, &domain.FetchError{Pair: pair, Attempts: f.cfg.Retries, Err: lastErr}
}

// FetchAll fetches every pair concurrently and returns once all of them have
// succeeded or failed. Failed pairs are absent from the map; their errors are
// joined into the returned error.
func (f *Fetcher) FetchAll(ctx context.Context, pairs []domain.TradingPair) (domain.OrderBooks, error) {
	books := make(domain.OrderBooks, len(pairs))
	var (
		mu     sync.Mutex
		failed []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pairs {
		g.Go(func() error {
			tctx, cancel := context.WithCancel(gctx)
			id := f.track(cancel)
			defer f.untrack(id)

			snap, err := f.FetchOrderBook(tctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, err)
				return nil
			}
			books[p] = snap
			return nil
		})
	}
	_ = g.Wait()

	return books, errors.Join(failed...)
}

// CancelInFlight cancels every running fetch task and returns how many were
// signalled.
func (f *Fetcher) CancelInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cancel := range f.inflight {
		cancel()
	}
	return len(f.inflight)
}

// InFlight returns the number of running fetch tasks.
func (f *Fetcher) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inflight)
}

func (f *Fetcher) track(cancel context.CancelFunc) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.inflight[f.nextID] = cancel
	return f.nextID
}

func (f *Fetcher) untrack(id uint64) {
	f.mu.Lock()
	cancel := f.inflight[id]
	delete(f.inflight, id)
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (f *Fetcher) status(ctx context.Context, msg string) {
	if f.sink == nil {
		return
	}
	f.sink.Emit(ctx, domain.Status(f.sessionID, msg))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
