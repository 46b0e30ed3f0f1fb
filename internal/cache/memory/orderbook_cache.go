// Package memory holds the per-session in-process order book cache.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// DefaultTTL is how long a fetched book stays fresh.
const DefaultTTL = 60 * time.Second

const mirrorTimeout = 2 * time.Second

type entry struct {
	fetchedAt time.Time
	snap      domain.OrderBookSnapshot
}

// OrderBookCache is a TTL cache keyed by pair. Entries expire once
// now - fetchedAt >= ttl. It is safe for concurrent use.
type OrderBookCache struct {
	mu       sync.RWMutex
	entries  map[domain.TradingPair]entry
	ttl      time.Duration
	now      func() time.Time
	mirror   domain.OrderBookMirror
	exchange string
	logger   *slog.Logger
}

// Option configures an OrderBookCache.
type Option func(*OrderBookCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *OrderBookCache) { c.now = now }
}

// WithMirror copies every Put to m under the given exchange namespace.
func WithMirror(m domain.OrderBookMirror, exchange string, logger *slog.Logger) Option {
	return func(c *OrderBookCache) {
		c.mirror = m
		c.exchange = exchange
		if logger != nil {
			c.logger = logger.With(slog.String("component", "book_cache"))
		}
	}
}

// NewOrderBookCache creates an empty cache. A non-positive ttl selects
// DefaultTTL.
func NewOrderBookCache(ttl time.Duration, opts ...Option) *OrderBookCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &OrderBookCache{
		entries: make(map[domain.TradingPair]entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached snapshot while it is still fresh. A stale or
// missing entry reports false.
func (c *OrderBookCache) Get(pair domain.TradingPair) (domain.OrderBookSnapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[pair]
	c.mu.RUnlock()
	if !ok {
		return domain.OrderBookSnapshot{}, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		return domain.OrderBookSnapshot{}, false
	}
	return e.snap, true
}

// Put stores snap as fetched at ts, replacing any previous entry.
func (c *OrderBookCache) Put(pair domain.TradingPair, snap domain.OrderBookSnapshot, ts time.Time) {
	c.mu.Lock()
	c.entries[pair] = entry{fetchedAt: ts, snap: snap}
	c.mu.Unlock()

	if c.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := c.mirror.SetSnapshot(ctx, c.exchange, snap, c.ttl); err != nil {
		c.logger.Warn("mirror snapshot failed",
			slog.String("pair", pair.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Len returns the number of entries, fresh or not.
func (c *OrderBookCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops expired entries and returns how many were removed.
func (c *OrderBookCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for p, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, p)
			removed++
		}
	}
	return removed
}

// TTL returns the configured time-to-live.
func (c *OrderBookCache) TTL() time.Duration { return c.ttl }
