package domain

import (
	"context"
	"time"
)

// OrderBookMirror receives every snapshot the in-process cache stores so
// that other processes can read the latest books.
type OrderBookMirror interface {
	SetSnapshot(ctx context.Context, exchange string, snap OrderBookSnapshot, ttl time.Duration) error
	GetSnapshot(ctx context.Context, exchange string, pair TradingPair) (OrderBookSnapshot, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter counts requests per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
