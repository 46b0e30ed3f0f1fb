package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/triarb/internal/domain"
)

var _ domain.OrderBookMirror = (*BookMirror)(nil)

// BookMirror implements domain.OrderBookMirror using Redis sorted sets and
// hashes, one group of keys per exchange and pair.
//
// Key schema:
//
//	book:{exchange}:{pair}:bids     - sorted set of bid prices (score = price)
//	book:{exchange}:{pair}:asks     - sorted set of ask prices (score = price)
//	book:{exchange}:{pair}:bid:size - hash mapping price -> volume for bids
//	book:{exchange}:{pair}:ask:size - hash mapping price -> volume for asks
//	book:{exchange}:{pair}:meta     - hash with "ts" field (fetch timestamp)
//
// Every key carries the TTL passed to SetSnapshot, so a mirrored book never
// outlives the in-process cache entry it was copied from.
type BookMirror struct {
	rdb *redis.Client
}

// NewBookMirror creates a BookMirror backed by the given Client.
func NewBookMirror(c *Client) *BookMirror {
	return &BookMirror{rdb: c.Underlying()}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, meta string
}

func keysFor(exchange string, pair domain.TradingPair) bookKeys {
	prefix := "book:" + exchange + ":" + pair.String()
	return bookKeys{
		bids:    prefix + ":bids",
		asks:    prefix + ":asks",
		bidSize: prefix + ":bid:size",
		askSize: prefix + ":ask:size",
		meta:    prefix + ":meta",
	}
}

func (k bookKeys) all() []string {
	return []string{k.bids, k.asks, k.bidSize, k.askSize, k.meta}
}

// SetSnapshot atomically replaces the mirrored book for one pair.
func (bm *BookMirror) SetSnapshot(ctx context.Context, exchange string, snap domain.OrderBookSnapshot, ttl time.Duration) error {
	k := keysFor(exchange, snap.Pair)

	pipe := bm.rdb.TxPipeline()
	pipe.Del(ctx, k.all()...)

	for _, lvl := range snap.Bids {
		priceStr := strconv.FormatFloat(lvl.Price, 'f', -1, 64)
		pipe.ZAdd(ctx, k.bids, redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, k.bidSize, priceStr, strconv.FormatFloat(lvl.Volume, 'f', -1, 64))
	}
	for _, lvl := range snap.Asks {
		priceStr := strconv.FormatFloat(lvl.Price, 'f', -1, 64)
		pipe.ZAdd(ctx, k.asks, redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, k.askSize, priceStr, strconv.FormatFloat(lvl.Volume, 'f', -1, 64))
	}
	pipe.HSet(ctx, k.meta, "ts", strconv.FormatInt(snap.FetchedAt.UnixNano(), 10))

	if ttl > 0 {
		for _, key := range k.all() {
			pipe.Expire(ctx, key, ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s %s: %w", exchange, snap.Pair, err)
	}
	return nil
}

// GetSnapshot reconstructs a mirrored book. It returns domain.ErrNotFound
// when nothing is stored for the pair or the entry has expired.
func (bm *BookMirror) GetSnapshot(ctx context.Context, exchange string, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	k := keysFor(exchange, pair)

	pipe := bm.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	metaCmd := pipe.HGetAll(ctx, k.meta)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get book %s %s: %w", exchange, pair, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.OrderBookSnapshot{Pair: pair}
	if ts, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.FetchedAt = time.Unix(0, ts).UTC()
	}

	bidSizes, _ := bidSizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	snap.Bids = levels(bidsZ, bidSizes)

	askSizes, _ := askSizeCmd.Result()
	asksZ, _ := asksCmd.Result()
	snap.Asks = levels(asksZ, askSizes)

	return snap, nil
}

func levels(zs []redis.Z, sizes map[string]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		vol, _ := strconv.ParseFloat(sizes[priceStr], 64)
		out = append(out, domain.PriceLevel{Price: z.Score, Volume: vol})
	}
	return out
}
