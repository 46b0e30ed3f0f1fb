package domain

import "context"

// Exchange is the connectivity capability the scanners depend on. One value
// is one opened handle; Close must be called exactly once.
type Exchange interface {
	ID() string
	LoadMarkets(ctx context.Context) ([]Market, error)
	FetchBalance(ctx context.Context) (Balances, error)
	FetchOrderBook(ctx context.Context, pair TradingPair) (OrderBookSnapshot, error)
	FetchTickers(ctx context.Context, pairs []TradingPair) (map[TradingPair]Ticker, error)
	TakerFee(ctx context.Context) (float64, error)
	Close() error
}

// OrderBookSource is the narrow slice of Exchange used by the fetcher.
type OrderBookSource interface {
	FetchOrderBook(ctx context.Context, pair TradingPair) (OrderBookSnapshot, error)
}
