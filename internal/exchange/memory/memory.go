// Package memory is an in-process exchange backed by static data. It serves
// as the "paper" exchange for dry runs and as the test double for scanners.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
)

// ID is the registry identifier.
const ID = "paper"

// BookFunc overrides order book retrieval for one call.
type BookFunc func(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error)

// Exchange implements domain.Exchange from in-memory state.
type Exchange struct {
	id string

	mu       sync.RWMutex
	markets  []domain.Market
	balances domain.Balances
	books    domain.OrderBooks
	tickers  map[domain.TradingPair]domain.Ticker
	fee      float64
	feeErr   error
	loadErr  error
	balErr   error
	bookFn   BookFunc

	bookCalls atomic.Int64
	closes    atomic.Int64
}

var _ domain.Exchange = (*Exchange)(nil)

// New returns an empty exchange reporting id.
func New(id string) *Exchange {
	if id == "" {
		id = ID
	}
	return &Exchange{
		id:       id,
		balances: make(domain.Balances),
		books:    make(domain.OrderBooks),
		tickers:  make(map[domain.TradingPair]domain.Ticker),
	}
}

// ID returns the configured identifier.
func (e *Exchange) ID() string { return e.id }

// SetMarkets replaces the listed markets.
func (e *Exchange) SetMarkets(ms ...domain.Market) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markets = append([]domain.Market(nil), ms...)
	return e
}

// SetBalance sets one asset balance.
func (e *Exchange) SetBalance(a domain.Asset, amount float64) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[a] = amount
	return e
}

// SetBook sets the book returned for pair.
func (e *Exchange) SetBook(pair domain.TradingPair, bids, asks []domain.PriceLevel) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[pair] = domain.OrderBookSnapshot{Pair: pair, Bids: bids, Asks: asks}
	return e
}

// SetTicker sets the last price for pair.
func (e *Exchange) SetTicker(pair domain.TradingPair, last float64) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickers[pair] = domain.Ticker{Pair: pair, Last: last}
	return e
}

// SetTakerFee sets the fee returned by TakerFee. A non-nil err makes
// TakerFee fail instead.
func (e *Exchange) SetTakerFee(fee float64, err error) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fee, e.feeErr = fee, err
	return e
}

// FailLoadMarkets makes LoadMarkets return err.
func (e *Exchange) FailLoadMarkets(err error) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadErr = err
	return e
}

// FailBalance makes FetchBalance return err.
func (e *Exchange) FailBalance(err error) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balErr = err
	return e
}

// OnFetchOrderBook routes every FetchOrderBook call through fn.
func (e *Exchange) OnFetchOrderBook(fn BookFunc) *Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bookFn = fn
	return e
}

// BookCalls returns how many times FetchOrderBook was called.
func (e *Exchange) BookCalls() int { return int(e.bookCalls.Load()) }

// Closes returns how many times Close was called.
func (e *Exchange) Closes() int { return int(e.closes.Load()) }

// LoadMarkets returns the configured markets.
func (e *Exchange) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.loadErr != nil {
		return nil, domain.NewConnectivityError(e.id, "load markets", e.loadErr)
	}
	return append([]domain.Market(nil), e.markets...), nil
}

// FetchBalance returns a copy of the configured balances.
func (e *Exchange) FetchBalance(ctx context.Context) (domain.Balances, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.balErr != nil {
		return nil, domain.NewConnectivityError(e.id, "fetch balance", e.balErr)
	}
	out := make(domain.Balances, len(e.balances))
	for a, v := range e.balances {
		out[a] = v
	}
	return out, nil
}

// FetchOrderBook returns the configured book for pair, stamped now.
func (e *Exchange) FetchOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	e.bookCalls.Add(1)
	e.mu.RLock()
	fn := e.bookFn
	book, ok := e.books[pair]
	e.mu.RUnlock()

	if fn != nil {
		return fn(ctx, pair)
	}
	if err := ctx.Err(); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if !ok {
		return domain.OrderBookSnapshot{}, domain.NewConnectivityError(e.id, "fetch order book "+pair.String(),
			fmt.Errorf("%w: %s", domain.ErrUnsupportedPair, pair))
	}
	book.FetchedAt = time.Now()
	return book, nil
}

// FetchTickers returns configured tickers for the requested pairs. Pairs
// without a ticker are left out.
func (e *Exchange) FetchTickers(ctx context.Context, pairs []domain.TradingPair) (map[domain.TradingPair]domain.Ticker, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[domain.TradingPair]domain.Ticker, len(pairs))
	for _, p := range pairs {
		if t, ok := e.tickers[p]; ok {
			out[p] = t
		}
	}
	return out, nil
}

// TakerFee returns the configured fee.
func (e *Exchange) TakerFee(ctx context.Context) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.feeErr != nil {
		return 0, domain.NewConnectivityError(e.id, "taker fee", e.feeErr)
	}
	return e.fee, nil
}

// Close counts the call.
func (e *Exchange) Close() error {
	e.closes.Add(1)
	return nil
}

// Paper returns an exchange seeded with a small market whose
// USDT -> ETH -> BTC -> USDT cycle is profitable.
func Paper() *Exchange {
	lvl := func(p, v float64) []domain.PriceLevel { return []domain.PriceLevel{{Price: p, Volume: v}} }
	e := New(ID)
	e.SetMarkets(
		domain.Market{Symbol: "ETH/USDT", NativeID: "ETHUSDT", Active: true},
		domain.Market{Symbol: "ETH/BTC", NativeID: "ETHBTC", Active: true},
		domain.Market{Symbol: "BTC/USDT", NativeID: "BTCUSDT", Active: true},
		domain.Market{Symbol: "SOL/USDT", NativeID: "SOLUSDT", Active: true},
		domain.Market{Symbol: "SOL/BTC", NativeID: "SOLBTC", Active: false},
	)
	e.SetBalance("USDT", 1000).SetBalance("ETH", 0.5).SetBalance("BTC", 0.01)
	e.SetBook(domain.NewPair("ETH", "USDT"), lvl(99, 5), lvl(100, 5))
	e.SetBook(domain.NewPair("ETH", "BTC"), lvl(0.02, 5), lvl(0.021, 5))
	e.SetBook(domain.NewPair("BTC", "USDT"), lvl(6000, 5), lvl(6001, 5))
	e.SetBook(domain.NewPair("SOL", "USDT"), lvl(150, 50), lvl(150.5, 50))
	e.SetTicker(domain.NewPair("ETH", "USDT"), 100).
		SetTicker(domain.NewPair("BTC", "USDT"), 6000).
		SetTicker(domain.NewPair("SOL", "USDT"), 150)
	e.SetTakerFee(0.001, nil)
	return e
}

// Factory opens a fresh paper exchange. It matches exchange.Factory.
func Factory(domain.Credentials, exchange.Options) (domain.Exchange, error) {
	return Paper(), nil
}

// Pairs returns every pair with a configured book, sorted by symbol.
func (e *Exchange) Pairs() []domain.TradingPair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.TradingPair, 0, len(e.books))
	for p := range e.books {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
