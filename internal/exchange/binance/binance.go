// Package binance is the Binance spot connector.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	bnc "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
)

// ID is the registry identifier.
const ID = "binance"

const testnetURL = "https://testnet.binance.vision"

// Client implements domain.Exchange over the Binance spot REST API.
type Client struct {
	api    *bnc.Client
	hasKey bool
	depth  int
	logger *slog.Logger

	mu      sync.RWMutex
	natives map[domain.TradingPair]string
	closed  bool
}

var _ domain.Exchange = (*Client)(nil)

// Factory opens a Binance handle. It matches exchange.Factory.
func Factory(creds domain.Credentials, opts exchange.Options) (domain.Exchange, error) {
	return New(creds, opts), nil
}

// New creates a Binance client. Sandbox points it at the spot testnet.
func New(creds domain.Credentials, opts exchange.Options) *Client {
	api := bnc.NewClient(creds.APIKey, creds.APISecret)
	switch {
	case opts.BaseURL != "":
		api.BaseURL = opts.BaseURL
	case opts.Sandbox:
		api.BaseURL = testnetURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = 5
	}
	return &Client{
		api:     api,
		hasKey:  creds.APIKey != "",
		depth:   depth,
		logger:  logger.With(slog.String("component", "exchange"), slog.String("exchange", ID)),
		natives: make(map[domain.TradingPair]string),
	}
}

// ID returns "binance".
func (c *Client) ID() string { return ID }

// classify maps Binance API error codes onto the connectivity taxonomy.
func classify(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003, -1015:
			err = fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case -2014, -2015, -1022:
			err = fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
	}
	return domain.NewConnectivityError(ID, op, err)
}

// LoadMarkets lists every spot symbol. Symbols not in TRADING status are
// returned inactive.
func (c *Client) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, classify("load markets", err)
	}

	markets := make([]domain.Market, 0, len(info.Symbols))
	natives := make(map[domain.TradingPair]string, len(info.Symbols))
	for _, s := range info.Symbols {
		symbol := s.BaseAsset + "/" + s.QuoteAsset
		markets = append(markets, domain.Market{
			Symbol:   symbol,
			NativeID: s.Symbol,
			Active:   s.Status == "TRADING",
		})
		if tp, err := domain.ParsePair(symbol); err == nil {
			natives[tp] = s.Symbol
		}
	}

	c.mu.Lock()
	c.natives = natives
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "markets loaded", slog.Int("count", len(markets)))
	return markets, nil
}

func (c *Client) native(p domain.TradingPair) string {
	c.mu.RLock()
	id, ok := c.natives[p]
	c.mu.RUnlock()
	if ok {
		return id
	}
	return string(p.Base) + string(p.Quote)
}

// FetchBalance returns free plus locked amounts for every non-zero asset.
func (c *Client) FetchBalance(ctx context.Context) (domain.Balances, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify("fetch balance", err)
	}
	out := make(domain.Balances, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := exchange.ParseNumber(b.Free)
		if err != nil {
			return nil, domain.NewConnectivityError(ID, "fetch balance", err)
		}
		locked, err := exchange.ParseNumber(b.Locked)
		if err != nil {
			return nil, domain.NewConnectivityError(ID, "fetch balance", err)
		}
		if total := free + locked; total > 0 {
			out[domain.Asset(strings.ToUpper(b.Asset))] = total
		}
	}
	return out, nil
}

// FetchOrderBook returns the top levels of one pair.
func (c *Client) FetchOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	symbol := c.native(pair)
	depth, err := c.api.NewDepthService().Symbol(symbol).Limit(c.depth).Do(ctx)
	if err != nil {
		return domain.OrderBookSnapshot{}, classify("fetch order book "+symbol, err)
	}

	snap := domain.OrderBookSnapshot{
		Pair:      pair,
		Bids:      make([]domain.PriceLevel, 0, len(depth.Bids)),
		Asks:      make([]domain.PriceLevel, 0, len(depth.Asks)),
		FetchedAt: time.Now(),
	}
	for _, b := range depth.Bids {
		lvl, err := exchange.ParseLevel(b.Price, b.Quantity)
		if err != nil {
			return domain.OrderBookSnapshot{}, domain.NewConnectivityError(ID, "fetch order book "+symbol, err)
		}
		snap.Bids = append(snap.Bids, lvl)
	}
	for _, a := range depth.Asks {
		lvl, err := exchange.ParseLevel(a.Price, a.Quantity)
		if err != nil {
			return domain.OrderBookSnapshot{}, domain.NewConnectivityError(ID, "fetch order book "+symbol, err)
		}
		snap.Asks = append(snap.Asks, lvl)
	}
	return snap, nil
}

// FetchTickers returns the last price of each requested pair.
func (c *Client) FetchTickers(ctx context.Context, pairs []domain.TradingPair) (map[domain.TradingPair]domain.Ticker, error) {
	symbols := make([]string, 0, len(pairs))
	want := make(map[string]domain.TradingPair, len(pairs))
	for _, p := range pairs {
		s := c.native(p)
		symbols = append(symbols, s)
		want[s] = p
	}

	prices, err := c.api.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, classify("fetch tickers", err)
	}
	out := make(map[domain.TradingPair]domain.Ticker, len(prices))
	now := time.Now().UnixMilli()
	for _, p := range prices {
		tp, ok := want[p.Symbol]
		if !ok {
			continue
		}
		last, err := exchange.ParseNumber(p.Price)
		if err != nil {
			return nil, domain.NewConnectivityError(ID, "fetch tickers", err)
		}
		out[tp] = domain.Ticker{Pair: tp, Last: last, Updated: now}
	}
	return out, nil
}

// TakerFee returns the account taker commission as a fraction. Binance
// reports it in basis points.
func (c *Client) TakerFee(ctx context.Context) (float64, error) {
	if !c.hasKey {
		return 0, domain.NewConnectivityError(ID, "taker fee", fmt.Errorf("%w: no api key", domain.ErrUnauthorized))
	}
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classify("taker fee", err)
	}
	return float64(acct.TakerCommission) / 10000, nil
}

// Close marks the handle closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.logger.Debug("exchange closed")
	}
	return nil
}
