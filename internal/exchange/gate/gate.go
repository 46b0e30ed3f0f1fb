// Package gate is the Gate.io spot connector.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v6"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
)

// ID is the registry identifier.
const ID = "gate"

const (
	liveURL    = "https://api.gateio.ws/api/v4"
	testnetURL = "https://api-testnet.gateapi.io/api/v4"
)

// Client implements domain.Exchange over the Gate.io v4 spot API.
type Client struct {
	api    *gateapi.APIClient
	auth   gateapi.GateAPIV4
	depth  int
	logger *slog.Logger

	mu      sync.RWMutex
	natives map[domain.TradingPair]string
	closed  bool
}

var _ domain.Exchange = (*Client)(nil)

// Factory opens a Gate.io handle. It matches exchange.Factory.
func Factory(creds domain.Credentials, opts exchange.Options) (domain.Exchange, error) {
	return New(creds, opts), nil
}

// New creates a Gate.io client. Public endpoints work without credentials.
func New(creds domain.Credentials, opts exchange.Options) *Client {
	cfg := gateapi.NewConfiguration()
	switch {
	case opts.BaseURL != "":
		cfg.BasePath = opts.BaseURL
	case opts.Sandbox:
		cfg.BasePath = testnetURL
	default:
		cfg.BasePath = liveURL
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
		api:     gateapi.NewAPIClient(cfg),
		auth:    gateapi.GateAPIV4{Key: creds.APIKey, Secret: creds.APISecret},
		depth:   depth,
		logger:  logger.With(slog.String("component", "exchange"), slog.String("exchange", ID)),
		natives: make(map[domain.TradingPair]string),
	}
}

// ID returns "gate".
func (c *Client) ID() string { return ID }

func (c *Client) authed(ctx context.Context) context.Context {
	return context.WithValue(ctx, gateapi.ContextGateAPIV4, c.auth)
}

// LoadMarkets lists every spot currency pair. Pairs whose trade status is
// not "tradable" are returned inactive.
func (c *Client) LoadMarkets(ctx context.Context) ([]domain.Market, error) {
	pairs, resp, err := c.api.SpotApi.ListCurrencyPairs(ctx)
	if err != nil {
		return nil, exchange.Classify(ID, "load markets", resp, err)
	}

	markets := make([]domain.Market, 0, len(pairs))
	natives := make(map[domain.TradingPair]string, len(pairs))
	for _, p := range pairs {
		symbol := p.Base + "/" + p.Quote
		m := domain.Market{
			Symbol:   symbol,
			NativeID: p.Id,
			Active:   p.TradeStatus == "tradable",
		}
		// Gate reports the fee as a percentage.
		if fee, err := exchange.ParseNumber(p.Fee); err == nil && fee > 0 {
			m.TakerFee = fee / 100
		}
		if tp, err := domain.ParsePair(symbol); err == nil {
			natives[tp] = p.Id
		}
		markets = append(markets, m)
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
	return string(p.Base) + "_" + string(p.Quote)
}

// FetchBalance returns available plus locked amounts for every non-zero
// spot account.
func (c *Client) FetchBalance(ctx context.Context) (domain.Balances, error) {
	accounts, resp, err := c.api.SpotApi.ListSpotAccounts(c.authed(ctx), nil)
	if err != nil {
		return nil, exchange.Classify(ID, "fetch balance", resp, err)
	}
	out := make(domain.Balances, len(accounts))
	for _, a := range accounts {
		avail, err := exchange.ParseNumber(a.Available)
		if err != nil {
			return nil, domain.NewConnectivityError(ID, "fetch balance", err)
		}
		locked, err := exchange.ParseNumber(a.Locked)
		if err != nil {
			return nil, domain.NewConnectivityError(ID, "fetch balance", err)
		}
		if total := avail + locked; total > 0 {
			out[domain.Asset(strings.ToUpper(a.Currency))] = total
		}
	}
	return out, nil
}

// FetchOrderBook returns the top levels of one pair.
func (c *Client) FetchOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	id := c.native(pair)
	book, resp, err := c.api.SpotApi.ListOrderBook(ctx, id, &gateapi.ListOrderBookOpts{
		Limit: optional.NewInt32(int32(c.depth)),
	})
	if err != nil {
		return domain.OrderBookSnapshot{}, exchange.Classify(ID, "fetch order book "+id, resp, err)
	}
	bids, err := exchange.ParseLevels(book.Bids, c.depth)
	if err != nil {
		return domain.OrderBookSnapshot{}, domain.NewConnectivityError(ID, "fetch order book "+id, err)
	}
	asks, err := exchange.ParseLevels(book.Asks, c.depth)
	if err != nil {
		return domain.OrderBookSnapshot{}, domain.NewConnectivityError(ID, "fetch order book "+id, err)
	}
	return domain.OrderBookSnapshot{Pair: pair, Bids: bids, Asks: asks, FetchedAt: time.Now()}, nil
}

// FetchTickers returns the last price of each requested pair. All tickers
// are fetched in one call and filtered locally.
func (c *Client) FetchTickers(ctx context.Context, pairs []domain.TradingPair) (map[domain.TradingPair]domain.Ticker, error) {
	tickers, resp, err := c.api.SpotApi.ListTickers(ctx, nil)
	if err != nil {
		return nil, exchange.Classify(ID, "fetch tickers", resp, err)
	}
	want := make(map[string]domain.TradingPair, len(pairs))
	for _, p := range pairs {
		want[c.native(p)] = p
	}

	out := make(map[domain.TradingPair]domain.Ticker, len(pairs))
	for _, t := range tickers {
		p, ok := want[t.CurrencyPair]
		if !ok {
			continue
		}
		last, err := exchange.ParseNumber(t.Last)
		if err != nil {
			return nil, domain.NewConnectivityError(ID, "fetch tickers", err)
		}
		bid, _ := exchange.ParseNumber(t.HighestBid)
		ask, _ := exchange.ParseNumber(t.LowestAsk)
		out[p] = domain.Ticker{Pair: p, Last: last, Bid: bid, Ask: ask, Updated: time.Now().UnixMilli()}
	}
	return out, nil
}

// TakerFee returns the account's spot taker fee. Without credentials the
// call fails and the caller falls back to its default.
func (c *Client) TakerFee(ctx context.Context) (float64, error) {
	if c.auth.Key == "" {
		return 0, domain.NewConnectivityError(ID, "taker fee", fmt.Errorf("%w: no api key", domain.ErrUnauthorized))
	}
	fee, resp, err := c.api.WalletApi.GetTradeFee(c.authed(ctx), nil)
	if err != nil {
		return 0, exchange.Classify(ID, "taker fee", resp, err)
	}
	v, err := exchange.ParseNumber(fee.TakerFee)
	if err != nil {
		return 0, domain.NewConnectivityError(ID, "taker fee", err)
	}
	return v, nil
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
