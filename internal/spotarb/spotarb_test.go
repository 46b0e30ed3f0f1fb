package spotarb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
	"github.com/alanyoungcy/triarb/internal/exchange/memory"
)

type mapOpener map[string]*memory.Exchange

func (m mapOpener) Open(id string, _ domain.Credentials, _ exchange.Options) (domain.Exchange, error) {
	ex, ok := m[id]
	if !ok {
		return nil, domain.ErrUnknownExchange
	}
	return ex, nil
}

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) Emit(_ context.Context, e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) spreads() []domain.SpreadOpportunity {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.SpreadOpportunity
	for _, e := range c.events {
		if e.Kind == domain.EventSpread {
			out = append(out, *e.Spread)
		}
	}
	return out
}

func venueWith(id string, fee float64, prices map[string]float64) *memory.Exchange {
	ex := memory.New(id).SetTakerFee(fee, nil)
	var ms []domain.Market
	for sym, last := range prices {
		p, _ := domain.ParsePair(sym)
		ms = append(ms, domain.Market{Symbol: sym, Active: true})
		ex.SetTicker(p, last)
	}
	return ex.SetMarkets(ms...)
}

func oneTick(cancel context.CancelFunc) Option {
	return WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
}

func TestRunReportsSpreads(t *testing.T) {
	a := venueWith("a", 0.001, map[string]float64{"BTC/USDT": 60000, "ETH/USDT": 3000})
	b := venueWith("b", 0.001, map[string]float64{"BTC/USDT": 60500, "ETH/USDT": 3000.1})
	sink := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(mapOpener{"a": a, "b": b}, Config{
		Exchanges:  []string{"a", "b"},
		Symbols:    []string{"BTC/USDT", "ETH/USDT"},
		OrderSizes: map[string]float64{"BTC/USDT": 0.01, "ETH/USDT": 0.01},
		MinProfit:  0,
	}, WithSink(sink), oneTick(cancel))

	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	spreads := sink.spreads()
	if len(spreads) != 2 {
		t.Fatalf("expected 2 spread events, got %d", len(spreads))
	}
	btc := spreads[0]
	if btc.Symbol != "BTC/USDT" || btc.BuyOn != "a" || btc.SellOn != "b" {
		t.Fatalf("btc spread = %+v", btc)
	}
	if !btc.Profitable || btc.ID == "" {
		t.Fatalf("btc spread should be profitable and stamped: %+v", btc)
	}
	if spreads[1].Profitable {
		t.Fatalf("eth gap should not cover fees: %+v", spreads[1])
	}
	if a.Closes() != 1 || b.Closes() != 1 {
		t.Fatalf("closes a=%d b=%d", a.Closes(), b.Closes())
	}
}

func TestRunRequiresListing(t *testing.T) {
	a := venueWith("a", 0.001, map[string]float64{"BTC/USDT": 1})
	b := venueWith("b", 0.001, map[string]float64{"ETH/USDT": 1})

	s := New(mapOpener{"a": a, "b": b}, Config{Exchanges: []string{"a", "b"}, Symbols: []string{"BTC/USDT"}})
	err := s.Run(context.Background())
	if !errors.Is(err, domain.ErrUnsupportedPair) {
		t.Fatalf("err = %v, want ErrUnsupportedPair", err)
	}
	if a.Closes() != 1 || b.Closes() != 1 {
		t.Fatal("every opened exchange must be closed")
	}
}

func TestRunValidatesInput(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"one exchange", Config{Exchanges: []string{"a"}}},
		{"bad symbol", Config{Exchanges: []string{"a", "b"}, Symbols: []string{"BTCUSDT"}}},
		{"unknown exchange", Config{Exchanges: []string{"a", "zzz"}, Symbols: []string{"BTC/USDT"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := venueWith("a", 0.001, map[string]float64{"BTC/USDT": 1})
			if err := New(mapOpener{"a": a, "b": a}, tc.cfg).Run(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	s := New(nil, Config{})
	if len(s.cfg.Symbols) != 10 || s.cfg.OrderSizes["SHIB/USDT"] != 1000000 {
		t.Fatalf("defaults not applied: %+v", s.cfg)
	}
	if s.orderSize("XRP/USDT") != 1 {
		t.Fatal("unknown symbol should trade one unit")
	}
}
