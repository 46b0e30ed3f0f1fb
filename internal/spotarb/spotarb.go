// Package spotarb watches the same symbols on several exchanges and reports
// the gap between the cheapest and dearest last price on every tick.
package spotarb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/triarb/internal/arbitrage"
	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
)

// MsgChecking is sent before the listing check.
const MsgChecking = "Checking if exchanges support fetchTickers and the symbols we want to trade"

// DefaultSymbols are watched when none are configured.
var DefaultSymbols = []string{
	"BTC/USDT", "LTC/USDT", "DOGE/USDT", "SHIB/USDT", "SOL/USDT",
	"ETH/USDT", "ADA/USDT", "DOT/USDT", "UNI/USDT", "LINK/USDT",
}

// DefaultOrderSizes is the base-asset size simulated per symbol.
var DefaultOrderSizes = map[string]float64{
	"BTC/USDT":  0.001,
	"LTC/USDT":  0.01,
	"DOGE/USDT": 100,
	"SHIB/USDT": 1000000,
	"SOL/USDT":  0.1,
	"ETH/USDT":  0.01,
	"ADA/USDT":  1,
	"DOT/USDT":  0.1,
	"UNI/USDT":  0.1,
	"LINK/USDT": 0.1,
}

// Opener opens exchange handles by identifier.
type Opener interface {
	Open(id string, creds domain.Credentials, opts exchange.Options) (domain.Exchange, error)
}

// Config configures a spot scanner.
type Config struct {
	Exchanges   []string
	Credentials map[string]domain.Credentials
	Symbols     []string
	OrderSizes  map[string]float64
	MinProfit   float64
	FeeRate     float64 // used for exchanges that report no taker fee
	Interval    time.Duration
	Sandbox     bool
}

// Scanner runs the cross-exchange spread loop.
type Scanner struct {
	opener Opener
	cfg    Config
	sink   domain.Sink
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSink sets where spread results go.
func WithSink(sink domain.Sink) Option {
	return func(s *Scanner) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l.With(slog.String("component", "spotarb")) }
}

// WithSleeper replaces the inter-tick wait.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scanner) { s.sleep = fn }
}

// New creates a scanner. Symbols and order sizes fall back to the defaults.
func New(opener Opener, cfg Config, opts ...Option) *Scanner {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultSymbols
	}
	if len(cfg.OrderSizes) == 0 {
		cfg.OrderSizes = DefaultOrderSizes
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.FeeRate <= 0 {
		cfg.FeeRate = arbitrage.DefaultFeeRate
	}
	s := &Scanner{
		opener: opener,
		cfg:    cfg,
		sink:   domain.SinkFunc(func(context.Context, domain.Event) {}),
		logger: slog.Default().With(slog.String("component", "spotarb")),
		sleep:  sleepContext,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// venue is one opened exchange and its fee.
type venue struct {
	ex  domain.Exchange
	fee float64
}

// Run opens every exchange, checks that each lists every symbol and then
// ticks until ctx is cancelled. Cancellation returns nil.
func (s *Scanner) Run(ctx context.Context) error {
	if len(s.cfg.Exchanges) < 2 {
		return fmt.Errorf("spotarb: need at least two exchanges, got %d", len(s.cfg.Exchanges))
	}
	pairs, err := parseSymbols(s.cfg.Symbols)
	if err != nil {
		return err
	}

	venues := make([]venue, 0, len(s.cfg.Exchanges))
	defer func() {
		for _, v := range venues {
			if cerr := v.ex.Close(); cerr != nil {
				s.logger.Warn("close exchange", slog.String("exchange", v.ex.ID()), slog.String("error", cerr.Error()))
			}
		}
	}()
	for _, id := range s.cfg.Exchanges {
		ex, err := s.opener.Open(id, s.cfg.Credentials[id], exchange.Options{Sandbox: s.cfg.Sandbox, Logger: s.logger})
		if err != nil {
			return fmt.Errorf("spotarb: %w", err)
		}
		venues = append(venues, venue{ex: ex})
	}

	s.emit(ctx, domain.Status("", MsgChecking))
	if err := s.checkRequirements(ctx, venues, pairs); err != nil {
		return err
	}

	for {
		if err := s.tick(ctx, venues, pairs); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WarnContext(ctx, "spot tick failed", slog.String("error", err.Error()))
		}
		if err := s.sleep(ctx, s.cfg.Interval); err != nil {
			return nil
		}
	}
}

// checkRequirements loads markets on every venue, resolves its taker fee and
// fails when any venue does not list a symbol.
func (s *Scanner) checkRequirements(ctx context.Context, venues []venue, pairs []domain.TradingPair) error {
	for i := range venues {
		v := &venues[i]
		markets, err := v.ex.LoadMarkets(ctx)
		if err != nil {
			return fmt.Errorf("spotarb: load markets %s: %w", v.ex.ID(), err)
		}
		listed := make(map[domain.TradingPair]bool, len(markets))
		for _, m := range markets {
			if p, err := domain.ParsePair(m.Symbol); err == nil && m.Active {
				listed[p] = true
			}
		}
		for _, p := range pairs {
			if !listed[p] {
				return fmt.Errorf("spotarb: %s does not support %s: %w", v.ex.ID(), p, domain.ErrUnsupportedPair)
			}
		}

		v.fee = s.cfg.FeeRate
		if fee, err := v.ex.TakerFee(ctx); err == nil && fee > 0 {
			v.fee = fee
		}
		s.logger.InfoContext(ctx, "exchange ready",
			slog.String("exchange", v.ex.ID()),
			slog.Float64("taker_fee", v.fee),
		)
	}
	return nil
}

// tick fetches tickers from every venue concurrently and emits one spread
// event per symbol quoted by at least two venues.
func (s *Scanner) tick(ctx context.Context, venues []venue, pairs []domain.TradingPair) error {
	prices := make([]map[domain.TradingPair]domain.Ticker, len(venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range venues {
		g.Go(func() error {
			t, err := v.ex.FetchTickers(gctx, pairs)
			if err != nil {
				return fmt.Errorf("spotarb: fetch tickers %s: %w", v.ex.ID(), err)
			}
			prices[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range pairs {
		symbol := p.String()
		quotes := make([]arbitrage.VenueQuote, 0, len(venues))
		for i, v := range venues {
			if t, ok := prices[i][p]; ok {
				quotes = append(quotes, arbitrage.VenueQuote{Exchange: v.ex.ID(), Last: t.Last, TakerFee: v.fee})
			}
		}
		opp, ok := arbitrage.DetectSpread(symbol, quotes, arbitrage.SpreadConfig{
			OrderSize: s.orderSize(symbol),
			MinProfit: s.cfg.MinProfit,
		})
		if !ok {
			continue
		}
		opp.ID = uuid.Must(uuid.NewRandom()).String()
		opp.DetectedAt = now
		s.emit(ctx, domain.Event{Kind: domain.EventSpread, Message: spreadLine(opp), Spread: &opp, At: now})
	}
	return nil
}

func (s *Scanner) orderSize(symbol string) float64 {
	if v, ok := s.cfg.OrderSizes[symbol]; ok && v > 0 {
		return v
	}
	return 1
}

func (s *Scanner) emit(ctx context.Context, evt domain.Event) {
	s.sink.Emit(context.WithoutCancel(ctx), evt)
}

func spreadLine(o domain.SpreadOpportunity) string {
	profit := "no opportunity"
	if o.Profitable {
		profit = fmt.Sprintf("%.6f", o.Profit)
	}
	return fmt.Sprintf("%s buy %s @ %g sell %s @ %g profit %s", o.Symbol, o.BuyOn, o.BuyPrice, o.SellOn, o.SellPrice, profit)
}

func parseSymbols(symbols []string) ([]domain.TradingPair, error) {
	var errs []error
	pairs := make([]domain.TradingPair, 0, len(symbols))
	for _, sym := range symbols {
		p, err := domain.ParsePair(sym)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pairs = append(pairs, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("spotarb: symbols: %w", err)
	}
	return pairs, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
