// Package scanner runs triangular arbitrage scan sessions: it opens an
// exchange, discovers triangles from the account's holdings and evaluates
// them against freshly fetched order books once per interval until stopped.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/triarb/internal/arbitrage"
	"github.com/alanyoungcy/triarb/internal/cache/memory"
	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
	"github.com/alanyoungcy/triarb/internal/fetcher"
	"github.com/alanyoungcy/triarb/internal/graph"
)

// Status lines sent to the sink.
const (
	MsgLoading      = "Loading Exchange"
	MsgInitializing = "Initializing Exchange and fetching Market Data"
	MsgMarketData   = "Market Data fetched !"
	MsgNoStart      = "no suitable starting asset"
	MsgStopped      = "Arbitrage task was stopped."
)

// Opener opens exchange handles by identifier. *exchange.Registry
// satisfies it.
type Opener interface {
	Open(id string, creds domain.Credentials, opts exchange.Options) (domain.Exchange, error)
}

// Config holds settings shared by every session a Scanner runs.
type Config struct {
	FeeRate           float64 // used when the exchange reports no taker fee
	Interval          time.Duration
	RankByProfit      bool
	AllEligibleStarts bool
	CacheTTL          time.Duration
	Depth             int
	Fetch             fetcher.Config
}

// DefaultConfig returns a 1s interval, the default fee and fetch settings
// and profit ranking.
func DefaultConfig() Config {
	return Config{
		FeeRate:      arbitrage.DefaultFeeRate,
		Interval:     time.Second,
		RankByProfit: true,
		CacheTTL:     memory.DefaultTTL,
		Depth:        5,
		Fetch:        fetcher.DefaultConfig(),
	}
}

// Scanner runs at most one scan session at a time.
type Scanner struct {
	opener Opener
	cfg    Config
	sink   domain.Sink
	mirror domain.OrderBookMirror
	logger *slog.Logger
	sleep  fetcher.Sleeper
	newID  func() string

	mu      sync.Mutex
	current *session
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSink sets where status lines and opportunities go.
func WithSink(sink domain.Sink) Option {
	return func(s *Scanner) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l.With(slog.String("component", "scanner")) }
}

// WithMirror copies every fetched book to m.
func WithMirror(m domain.OrderBookMirror) Option {
	return func(s *Scanner) { s.mirror = m }
}

// WithSleeper replaces all waits: the tick interval, the fetch throttle and
// the retry backoff.
func WithSleeper(fn fetcher.Sleeper) Option {
	return func(s *Scanner) { s.sleep = fn }
}

// New creates an idle Scanner.
func New(opener Opener, cfg Config, opts ...Option) *Scanner {
	s := &Scanner{
		opener: opener,
		cfg:    cfg,
		sink:   domain.SinkFunc(func(context.Context, domain.Event) {}),
		logger: slog.Default().With(slog.String("component", "scanner")),
		newID:  func() string { return uuid.Must(uuid.NewRandom()).String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches a session in the background and returns once it is
// registered. The session outlives ctx; call Stop to end it.
func (s *Scanner) Start(ctx context.Context, p Params) (string, error) {
	sess, err := s.launch(context.WithoutCancel(ctx), p)
	if err != nil {
		return "", err
	}
	return sess.id, nil
}

// Run starts a session bound to ctx and blocks until it ends. Cancelling
// ctx stops the session cleanly and Run returns nil; initialization
// failures are returned.
func (s *Scanner) Run(ctx context.Context, p Params) error {
	sess, err := s.launch(ctx, p)
	if err != nil {
		return err
	}
	select {
	case <-sess.done:
	case <-ctx.Done():
		sess.cancelInFlight()
		<-sess.done
	}
	return sess.result()
}

// Stop cancels the running session, cancels its in-flight fetches and
// waits until the loop has unwound.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return domain.ErrNotRunning
	}
	select {
	case <-sess.done:
		return domain.ErrNotRunning
	default:
	}

	sess.cancel()
	n := sess.cancelInFlight()
	s.logger.Info("stop requested",
		slog.String("session_id", sess.id),
		slog.Int("cancelled_fetches", n),
	)
	<-sess.done
	return nil
}

// State returns the state of the current or last session.
func (s *Scanner) State() State {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return StateIdle
	}
	return sess.getState()
}

// Status returns a view of the current or last session.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()
	if sess == nil {
		return Status{State: StateIdle.String()}
	}
	return sess.snapshot()
}

func (s *Scanner) launch(ctx context.Context, p Params) (*session, error) {
	if strings.TrimSpace(p.Exchange) == "" {
		return nil, fmt.Errorf("scanner: start: exchange is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		select {
		case <-s.current.done:
		default:
			return nil, domain.ErrAlreadyRunning
		}
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := newSession(s.newID(), p, cancel)
	s.current = sess
	go s.run(sctx, sess)
	return sess, nil
}

func (s *Scanner) run(ctx context.Context, sess *session) {
	defer close(sess.done)
	defer sess.cancel()

	logger := s.logger.With(slog.String("session_id", sess.id), slog.String("exchange", sess.params.Exchange))
	logger.InfoContext(ctx, "scan session starting")

	err := s.scan(ctx, sess, logger)
	switch {
	case err == nil, ctx.Err() != nil, errors.Is(err, context.Canceled):
		s.emit(ctx, domain.Status(sess.id, MsgStopped))
		err = nil
	default:
		logger.ErrorContext(ctx, "scan session failed", slog.String("error", err.Error()))
		s.emit(ctx, domain.Event{Kind: domain.EventError, SessionID: sess.id, Message: err.Error(), At: time.Now().UTC()})
	}
	sess.finish(err)
	s.transition(ctx, sess, StateStopped)
	logger.InfoContext(ctx, "scan session stopped")
}

// scan is the body of one session. The exchange handle is closed exactly
// once on every path out of it.
func (s *Scanner) scan(ctx context.Context, sess *session, logger *slog.Logger) error {
	p := sess.params
	s.transition(ctx, sess, StateInitializing)
	s.emit(ctx, domain.Status(sess.id, MsgLoading))

	ex, err := s.opener.Open(p.Exchange, p.Credentials, exchange.Options{
		Sandbox: p.Sandbox,
		Depth:   s.cfg.Depth,
		Logger:  s.logger,
	})
	if err != nil {
		return fmt.Errorf("scanner: open exchange: %w", err)
	}
	defer func() {
		if cerr := ex.Close(); cerr != nil {
			logger.Warn("close exchange", slog.String("error", cerr.Error()))
		}
	}()

	s.emit(ctx, domain.Status(sess.id, MsgInitializing))
	markets, err := ex.LoadMarkets(ctx)
	if err != nil {
		return fmt.Errorf("scanner: load markets: %w", err)
	}
	fee := s.resolveFee(ctx, ex, logger)

	balances, err := ex.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("scanner: fetch balance: %w", err)
	}
	s.emit(ctx, domain.Status(sess.id, MsgMarketData))

	blacklist := assetSet(p.Blacklist)
	whitelist := assetSet(p.Whitelist)
	start, eligible, err := ChooseStartingAsset(balances, p.MinTradeVolume, blacklist)
	if err != nil {
		s.emit(ctx, domain.Status(sess.id, MsgNoStart))
		return fmt.Errorf("scanner: choose starting asset: %w", err)
	}

	g := graph.Build(graph.FilterMarkets(markets, blacklist))
	triangles := s.discover(g, start, eligible, whitelist)
	pairs := graph.UniquePairs(triangles)

	sess.update(func(st *Status) {
		st.StartAsset = string(start)
		st.Eligible = assetStrings(eligible)
		st.FeeRate = fee
		st.Triangles = len(triangles)
		st.Pairs = len(pairs)
	})
	logger.InfoContext(ctx, "triangles discovered",
		slog.String("start", string(start)),
		slog.Int("eligible", len(eligible)),
		slog.Int("markets", len(markets)),
		slog.Int("skipped_symbols", g.Skipped()),
		slog.Int("triangles", len(triangles)),
		slog.Int("pairs", len(pairs)),
		slog.Float64("fee_rate", fee),
	)
	s.emit(ctx, domain.Status(sess.id, fmt.Sprintf("Starting asset: %s, %d triangles over %d pairs", start, len(triangles), len(pairs))))

	cacheOpts := []memory.Option{}
	if s.mirror != nil {
		cacheOpts = append(cacheOpts, memory.WithMirror(s.mirror, ex.ID(), s.logger))
	}
	fetchOpts := []fetcher.Option{fetcher.WithSink(s.sink, sess.id), fetcher.WithLogger(s.logger)}
	if s.sleep != nil {
		fetchOpts = append(fetchOpts, fetcher.WithSleeper(s.sleep))
	}
	f := fetcher.New(ex, memory.NewOrderBookCache(s.cfg.CacheTTL, cacheOpts...), s.cfg.Fetch, fetchOpts...)
	sess.setFetcher(f)

	s.transition(ctx, sess, StateRunning)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		books, ferr := f.FetchAll(ctx, pairs)
		if err := ctx.Err(); err != nil {
			return err
		}
		if ferr != nil {
			logger.WarnContext(ctx, "some order books unavailable this tick",
				slog.Int("fetched", len(books)),
				slog.Int("requested", len(pairs)),
				slog.String("error", ferr.Error()),
			)
		}

		s.transition(ctx, sess, StateEvaluating)
		s.evaluate(ctx, sess, ex.ID(), triangles, books, fee, p.MinTradeVolume)
		s.transition(ctx, sess, StateRunning)

		if err := s.wait(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
}

func (s *Scanner) evaluate(ctx context.Context, sess *session, exchangeID string, triangles []domain.Triangle, books domain.OrderBooks, fee, threshold float64) {
	opps := arbitrage.EvaluateAll(triangles, books, fee, threshold)
	if s.cfg.RankByProfit {
		arbitrage.Rank(opps)
	}
	now := time.Now().UTC()
	for i := range opps {
		opp := opps[i]
		opp.ID = s.newID()
		opp.SessionID = sess.id
		opp.Exchange = exchangeID
		opp.DetectedAt = now
		s.emit(ctx, domain.Event{
			Kind:        domain.EventOpportunity,
			SessionID:   sess.id,
			Message:     opp.Summary(),
			Opportunity: &opp,
			At:          now,
		})
	}
	sess.update(func(st *Status) {
		st.Ticks++
		st.Opportunities += int64(len(opps))
	})
}

// discover finds triangles from the primary start asset, or from every
// eligible asset when configured. A walk reached from two starts is kept
// once.
func (s *Scanner) discover(g *graph.Graph, start domain.Asset, eligible []domain.Asset, whitelist map[domain.Asset]bool) []domain.Triangle {
	if !s.cfg.AllEligibleStarts {
		return g.FindTriangles(start, whitelist)
	}
	seen := make(map[string]bool)
	var out []domain.Triangle
	for _, a := range eligible {
		for _, t := range g.FindTriangles(a, whitelist) {
			if k := t.Key(); !seen[k] {
				seen[k] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// resolveFee asks the exchange for its taker fee and falls back to the
// configured rate when it is unavailable.
func (s *Scanner) resolveFee(ctx context.Context, ex domain.Exchange, logger *slog.Logger) float64 {
	fee, err := ex.TakerFee(ctx)
	if err != nil || fee <= 0 {
		attrs := []any{slog.Float64("fallback", s.cfg.FeeRate)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.WarnContext(ctx, "taker fee unavailable, using default", attrs...)
		return s.cfg.FeeRate
	}
	return fee
}

func (s *Scanner) transition(ctx context.Context, sess *session, st State) {
	sess.setState(st)
	s.emit(ctx, domain.Event{Kind: domain.EventState, SessionID: sess.id, State: st.String(), At: time.Now().UTC()})
}

func (s *Scanner) emit(ctx context.Context, evt domain.Event) {
	// The sink sees events after cancellation too.
	s.sink.Emit(context.WithoutCancel(ctx), evt)
}

func (s *Scanner) wait(ctx context.Context, d time.Duration) error {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
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

func assetSet(symbols []string) map[domain.Asset]bool {
	if len(symbols) == 0 {
		return nil
	}
	out := make(map[domain.Asset]bool, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out[domain.Asset(s)] = true
		}
	}
	return out
}

func assetStrings(as []domain.Asset) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = string(a)
	}
	return out
}
