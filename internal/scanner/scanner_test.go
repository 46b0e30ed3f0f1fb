package scanner

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/exchange"
	"github.com/alanyoungcy/triarb/internal/exchange/memory"
	"github.com/alanyoungcy/triarb/internal/graph"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(kind domain.EventKind) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) messages() []string {
	var out []string
	for _, e := range r.of(domain.EventStatus) {
		out = append(out, e.Message)
	}
	return out
}

type fixedOpener struct {
	ex    *memory.Exchange
	opens atomic.Int32
}

func (o *fixedOpener) Open(id string, _ domain.Credentials, _ exchange.Options) (domain.Exchange, error) {
	o.opens.Add(1)
	if o.ex == nil {
		return nil, domain.ErrUnknownExchange
	}
	return o.ex, nil
}

const tick = time.Hour

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = tick
	return cfg
}

// stopAfterFirstTick lets throttle and backoff pass and cancels the run at
// the first inter-tick sleep.
func stopAfterFirstTick(cancel context.CancelFunc) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if d == tick {
			cancel()
			return ctx.Err()
		}
		return ctx.Err()
	}
}

func TestChooseStartingAsset(t *testing.T) {
	tests := []struct {
		name      string
		balances  domain.Balances
		threshold float64
		blacklist map[domain.Asset]bool
		start     domain.Asset
		eligible  []domain.Asset
		err       error
	}{
		{
			name:      "largest wins",
			balances:  domain.Balances{"USDT": 500, "BTC": 0.5, "ETH": 900},
			threshold: 1,
			start:     "ETH",
			eligible:  []domain.Asset{"ETH", "USDT"},
		},
		{
			name:      "ties broken by ticker",
			balances:  domain.Balances{"SOL": 10, "ADA": 10},
			threshold: 1,
			start:     "ADA",
			eligible:  []domain.Asset{"ADA", "SOL"},
		},
		{
			name:      "blacklist skipped",
			balances:  domain.Balances{"USDT": 500, "ETH": 900},
			threshold: 1,
			blacklist: map[domain.Asset]bool{"ETH": true},
			start:     "USDT",
			eligible:  []domain.Asset{"USDT"},
		},
		{
			name:      "threshold is inclusive",
			balances:  domain.Balances{"BTC": 1},
			threshold: 1,
			start:     "BTC",
			eligible:  []domain.Asset{"BTC"},
		},
		{
			name:      "nothing qualifies",
			balances:  domain.Balances{"BTC": 0.5},
			threshold: 1,
			err:       domain.ErrNoStartingAsset,
		},
		{
			name: "empty portfolio",
			err:  domain.ErrNoStartingAsset,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, eligible, err := ChooseStartingAsset(tc.balances, tc.threshold, tc.blacklist)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if start != tc.start {
				t.Fatalf("start = %q, want %q", start, tc.start)
			}
			if !reflect.DeepEqual(eligible, tc.eligible) {
				t.Fatalf("eligible = %v, want %v", eligible, tc.eligible)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateIdle:         "idle",
		StateInitializing: "initializing",
		StateRunning:      "running",
		StateEvaluating:   "evaluating",
		StateStopped:      "stopped",
		State(42):         "unknown",
	}
	for st, s := range want {
		if st.String() != s {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), s)
		}
	}
	if StateStopped.Live() || StateIdle.Live() || !StateEvaluating.Live() {
		t.Fatal("Live mismatch")
	}
}

func TestRunEmitsOpportunity(t *testing.T) {
	ex := memory.Paper()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(&fixedOpener{ex: ex}, testConfig(), WithSink(rec), WithSleeper(stopAfterFirstTick(cancel)))
	if err := s.Run(ctx, Params{Exchange: "paper", MinTradeVolume: 1}); err != nil {
		t.Fatalf("run: %v", err)
	}

	msgs := rec.messages()
	for _, want := range []string{MsgLoading, MsgInitializing, MsgMarketData} {
		if !slices.Contains(msgs, want) {
			t.Fatalf("missing status %q in %v", want, msgs)
		}
	}
	if msgs[len(msgs)-1] != MsgStopped {
		t.Fatalf("last status = %q, want %q", msgs[len(msgs)-1], MsgStopped)
	}

	opps := rec.of(domain.EventOpportunity)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	opp := opps[0].Opportunity
	if opp.Path != "USDT->ETH->BTC->USDT" {
		t.Fatalf("path = %s", opp.Path)
	}
	if opp.ID == "" || opp.SessionID == "" || opp.Exchange != "paper" {
		t.Fatalf("opportunity not stamped: %+v", opp)
	}
	if opps[0].Message != opp.Summary() {
		t.Fatal("opportunity event should carry the summary")
	}

	if ex.Closes() != 1 {
		t.Fatalf("exchange closed %d times", ex.Closes())
	}
	if ex.BookCalls() != 3 {
		t.Fatalf("book calls = %d, want 3", ex.BookCalls())
	}

	st := s.Status()
	if st.State != "stopped" || st.StartAsset != "USDT" || st.Triangles != 2 || st.Pairs != 3 || st.Ticks != 1 {
		t.Fatalf("status = %+v", st)
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s", s.State())
	}
}

func TestRunStateSequence(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(&fixedOpener{ex: memory.Paper()}, testConfig(), WithSink(rec), WithSleeper(stopAfterFirstTick(cancel)))
	if err := s.Run(ctx, Params{Exchange: "paper", MinTradeVolume: 1}); err != nil {
		t.Fatal(err)
	}

	var states []string
	for _, e := range rec.of(domain.EventState) {
		states = append(states, e.State)
	}
	want := []string{"initializing", "running", "evaluating", "running", "stopped"}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
}

func TestNoStartingAssetIsFatal(t *testing.T) {
	ex := memory.Paper()
	rec := &recorder{}
	s := New(&fixedOpener{ex: ex}, testConfig(), WithSink(rec))

	err := s.Run(context.Background(), Params{Exchange: "paper", MinTradeVolume: 1e6})
	if !errors.Is(err, domain.ErrNoStartingAsset) {
		t.Fatalf("err = %v, want ErrNoStartingAsset", err)
	}
	if !slices.Contains(rec.messages(), MsgNoStart) {
		t.Fatalf("sink never told about missing start asset: %v", rec.messages())
	}
	if ex.BookCalls() != 0 {
		t.Fatal("must not fetch books without a starting asset")
	}
	if ex.Closes() != 1 {
		t.Fatalf("exchange closed %d times", ex.Closes())
	}
	if len(rec.of(domain.EventError)) != 1 {
		t.Fatal("expected one error event")
	}
	if s.Status().LastError == "" {
		t.Fatal("status should record the failure")
	}
}

func TestInitFailuresCloseExchange(t *testing.T) {
	boom := errors.New("unreachable")
	tests := []struct {
		name string
		ex   *memory.Exchange
	}{
		{"load markets", memory.Paper().FailLoadMarkets(boom)},
		{"fetch balance", memory.Paper().FailBalance(boom)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&fixedOpener{ex: tc.ex}, testConfig())
			err := s.Run(context.Background(), Params{Exchange: "paper", MinTradeVolume: 1})
			if !errors.Is(err, domain.ErrConnectivity) || !errors.Is(err, boom) {
				t.Fatalf("err = %v", err)
			}
			if tc.ex.Closes() != 1 {
				t.Fatalf("closes = %d", tc.ex.Closes())
			}
		})
	}
}

func TestOpenFailure(t *testing.T) {
	s := New(&fixedOpener{}, testConfig())
	err := s.Run(context.Background(), Params{Exchange: "kraken"})
	if !errors.Is(err, domain.ErrUnknownExchange) {
		t.Fatalf("err = %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s", s.State())
	}
}

func TestFeeFallsBackToDefault(t *testing.T) {
	ex := memory.Paper().SetTakerFee(0, errors.New("no key"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := testConfig()
	cfg.FeeRate = 0.002

	s := New(&fixedOpener{ex: ex}, cfg, WithSleeper(stopAfterFirstTick(cancel)))
	if err := s.Run(ctx, Params{Exchange: "paper", MinTradeVolume: 1}); err != nil {
		t.Fatal(err)
	}
	if s.Status().FeeRate != 0.002 {
		t.Fatalf("fee = %v", s.Status().FeeRate)
	}
}

// fivePairExchange lists markets whose USDT triangles span five pairs and
// blocks every book fetch until its context ends.
func fivePairExchange(started chan<- struct{}, observed *atomic.Int32) *memory.Exchange {
	ex := memory.New("paper").SetMarkets(
		domain.Market{Symbol: "BTC/USDT", Active: true},
		domain.Market{Symbol: "ETH/USDT", Active: true},
		domain.Market{Symbol: "SOL/USDT", Active: true},
		domain.Market{Symbol: "ETH/BTC", Active: true},
		domain.Market{Symbol: "SOL/BTC", Active: true},
	).SetBalance("USDT", 100).SetTakerFee(0.001, nil)
	ex.OnFetchOrderBook(func(ctx context.Context, _ domain.TradingPair) (domain.OrderBookSnapshot, error) {
		started <- struct{}{}
		<-ctx.Done()
		observed.Add(1)
		return domain.OrderBookSnapshot{}, ctx.Err()
	})
	return ex
}

func TestStopCancelsInFlightFetches(t *testing.T) {
	started := make(chan struct{}, 5)
	var observed atomic.Int32
	ex := fivePairExchange(started, &observed)
	rec := &recorder{}

	s := New(&fixedOpener{ex: ex}, testConfig(), WithSink(rec),
		WithSleeper(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	if _, err := s.Start(context.Background(), Params{Exchange: "paper", MinTradeVolume: 1}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for i := 0; i < 5; i++ {
		select {
		case <-started:
		case <-deadline:
			t.Fatalf("only %d fetches started", i)
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	if observed.Load() != 5 {
		t.Fatalf("%d of 5 fetches observed cancellation", observed.Load())
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %s", s.State())
	}
	if n := len(rec.of(domain.EventOpportunity)); n != 0 {
		t.Fatalf("cancelled tick produced %d opportunities", n)
	}
	for _, e := range rec.of(domain.EventState) {
		if e.State == "evaluating" {
			t.Fatal("cancelled tick must not be evaluated")
		}
	}
	if ex.Closes() != 1 {
		t.Fatalf("closes = %d", ex.Closes())
	}
	if err := s.Stop(); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("second stop = %v", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	ex := memory.Paper()
	blockOnTick := func(ctx context.Context, d time.Duration) error {
		if d == tick {
			<-ctx.Done()
		}
		return ctx.Err()
	}
	s := New(&fixedOpener{ex: ex}, testConfig(), WithSleeper(blockOnTick))
	p := Params{Exchange: "paper", MinTradeVolume: 1}

	id, err := s.Start(context.Background(), p)
	if err != nil || id == "" {
		t.Fatalf("start: %q %v", id, err)
	}
	if _, err := s.Start(context.Background(), p); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("second start = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	id2, err := s.Start(context.Background(), p)
	if err != nil || id2 == id {
		t.Fatalf("restart: %q %v", id2, err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if ex.Closes() != 2 {
		t.Fatalf("closes = %d, want one per session", ex.Closes())
	}
}

func TestStartSurvivesRequestContext(t *testing.T) {
	blockOnTick := func(ctx context.Context, d time.Duration) error {
		if d == tick {
			<-ctx.Done()
		}
		return ctx.Err()
	}
	s := New(&fixedOpener{ex: memory.Paper()}, testConfig(), WithSleeper(blockOnTick))
	reqCtx, cancel := context.WithCancel(context.Background())
	if _, err := s.Start(reqCtx, Params{Exchange: "paper", MinTradeVolume: 1}); err != nil {
		t.Fatal(err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
	if !s.State().Live() {
		t.Fatalf("session ended with its request: %s", s.State())
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverAllEligibleStarts(t *testing.T) {
	g := graph.Build([]domain.Market{
		{Symbol: "ETH/USDT", Active: true},
		{Symbol: "ETH/BTC", Active: true},
		{Symbol: "BTC/USDT", Active: true},
	})

	primary := New(nil, testConfig())
	if got := primary.discover(g, "USDT", []domain.Asset{"USDT", "ETH"}, nil); len(got) != 2 {
		t.Fatalf("primary start: %d triangles, want 2", len(got))
	}

	cfg := testConfig()
	cfg.AllEligibleStarts = true
	all := New(nil, cfg)
	if got := all.discover(g, "USDT", []domain.Asset{"USDT", "ETH"}, nil); len(got) != 4 {
		t.Fatalf("all starts: %d triangles, want 4", len(got))
	}
	if got := all.discover(g, "USDT", []domain.Asset{"USDT", "USDT"}, nil); len(got) != 2 {
		t.Fatalf("duplicate walks kept: %d", len(got))
	}
}

func TestStartRequiresExchange(t *testing.T) {
	s := New(&fixedOpener{}, testConfig())
	if _, err := s.Start(context.Background(), Params{}); err == nil {
		t.Fatal("expected error for empty exchange id")
	}
	if err := s.Stop(); !errors.Is(err, domain.ErrNotRunning) {
		t.Fatalf("stop idle = %v", err)
	}
}
