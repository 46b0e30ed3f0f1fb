package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
	"github.com/alanyoungcy/triarb/internal/fetcher"
)

// Params are the per-session inputs of a scan.
type Params struct {
	Exchange       string             `json:"exchange"`
	Credentials    domain.Credentials `json:"credentials"`
	Whitelist      []string           `json:"whitelist,omitempty"`
	Blacklist      []string           `json:"blacklist,omitempty"`
	MinTradeVolume float64            `json:"min_trade_volume"`
	Sandbox        bool               `json:"sandbox"`
}

// Status is a point-in-time view of the current or last session.
type Status struct {
	SessionID     string    `json:"session_id,omitempty"`
	State         string    `json:"state"`
	Exchange      string    `json:"exchange,omitempty"`
	StartAsset    string    `json:"start_asset,omitempty"`
	Eligible      []string  `json:"eligible,omitempty"`
	FeeRate       float64   `json:"fee_rate,omitempty"`
	Triangles     int       `json:"triangles"`
	Pairs         int       `json:"pairs"`
	Ticks         int64     `json:"ticks"`
	Opportunities int64     `json:"opportunities"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// session owns everything one scan creates: its context, fetcher, cache and
// gate. Nothing here is shared with another session.
type session struct {
	id     string
	params Params
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	fetcher *fetcher.Fetcher
	status  Status
	err     error
}

func newSession(id string, p Params, cancel context.CancelFunc) *session {
	return &session{
		id:     id,
		params: p,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
		status: Status{
			SessionID: id,
			State:     StateIdle.String(),
			Exchange:  p.Exchange,
			StartedAt: time.Now().UTC(),
		},
	}
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.status.State = st.String()
	s.mu.Unlock()
}

func (s *session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setFetcher(f *fetcher.Fetcher) {
	s.mu.Lock()
	s.fetcher = f
	s.mu.Unlock()
}

// cancelInFlight cancels outstanding order book fetches, if the fetcher
// exists yet.
func (s *session) cancelInFlight() int {
	s.mu.Lock()
	f := s.fetcher
	s.mu.Unlock()
	if f == nil {
		return 0
	}
	return f.CancelInFlight()
}

func (s *session) update(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *session) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Eligible = append([]string(nil), s.status.Eligible...)
	return st
}

func (s *session) finish(err error) {
	s.mu.Lock()
	s.err = err
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()
}

func (s *session) result() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
