package service

import (
	"sync"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// ring keeps the last n opportunities in memory.
type ring struct {
	mu    sync.RWMutex
	buf   []domain.Opportunity
	next  int
	count int
}

func newRing(n int) *ring {
	if n <= 0 {
		n = 1
	}
	return &ring{buf: make([]domain.Opportunity, n)}
}

func (r *ring) push(o domain.Opportunity) {
	r.mu.Lock()
	r.buf[r.next] = o
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// recent returns up to limit entries, newest first. A non-positive limit
// returns everything held.
func (r *ring) recent(limit int) []domain.Opportunity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Opportunity, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}
