// Package exchange selects exchange connectors by identifier and holds the
// helpers they share.
package exchange

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Options are connector settings that do not come from credentials.
type Options struct {
	Sandbox bool
	BaseURL string // overrides the connector's default endpoint when set
	Depth   int    // order book levels to request
	Logger  *slog.Logger
}

// Factory opens one exchange handle. The caller owns the handle and must
// Close it.
type Factory func(creds domain.Credentials, opts Options) (domain.Exchange, error)

// Registry maps exchange identifiers to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add connectors.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Identifiers are case-insensitive.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(id)] = f
}

// Open creates a handle for id.
func (r *Registry) Open(id string, creds domain.Credentials, opts Options) (domain.Exchange, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange: open %q: %w", id, domain.ErrUnknownExchange)
	}
	ex, err := f(creds, opts)
	if err != nil {
		return nil, fmt.Errorf("exchange: open %q: %w", id, err)
	}
	return ex, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(id)]
	return ok
}

// List returns all registered identifiers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
