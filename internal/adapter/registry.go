package adapter

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Options tunes every adapter a registry builds.
type Options struct {
	// RatePerSecond limits vendor calls per adapter; 0 disables limiting.
	RatePerSecond float64

	// Burst is the limiter bucket size (minimum 1).
	Burst int
}

// Registry maps provider names to adapters. Lookups are case-insensitive.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]CrmAdapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]CrmAdapter{}}
}

// DefaultRegistry registers the four built-in providers over source.
func DefaultRegistry(source RecordSource, opts Options) *Registry {
	r := NewRegistry()
	for _, a := range []CrmAdapter{
		NewSalesforce(source, opts),
		NewHubspot(source, opts),
		NewZoho(source, opts),
		NewPipedrive(source, opts),
	} {
		// Built-in names are distinct; Register cannot fail here.
		_ = r.Register(a)
	}
	return r
}

// Register adds an adapter. Registering a provider twice is an error.
func (r *Registry) Register(a CrmAdapter) error {
	name := normalizeProvider(a.Provider())
	if name == "" {
		return fmt.Errorf("register adapter: empty provider name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("register adapter: provider %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Lookup returns the adapter for provider.
func (r *Registry) Lookup(provider string) (CrmAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[normalizeProvider(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	return a, nil
}

// Providers lists registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
