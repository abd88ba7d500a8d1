package suggest

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoProvider is returned when no registered provider is usable.
var ErrNoProvider = errors.New("no configured suggestion provider")

// Info describes a provider for listings.
type Info struct {
	Name         string
	DefaultModel string
	EnvKey       string
	Description  string
}

type entry struct {
	provider Provider
	info     Info
}

// Registry holds suggestion providers in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds p under its own name.
func (r *Registry) Register(p Provider, info Info) error {
	if p == nil {
		return fmt.Errorf("cannot register nil provider")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	info.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.entries[name] = entry{provider: p, info: info}
	r.order = append(r.order, name)
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return e.provider, nil
}

// Info returns the listing details of a provider.
func (r *Registry) Info(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.info, ok
}

// List returns provider names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Unregister removes a provider. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Available returns the names of providers that pass Validate.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.order {
		if r.entries[name].provider.Validate() == nil {
			names = append(names, name)
		}
	}
	return names
}

// Pick returns the preferred provider when it validates, otherwise the
// first provider that does.
func (r *Registry) Pick(preferred string) (Provider, error) {
	if preferred != "" {
		p, err := r.Get(preferred)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("provider %s: %w", preferred, err)
		}
		return p, nil
	}

	available := r.Available()
	if len(available) == 0 {
		return nil, ErrNoProvider
	}
	return r.Get(available[0])
}
