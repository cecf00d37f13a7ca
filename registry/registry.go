// Package registry maps configuration kinds to provider factories.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/backends"
)

// Factory creates a fresh, unopened provider instance.
type Factory func() (backends.Provider, error)

// Registry holds one factory per configuration kind. It is safe for
// concurrent use and may be shared by several storage instances.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// NewDefault creates a registry with every built-in provider registered.
// Providers it creates log through logger.
func NewDefault(logger *zap.Logger) *Registry {
	r := New()
	RegisterBuiltins(r, logger)
	return r
}

// Register binds kind to factory. The first registration of a kind wins:
// later calls return false and leave it untouched.
func (r *Registry) Register(kind string, factory Factory) bool {
	if kind == "" || factory == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return false
	}
	r.factories[kind] = factory
	return true
}

// Resolve creates a provider for kind.
func (r *Registry) Resolve(kind string) (backends.Provider, error) {
	r.mu.RLock()
	factory, exists := r.factories[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, backends.NewError(backends.CodeNoProviderFound,
			fmt.Sprintf("no provider registered for configuration kind %q", kind), nil)
	}

	provider, err := factory()
	if err != nil {
		return nil, backends.NewError(backends.CodeProviderInstantiationFailed,
			fmt.Sprintf("failed to create provider for %q", kind), err)
	}
	if provider == nil {
		return nil, backends.NewError(backends.CodeProviderInstantiationFailed,
			fmt.Sprintf("factory for %q returned no provider", kind), nil)
	}
	return provider, nil
}

// Has reports whether kind is registered
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[kind]
	return exists
}

// Kinds lists the registered kinds in ascending order
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Clone copies the registrations into a new, independent registry
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := New()
	for kind, factory := range r.factories {
		clone.factories[kind] = factory
	}
	return clone
}
