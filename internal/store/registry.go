package store

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Store for one backend type
type Factory interface {
	Create(opts Options) (Store, error)
	Type() string
}

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Type()] = factory
}

func (r *Registry) Create(opts Options) (Store, error) {
	r.mu.RLock()
	factory, exists := r.factories[opts.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("store type %s not registered", opts.Type)
	}

	return factory.Create(opts)
}

func (r *Registry) AvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storeType := range r.factories {
		types = append(types, storeType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[storeType]
	return exists
}

var DefaultRegistry = NewRegistry()

// Register adds a factory to the default registry. Backends call this from init.
func Register(factory Factory) {
	DefaultRegistry.Register(factory)
}

// Create builds a store from the default registry
func Create(opts Options) (Store, error) {
	return DefaultRegistry.Create(opts)
}
