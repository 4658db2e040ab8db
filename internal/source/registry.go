package source

import (
	"fmt"
	"sync"
)

// Registry holds the adapters an ingestion cycle runs, in registration order.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	names    map[string]bool
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{names: make(map[string]bool)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Names must be unique.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("register adapter: nil adapter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[a.Name()] {
		return fmt.Errorf("register adapter: duplicate name %q", a.Name())
	}
	r.names[a.Name()] = true
	r.adapters = append(r.adapters, a)
	return nil
}

// Adapters returns a copy of the registered adapters.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Adapter(nil), r.adapters...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
