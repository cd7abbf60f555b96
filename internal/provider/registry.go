package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the known provider descriptors keyed by name.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{descs: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Registering the same name twice is a
// programming error.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("descriptor must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descs[d.Name]; exists {
		return fmt.Errorf("provider %q already registered", d.Name)
	}

	r.descs[d.Name] = d

	return nil
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descs[name]

	return d, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descs))
	for name := range r.descs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
