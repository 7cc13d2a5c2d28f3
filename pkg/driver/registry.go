package driver

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the known drivers
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// defaultRegistry is where drivers register themselves from init
var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
	}
}

// Default returns the registry drivers register into
func Default() *Registry {
	return defaultRegistry
}

// MustRegister adds a driver to the default registry from init, where a
// failure is a programming error
func MustRegister(d Descriptor) {
	if err := defaultRegistry.Register(d); err != nil {
		panic(fmt.Sprintf("failed to register driver: %v", err))
	}
}

// Register adds a driver to the registry
func (r *Registry) Register(d Descriptor) error {
	if d == nil {
		return fmt.Errorf("driver cannot be nil")
	}

	name := d.Name()
	if name == "" {
		return fmt.Errorf("driver name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[name]; exists {
		return fmt.Errorf("driver %q already registered", name)
	}

	r.descriptors[name] = d
	return nil
}

// Get retrieves a driver by name
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.descriptors[name]
	if !exists {
		return nil, fmt.Errorf("driver %q not found", name)
	}

	return d, nil
}

// List returns all registered driver names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Descriptors returns the registered drivers ordered by name, which is the
// order discovery probes them in
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		descriptors = append(descriptors, d)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name() < descriptors[j].Name()
	})
	return descriptors
}
