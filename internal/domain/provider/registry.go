package provider

import "fmt"

// Registry resolves adapters by name. Accounts remember which provider created them.
type Registry struct {
	adapters    map[string]Adapter
	defaultName string
}

// NewRegistry builds a registry; defaultName must be one of the adapters
func NewRegistry(defaultName string, adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters)), defaultName: defaultName}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	if _, ok := r.adapters[defaultName]; !ok {
		return nil, fmt.Errorf("default payout provider %q is not registered", defaultName)
	}
	return r, nil
}

// Get returns the named adapter
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("payout provider %q is not registered", name)
	}
	return a, nil
}

// Default returns the adapter new accounts are created with
func (r *Registry) Default() Adapter {
	return r.adapters[r.defaultName]
}

// Names lists registered providers
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
