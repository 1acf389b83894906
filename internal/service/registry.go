package service

import (
	"fmt"
	"sort"
	"sync"
)

// Well-known service names.
const (
	NameBus       = "bus"
	NameContracts = "contracts"
	NameJobs      = "jobs"
	NameGuard     = "guard"
	NameSettings  = "settings"
	NameAudit     = "audit"
	NameLLM       = "llm"
)

// Registry manages service registration and lookup.
type Registry struct {
	services sync.Map
}

// NewRegistry creates a new service registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a service under a name. Names must be non-empty; re-register
// to replace, which is how tests swap in fakes.
func (r *Registry) Register(name string, svc interface{}) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	r.services.Store(name, svc)
	return nil
}

// Unregister removes a service by name.
func (r *Registry) Unregister(name string) {
	r.services.Delete(name)
}

// Get retrieves a service by name.
func (r *Registry) Get(name string) (interface{}, bool) {
	return r.services.Load(name)
}

// Names returns all registered service names, sorted.
func (r *Registry) Names() []string {
	var names []string
	r.services.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Stats returns registry statistics.
func (r *Registry) Stats() map[string]interface{} {
	names := r.Names()
	return map[string]interface{}{
		"total_services": len(names),
		"names":          names,
	}
}

// Resolve retrieves a service by name and asserts its type.
func Resolve[T any](r *Registry, name string) (T, error) {
	var zero T
	val, ok := r.Get(name)
	if !ok {
		return zero, fmt.Errorf("service not found: %s", name)
	}
	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has unexpected type %T", name, val)
	}
	return typed, nil
}
