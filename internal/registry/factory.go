package registry

import (
	"fmt"
	"sync"

	"github.com/promptforge/backend/internal/service"
	"github.com/promptforge/backend/internal/shared/types"
)

// Constructor builds an app instance from its manifest. The service registry
// is how constructors reach shared kernel services.
type Constructor func(manifest types.AppManifest, services *service.Registry) (types.App, error)

// Factory is the static table mapping manifest entry modules to
// constructors. It replaces by-name dynamic loading: everything an app can
// be is registered here at build time, with the scripted loader as the one
// narrow dynamic path.
type Factory struct {
	mu    sync.RWMutex
	table map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{table: make(map[string]Constructor)}
}

// Register binds an entry module name to a constructor.
func (f *Factory) Register(module string, fn Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table[module] = fn
}

// New instantiates an app for a manifest.
func (f *Factory) New(manifest types.AppManifest, services *service.Registry) (types.App, error) {
	f.mu.RLock()
	fn, ok := f.table[manifest.Entry.Module]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown entry module %q", manifest.Entry.Module)
	}
	return fn(manifest, services)
}

// Modules returns the registered entry module names.
func (f *Factory) Modules() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.table))
	for name := range f.table {
		out = append(out, name)
	}
	return out
}
