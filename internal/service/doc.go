// Package service provides the kernel's service registry for dependency
// injection into hosted apps.
//
// The registry maps well-known names to shared kernel services (event bus,
// contract registry, job queue, guard, settings, an LLM provider slot) so
// apps resolve collaborators by name instead of holding construction-time
// references.
//
// Components:
//   - Registry: Thread-safe name-to-object catalog
//   - Resolve: Typed lookup helper
//
// Example Usage:
//
//	registry := service.NewRegistry()
//	registry.Register(service.NameBus, eventBus)
//	b, err := service.Resolve[*bus.Bus](registry, service.NameBus)
package service
