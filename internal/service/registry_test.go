package service

import (
	"testing"
)

type fakeBus struct {
	published int
}

func TestRegister(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(NameBus, &fakeBus{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := r.Get(NameBus); !ok {
		t.Error("Service should be registered")
	}
}

func TestRegisterEmptyName(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("", &fakeBus{}); err == nil {
		t.Error("Empty service name should be rejected")
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()

	first := &fakeBus{published: 1}
	second := &fakeBus{published: 2}
	r.Register(NameBus, first)
	r.Register(NameBus, second)

	got, err := Resolve[*fakeBus](r, NameBus)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != second {
		t.Error("Re-registration should replace the prior service")
	}
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(NameJobs, &fakeBus{})
	r.Unregister(NameJobs)

	if _, ok := r.Get(NameJobs); ok {
		t.Error("Service should be removed")
	}
}

func TestResolveTypeMismatch(t *testing.T) {
	r := NewRegistry()
	r.Register(NameLLM, "not a bus")

	if _, err := Resolve[*fakeBus](r, NameLLM); err == nil {
		t.Error("Resolve should fail on type mismatch")
	}
}

func TestResolveMissing(t *testing.T) {
	r := NewRegistry()

	if _, err := Resolve[*fakeBus](r, "nope"); err == nil {
		t.Error("Resolve should fail for unknown service")
	}
}

func TestNames(t *testing.T) {
	r := NewRegistry()
	r.Register(NameJobs, &fakeBus{})
	r.Register(NameBus, &fakeBus{})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("Expected 2 names, got %d", len(names))
	}
	if names[0] != NameBus || names[1] != NameJobs {
		t.Errorf("Names should be sorted, got %v", names)
	}
}

func TestStats(t *testing.T) {
	r := NewRegistry()
	r.Register(NameBus, &fakeBus{})

	stats := r.Stats()
	if stats["total_services"] != 1 {
		t.Errorf("Expected 1 service, got %v", stats["total_services"])
	}
}
