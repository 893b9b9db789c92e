package agents

import (
	"errors"
	"log/slog"
	"testing"

	"roundtable/internal/domain"
)

func testLogger() *slog.Logger { return slog.Default() }

func scriptedFactory(logger *slog.Logger) Factory {
	return func(cfg domain.AgentConfig) (domain.Agent, error) {
		return NewScripted(cfg, Hooks{}, logger), nil
	}
}

func testConfig(id string) domain.AgentConfig {
	return domain.AgentConfig{
		ID:      id,
		Persona: domain.Persona{Name: id, Role: "maintainer"},
		Domain:  domain.AgentDomain{WritePaths: []string{"src/" + id + "/**"}},
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(testLogger())
	r.RegisterType("scripted", scriptedFactory(testLogger()))

	created, err := r.Create("scripted", testConfig("writer"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.Get("writer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != created {
		t.Error("Get returned a different instance")
	}
	if got.Status() != domain.AgentIdle {
		t.Errorf("new agent status = %q, want idle", got.Status())
	}
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Create("nonexistent", testConfig("x"))
	if !errors.Is(err, domain.ErrUnknownAgentType) {
		t.Errorf("expected ErrUnknownAgentType, got %v", err)
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Get("ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryOverwriteSameID(t *testing.T) {
	r := NewRegistry(testLogger())
	r.RegisterType("scripted", scriptedFactory(testLogger()))

	first, _ := r.Create("scripted", testConfig("writer"))
	second, err := r.Create("scripted", testConfig("writer"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, _ := r.Get("writer")
	if got == first || got != second {
		t.Error("re-creating an id must overwrite the prior agent")
	}
	if n := len(r.All()); n != 1 {
		t.Errorf("All() len = %d, want 1", n)
	}
}

func TestRegistryAllPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(testLogger())
	r.RegisterType("scripted", scriptedFactory(testLogger()))

	for _, id := range []string{"gamma", "alpha", "beta"} {
		if _, err := r.Create("scripted", testConfig(id)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	var ids []string
	for _, a := range r.All() {
		ids = append(ids, a.ID())
	}
	want := []string{"gamma", "alpha", "beta"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("All() order = %v, want %v", ids, want)
		}
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(testLogger())
	r.RegisterType("scripted", scriptedFactory(testLogger()))
	r.Create("scripted", testConfig("writer"))

	if !r.Remove("writer") {
		t.Error("Remove = false for existing agent")
	}
	if r.Remove("writer") {
		t.Error("Remove = true for already-removed agent")
	}
	if len(r.All()) != 0 {
		t.Error("removed agent still listed")
	}
}
