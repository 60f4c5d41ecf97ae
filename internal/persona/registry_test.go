package persona

import (
	"errors"
	"testing"

	"github.com/consilio/consilio/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func TestRegistryLoadDefaults(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	reg.LoadDefaults()

	personas := reg.List()
	if len(personas) != 2 {
		t.Fatalf("expected 2 default personas, got %d", len(personas))
	}

	p, ok := reg.Get("ccc")
	if !ok {
		t.Fatal("expected to find persona 'ccc'")
	}
	if p.SystemPrompt == "" {
		t.Error("default persona has empty system prompt")
	}
	if p.DefaultTone == "" {
		t.Error("default persona has no default tone")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	p := &Persona{ID: "dup", Name: "Dup", Enabled: true}

	if err := reg.Register(p); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := reg.Register(p)
	if !errors.Is(err, ErrDuplicatePersona) {
		t.Errorf("expected ErrDuplicatePersona, got %v", err)
	}
}

func TestRegistryGetMiss(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	if _, ok := reg.Get("missing"); ok {
		t.Error("expected miss for unknown persona")
	}
}

func TestRegistryListSkipsDisabled(t *testing.T) {
	reg := NewRegistry(testLogger(t))
	_ = reg.Register(&Persona{ID: "on", Enabled: true})
	_ = reg.Register(&Persona{ID: "off", Enabled: false})

	personas := reg.List()
	if len(personas) != 1 || personas[0].ID != "on" {
		t.Errorf("expected only enabled personas, got %v", personas)
	}
}
