// Package persona defines the companion identities available to clients
// and a read-only registry over them.
package persona

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/common/logger"
)

// ErrDuplicatePersona is returned when registering an id twice
var ErrDuplicatePersona = errors.New("persona already registered")

// Persona describes one companion identity. Tone and prompt are
// pass-through configuration for content generation; they never affect
// workflow transitions.
type Persona struct {
	ID           string
	Name         string
	Description  string
	SystemPrompt string
	Tones        []string
	DefaultTone  string
	Enabled      bool
}

// Registry holds the persona definitions, populated at startup and
// read-only afterwards
type Registry struct {
	mu       sync.RWMutex
	personas map[string]*Persona
	logger   *logger.Logger
}

// NewRegistry creates an empty persona registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		personas: make(map[string]*Persona),
		logger:   log.WithFields(zap.String("component", "persona-registry")),
	}
}

// Register adds a persona definition
func (r *Registry) Register(p *Persona) error {
	if p == nil || p.ID == "" {
		return errors.New("persona id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.personas[p.ID]; exists {
		return fmt.Errorf("persona %q: %w", p.ID, ErrDuplicatePersona)
	}
	r.personas[p.ID] = p
	return nil
}

// Get returns a persona by id
func (r *Registry) Get(id string) (*Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.personas[id]
	return p, ok
}

// List returns all enabled personas sorted by id
func (r *Registry) List() []*Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Persona, 0, len(r.personas))
	for _, p := range r.personas {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDefaults registers the built-in personas
func (r *Registry) LoadDefaults() {
	for _, p := range DefaultPersonas() {
		if err := r.Register(p); err != nil {
			r.logger.Warn("skipping duplicate default persona", zap.String("persona_id", p.ID))
		}
	}
}
