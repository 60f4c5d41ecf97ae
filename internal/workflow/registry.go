package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/common/logger"
)

// ErrDuplicateWorkflow is returned when registering a (persona, mode) pair
// that already has a workflow
var ErrDuplicateWorkflow = errors.New("workflow already registered for persona and mode")

// Key identifies a registered workflow
type Key struct {
	PersonaID string
	Mode      string
}

// Registry maps (persona, mode) pairs to workflows. It is populated during
// startup and read-only afterwards; a mode without a registered workflow
// means the conversation runs in free-form chat.
type Registry struct {
	mu        sync.RWMutex
	workflows map[Key]*Workflow
	logger    *logger.Logger
}

// NewRegistry creates an empty workflow registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		workflows: make(map[Key]*Workflow),
		logger:    log.WithFields(zap.String("component", "workflow-registry")),
	}
}

// Register adds a workflow under a (persona, mode) key. Registering the
// same key twice fails rather than silently overwriting an authored graph.
func (r *Registry) Register(personaID string, wf *Workflow) error {
	if personaID == "" {
		return errors.New("persona id is required")
	}
	if wf == nil {
		return errors.New("workflow is required")
	}

	key := Key{PersonaID: personaID, Mode: wf.Mode()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[key]; exists {
		return fmt.Errorf("persona %q mode %q: %w", personaID, wf.Mode(), ErrDuplicateWorkflow)
	}

	r.workflows[key] = wf
	r.logger.Debug("registered workflow",
		zap.String("persona_id", personaID),
		zap.String("mode", wf.Mode()),
		zap.Int("stages", wf.Len()))
	return nil
}

// Lookup returns the workflow for a (persona, mode) pair. Absence is a
// normal outcome, not an error.
func (r *Registry) Lookup(personaID, mode string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[Key{PersonaID: personaID, Mode: mode}]
	return wf, ok
}

// List returns all registered keys sorted by persona then mode
func (r *Registry) List() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.workflows))
	for key := range r.workflows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PersonaID != keys[j].PersonaID {
			return keys[i].PersonaID < keys[j].PersonaID
		}
		return keys[i].Mode < keys[j].Mode
	})
	return keys
}

// ListModes returns the modes registered for one persona, sorted
func (r *Registry) ListModes(personaID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var modes []string
	for key := range r.workflows {
		if key.PersonaID == personaID {
			modes = append(modes, key.Mode)
		}
	}
	sort.Strings(modes)
	return modes
}

// LoadDefaults registers the built-in workflows for all default personas.
// Panics on an invalid built-in definition since that is a programming
// error, not a runtime condition.
func (r *Registry) LoadDefaults() {
	for personaID, workflows := range DefaultWorkflows() {
		for _, wf := range workflows {
			if err := r.Register(personaID, wf); err != nil {
				panic(fmt.Sprintf("invalid built-in workflow: %v", err))
			}
		}
	}
}
