// Package workflow defines the stage-graph model for structured
// conversation modes. A workflow is a named, directed graph of stages;
// named actions move a conversation from one stage to the next. Workflows
// are validated once at construction and never mutated afterwards, so they
// are safe for concurrent use without locking.
package workflow

import (
	"errors"
	"fmt"
)

// Validation errors returned by NewWorkflow
var (
	ErrNoStages           = errors.New("workflow has no stages")
	ErrDuplicateStage     = errors.New("duplicate stage id")
	ErrUnknownInitial     = errors.New("initial stage not found in workflow")
	ErrDanglingNextStage  = errors.New("next stage reference not found in workflow")
	ErrDanglingAction     = errors.New("action targets a stage not found in workflow")
	ErrUnmappedAction     = errors.New("allowed action has no transition entry")
	ErrActionOutOfGraph   = errors.New("action targets a stage outside the source stage's next stages")
	ErrTerminalMismatch   = errors.New("terminal flag inconsistent with next stages")
	ErrTerminalHasActions = errors.New("terminal stage declares allowed actions")
	ErrUnreachableStage   = errors.New("stage is not reachable from any other stage")
)

// Stage describes one step of a workflow
type Stage struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`

	// AllowedActions lists the actions that may be invoked while in this
	// stage, in display order.
	AllowedActions []string `json:"allowed_actions,omitempty"`

	// NextStages lists the stage ids reachable from this stage, in display
	// order. Empty iff the stage is terminal.
	NextStages []string `json:"next_stages,omitempty"`

	// Terminal marks a stage with no outgoing transitions.
	Terminal bool `json:"terminal"`
}

// Workflow is a validated, immutable stage graph for one conversation mode
type Workflow struct {
	mode           string
	initialStageID string
	stages         map[string]*Stage
	order          []string
	actionToStage  map[string]string
}

// NewWorkflow builds and validates a workflow. The stage slice order is
// preserved for display. Returns a validation error describing the first
// problem found; an invalid workflow must never reach the registry.
func NewWorkflow(mode, initialStageID string, stages []*Stage, actionToStage map[string]string) (*Workflow, error) {
	if mode == "" {
		return nil, errors.New("workflow mode is required")
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("workflow %q: %w", mode, ErrNoStages)
	}

	w := &Workflow{
		mode:           mode,
		initialStageID: initialStageID,
		stages:         make(map[string]*Stage, len(stages)),
		order:          make([]string, 0, len(stages)),
		actionToStage:  make(map[string]string, len(actionToStage)),
	}

	for _, s := range stages {
		if s.ID == "" {
			return nil, fmt.Errorf("workflow %q: stage with empty id", mode)
		}
		if _, exists := w.stages[s.ID]; exists {
			return nil, fmt.Errorf("workflow %q: stage %q: %w", mode, s.ID, ErrDuplicateStage)
		}
		w.stages[s.ID] = s
		w.order = append(w.order, s.ID)
	}
	for action, target := range actionToStage {
		w.actionToStage[action] = target
	}

	if err := w.validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workflow) validate() error {
	if _, ok := w.stages[w.initialStageID]; !ok {
		return fmt.Errorf("workflow %q: initial stage %q: %w", w.mode, w.initialStageID, ErrUnknownInitial)
	}

	for action, target := range w.actionToStage {
		if _, ok := w.stages[target]; !ok {
			return fmt.Errorf("workflow %q: action %q -> %q: %w", w.mode, action, target, ErrDanglingAction)
		}
	}

	inbound := make(map[string]bool, len(w.stages))
	for _, id := range w.order {
		s := w.stages[id]

		if s.Terminal != (len(s.NextStages) == 0) {
			return fmt.Errorf("workflow %q: stage %q: %w", w.mode, id, ErrTerminalMismatch)
		}
		if s.Terminal && len(s.AllowedActions) > 0 {
			return fmt.Errorf("workflow %q: stage %q: %w", w.mode, id, ErrTerminalHasActions)
		}

		next := make(map[string]bool, len(s.NextStages))
		for _, nextID := range s.NextStages {
			if _, ok := w.stages[nextID]; !ok {
				return fmt.Errorf("workflow %q: stage %q -> %q: %w", w.mode, id, nextID, ErrDanglingNextStage)
			}
			next[nextID] = true
			inbound[nextID] = true
		}

		for _, action := range s.AllowedActions {
			target, ok := w.actionToStage[action]
			if !ok {
				return fmt.Errorf("workflow %q: stage %q action %q: %w", w.mode, id, action, ErrUnmappedAction)
			}
			if !next[target] {
				return fmt.Errorf("workflow %q: stage %q action %q -> %q: %w", w.mode, id, action, target, ErrActionOutOfGraph)
			}
		}
	}

	// Every stage other than the initial one must be reachable via some
	// other stage's next set.
	for _, id := range w.order {
		if id == w.initialStageID {
			continue
		}
		if !inbound[id] {
			return fmt.Errorf("workflow %q: stage %q: %w", w.mode, id, ErrUnreachableStage)
		}
	}

	return nil
}

// Mode returns the workflow's mode identifier
func (w *Workflow) Mode() string {
	return w.mode
}

// InitialStageID returns the id of the stage a new conversation starts in
func (w *Workflow) InitialStageID() string {
	return w.initialStageID
}

// Stage returns the stage with the given id
func (w *Workflow) Stage(id string) (*Stage, bool) {
	s, ok := w.stages[id]
	return s, ok
}

// Stages returns all stages in declaration order
func (w *Workflow) Stages() []*Stage {
	out := make([]*Stage, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.stages[id])
	}
	return out
}

// ActionTarget resolves an action to its destination stage id
func (w *Workflow) ActionTarget(action string) (string, bool) {
	target, ok := w.actionToStage[action]
	return target, ok
}

// Len returns the number of stages
func (w *Workflow) Len() int {
	return len(w.order)
}
