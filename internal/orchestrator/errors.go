package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for lookup failures
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUnknownPersona       = errors.New("unknown persona")
	ErrUnknownStage         = errors.New("conversation references a stage not in its workflow")
)

// InvalidActionError is returned when the requested action is not allowed
// in the conversation's current stage. It is a user-input error: the
// transcript is never modified and the caller should correct the request.
type InvalidActionError struct {
	Action  string
	StageID string
	Allowed []string
}

func (e *InvalidActionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("action %q is not valid in stage %q: the stage is terminal and offers no actions", e.Action, e.StageID)
	}
	return fmt.Sprintf("action %q is not valid in stage %q: valid actions are %s", e.Action, e.StageID, strings.Join(e.Allowed, ", "))
}

// ActionRequiredError is returned when a stage offers more than one action
// (or none) and the caller supplied no explicit action
type ActionRequiredError struct {
	StageID string
	Allowed []string
}

func (e *ActionRequiredError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("stage %q is terminal: no action can be taken", e.StageID)
	}
	return fmt.Sprintf("stage %q requires an explicit action: valid actions are %s", e.StageID, strings.Join(e.Allowed, ", "))
}

// GenerationError wraps a content generation failure. The stage pointer is
// unchanged, so a retry with the same inputs is safe.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("content generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
