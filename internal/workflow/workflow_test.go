package workflow

import (
	"errors"
	"testing"
)

// linearStages returns a valid two-stage chain for tests
func linearStages() []*Stage {
	return []*Stage{
		{
			ID:             "start",
			Label:          "Start",
			Description:    "First stage",
			AllowedActions: []string{"advance"},
			NextStages:     []string{"end"},
		},
		{
			ID:          "end",
			Label:       "End",
			Description: "Last stage",
			Terminal:    true,
		},
	}
}

func linearActions() map[string]string {
	return map[string]string{"advance": "end"}
}

func TestNewWorkflow(t *testing.T) {
	wf, err := NewWorkflow("test_mode", "start", linearStages(), linearActions())
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}
	if wf.Mode() != "test_mode" {
		t.Errorf("expected mode 'test_mode', got %q", wf.Mode())
	}
	if wf.InitialStageID() != "start" {
		t.Errorf("expected initial stage 'start', got %q", wf.InitialStageID())
	}
	if wf.Len() != 2 {
		t.Errorf("expected 2 stages, got %d", wf.Len())
	}
}

func TestNewWorkflowNoStages(t *testing.T) {
	_, err := NewWorkflow("test_mode", "start", nil, nil)
	if !errors.Is(err, ErrNoStages) {
		t.Errorf("expected ErrNoStages, got %v", err)
	}
}

func TestNewWorkflowDuplicateStage(t *testing.T) {
	stages := linearStages()
	stages = append(stages, &Stage{ID: "start", Terminal: true})
	_, err := NewWorkflow("test_mode", "start", stages, linearActions())
	if !errors.Is(err, ErrDuplicateStage) {
		t.Errorf("expected ErrDuplicateStage, got %v", err)
	}
}

func TestNewWorkflowUnknownInitial(t *testing.T) {
	_, err := NewWorkflow("test_mode", "missing", linearStages(), linearActions())
	if !errors.Is(err, ErrUnknownInitial) {
		t.Errorf("expected ErrUnknownInitial, got %v", err)
	}
}

func TestNewWorkflowDanglingNextStage(t *testing.T) {
	stages := linearStages()
	stages[0].NextStages = []string{"nowhere"}
	_, err := NewWorkflow("test_mode", "start", stages, map[string]string{"advance": "nowhere"})
	if !errors.Is(err, ErrDanglingNextStage) && !errors.Is(err, ErrDanglingAction) {
		t.Errorf("expected a dangling reference error, got %v", err)
	}
}

func TestNewWorkflowDanglingActionTarget(t *testing.T) {
	_, err := NewWorkflow("test_mode", "start", linearStages(), map[string]string{"advance": "nowhere"})
	if !errors.Is(err, ErrDanglingAction) {
		t.Errorf("expected ErrDanglingAction, got %v", err)
	}
}

func TestNewWorkflowUnmappedAction(t *testing.T) {
	_, err := NewWorkflow("test_mode", "start", linearStages(), map[string]string{})
	if !errors.Is(err, ErrUnmappedAction) {
		t.Errorf("expected ErrUnmappedAction, got %v", err)
	}
}

func TestNewWorkflowActionOutOfGraph(t *testing.T) {
	stages := []*Stage{
		{
			ID:             "start",
			AllowedActions: []string{"advance"},
			NextStages:     []string{"middle"},
		},
		{
			ID:             "middle",
			AllowedActions: []string{"finish"},
			NextStages:     []string{"end"},
		},
		{ID: "end", Terminal: true},
	}
	// "advance" jumps straight to "end", which is not in start's next set
	actions := map[string]string{"advance": "end", "finish": "end"}
	_, err := NewWorkflow("test_mode", "start", stages, actions)
	if !errors.Is(err, ErrActionOutOfGraph) {
		t.Errorf("expected ErrActionOutOfGraph, got %v", err)
	}
}

func TestNewWorkflowTerminalMismatch(t *testing.T) {
	stages := linearStages()
	stages[1].Terminal = false
	_, err := NewWorkflow("test_mode", "start", stages, linearActions())
	if !errors.Is(err, ErrTerminalMismatch) {
		t.Errorf("expected ErrTerminalMismatch, got %v", err)
	}
}

func TestNewWorkflowTerminalHasActions(t *testing.T) {
	stages := linearStages()
	stages[1].AllowedActions = []string{"advance"}
	_, err := NewWorkflow("test_mode", "start", stages, linearActions())
	if !errors.Is(err, ErrTerminalHasActions) {
		t.Errorf("expected ErrTerminalHasActions, got %v", err)
	}
}

func TestNewWorkflowUnreachableStage(t *testing.T) {
	stages := linearStages()
	stages = append(stages, &Stage{ID: "orphan", Terminal: true})
	_, err := NewWorkflow("test_mode", "start", stages, linearActions())
	if !errors.Is(err, ErrUnreachableStage) {
		t.Errorf("expected ErrUnreachableStage, got %v", err)
	}
}

func TestWorkflowStageLookup(t *testing.T) {
	wf, err := NewWorkflow("test_mode", "start", linearStages(), linearActions())
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}

	s, ok := wf.Stage("start")
	if !ok {
		t.Fatal("expected to find stage 'start'")
	}
	if s.Label != "Start" {
		t.Errorf("expected label 'Start', got %q", s.Label)
	}

	if _, ok := wf.Stage("missing"); ok {
		t.Error("expected lookup miss for unknown stage")
	}
}

func TestWorkflowStagesPreserveOrder(t *testing.T) {
	wf, err := NewWorkflow("test_mode", "start", linearStages(), linearActions())
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}

	stages := wf.Stages()
	if len(stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(stages))
	}
	if stages[0].ID != "start" || stages[1].ID != "end" {
		t.Errorf("stage order not preserved: %q, %q", stages[0].ID, stages[1].ID)
	}
}

func TestWorkflowActionTarget(t *testing.T) {
	wf, err := NewWorkflow("test_mode", "start", linearStages(), linearActions())
	if err != nil {
		t.Fatalf("NewWorkflow failed: %v", err)
	}

	target, ok := wf.ActionTarget("advance")
	if !ok || target != "end" {
		t.Errorf("expected advance -> end, got %q (ok=%v)", target, ok)
	}
	if _, ok := wf.ActionTarget("unknown"); ok {
		t.Error("expected lookup miss for unknown action")
	}
}

func TestBranchingWorkflow(t *testing.T) {
	wf := dealStrategy()

	qualify, ok := wf.Stage("qualify")
	if !ok {
		t.Fatal("expected qualify stage")
	}
	if len(qualify.AllowedActions) != 2 {
		t.Fatalf("expected 2 allowed actions at qualify, got %d", len(qualify.AllowedActions))
	}

	// Both branches converge on the same terminal stage
	for _, action := range qualify.AllowedActions {
		branchID, ok := wf.ActionTarget(action)
		if !ok {
			t.Fatalf("action %q has no target", action)
		}
		branch, ok := wf.Stage(branchID)
		if !ok {
			t.Fatalf("branch stage %q missing", branchID)
		}
		target, ok := wf.ActionTarget(branch.AllowedActions[0])
		if !ok || target != "summary" {
			t.Errorf("branch %q should converge on summary, got %q", branchID, target)
		}
	}
}
