package orchestrator

import (
	"testing"

	"github.com/consilio/consilio/internal/conversation/models"
	"github.com/consilio/consilio/internal/workflow"
)

func proposalWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	defaults := workflow.DefaultWorkflows()
	for _, wf := range defaults[workflow.PersonaCommercial] {
		if wf.Mode() == workflow.ModeProposalBuilder {
			return wf
		}
	}
	t.Fatal("proposal_builder workflow not found")
	return nil
}

func taggedTurn(stageID string) *models.Turn {
	return &models.Turn{Stage: &models.StageMeta{StageID: stageID}}
}

func TestDeriveCurrentStageEmptyTranscript(t *testing.T) {
	wf := proposalWorkflow(t)
	if got := DeriveCurrentStage(nil, wf); got != "clarify" {
		t.Errorf("expected initial stage 'clarify', got %q", got)
	}
	if got := DeriveCurrentStage([]*models.Turn{}, wf); got != "clarify" {
		t.Errorf("expected initial stage 'clarify' for empty slice, got %q", got)
	}
}

func TestDeriveCurrentStageUntaggedTranscript(t *testing.T) {
	wf := proposalWorkflow(t)
	turns := []*models.Turn{
		{Content: "hello"},
		{Content: "hi there"},
	}
	if got := DeriveCurrentStage(turns, wf); got != "clarify" {
		t.Errorf("expected initial stage for untagged transcript, got %q", got)
	}
}

func TestDeriveCurrentStageLatestTagWins(t *testing.T) {
	wf := proposalWorkflow(t)
	turns := []*models.Turn{
		taggedTurn("draft"),
		{Content: "untagged"},
		taggedTurn("refine"),
		{Content: "also untagged"},
	}
	if got := DeriveCurrentStage(turns, wf); got != "refine" {
		t.Errorf("expected 'refine', got %q", got)
	}
}

func TestDeriveCurrentStageResetMarker(t *testing.T) {
	wf := proposalWorkflow(t)
	turns := []*models.Turn{
		taggedTurn("refine"),
		taggedTurn(""),
	}
	if got := DeriveCurrentStage(turns, wf); got != "clarify" {
		t.Errorf("expected initial stage after reset marker, got %q", got)
	}
}

func TestDeriveCurrentStageDeterministic(t *testing.T) {
	wf := proposalWorkflow(t)
	turns := []*models.Turn{
		taggedTurn("draft"),
		taggedTurn("refine"),
	}
	first := DeriveCurrentStage(turns, wf)
	second := DeriveCurrentStage(turns, wf)
	if first != second {
		t.Errorf("derivation not deterministic: %q vs %q", first, second)
	}
}
