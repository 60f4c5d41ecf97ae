package orchestrator

import (
	"github.com/consilio/consilio/internal/conversation/models"
	"github.com/consilio/consilio/internal/workflow"
)

// DeriveCurrentStage resolves a conversation's current stage from its
// transcript: the most recent workflow-tagged turn wins. An untagged
// transcript, or one whose latest tag is a reset marker, yields the
// workflow's initial stage. Pure function of its inputs.
func DeriveCurrentStage(turns []*models.Turn, wf *workflow.Workflow) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Stage == nil {
			continue
		}
		if turns[i].Stage.StageID == "" {
			// Reset marker: the workflow run restarted here
			return wf.InitialStageID()
		}
		return turns[i].Stage.StageID
	}
	return wf.InitialStageID()
}
