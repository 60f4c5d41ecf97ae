// Package orchestrator drives conversations through their workflows. Per
// turn it resolves the current stage from the transcript, validates the
// requested transition, delegates content generation, and appends the
// tagged turn. Stage metadata is only ever appended after generation
// succeeds, so a failed or cancelled call leaves the conversation exactly
// where it was.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/common/logger"
	"github.com/consilio/consilio/internal/conversation/models"
	"github.com/consilio/consilio/internal/conversation/repository"
	"github.com/consilio/consilio/internal/events"
	"github.com/consilio/consilio/internal/events/bus"
	"github.com/consilio/consilio/internal/generation"
	"github.com/consilio/consilio/internal/persona"
	"github.com/consilio/consilio/internal/workflow"
	v1 "github.com/consilio/consilio/pkg/api/v1"
)

// AdvanceRequest carries one conversational turn's inputs. Tone and
// document text are pass-through generation parameters; they never affect
// transition validity.
type AdvanceRequest struct {
	ConversationID string
	Action         string // optional; inferred for single-action stages
	Text           string // optional free-form user text
	Tone           string // optional per-call tone override
	DocumentText   string // optional extracted document text
}

// TurnResult is the outcome of a successful Advance call
type TurnResult struct {
	Turn           *models.Turn     // the appended assistant turn
	Stage          *models.StageMeta // nil in free-form mode
	AllowedActions []string          // actions valid from the new stage
	FreeForm       bool
}

// Orchestrator coordinates registries, the transcript store and the
// generation service
type Orchestrator struct {
	repo      repository.Repository
	workflows *workflow.Registry
	personas  *persona.Registry
	generator generation.Generator
	eventBus  bus.EventBus
	logger    *logger.Logger

	// Serializes transcript appends per conversation so two concurrent
	// turns cannot both read the same current stage.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an orchestrator
func New(
	repo repository.Repository,
	workflows *workflow.Registry,
	personas *persona.Registry,
	generator generation.Generator,
	eventBus bus.EventBus,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		workflows: workflows,
		personas:  personas,
		generator: generator,
		eventBus:  eventBus,
		logger:    log.WithFields(zap.String("component", "orchestrator")),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Advance processes one turn for a conversation. Validation happens up
// front; by the time generation is invoked the transition is known-valid
// and only the collaborator call can fail.
func (o *Orchestrator) Advance(ctx context.Context, req *AdvanceRequest) (*TurnResult, error) {
	conv, err := o.repo.GetConversation(ctx, req.ConversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, req.ConversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	p, ok := o.personas.Get(conv.PersonaID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPersona, conv.PersonaID)
	}

	tone := req.Tone
	if tone == "" {
		tone = conv.Tone
	}
	if tone == "" {
		tone = p.DefaultTone
	}

	unlock := o.lockConversation(conv.ID)
	defer unlock()

	turns, err := o.repo.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	wf, structured := o.workflows.Lookup(conv.PersonaID, conv.Mode)
	if !structured {
		return o.advanceFreeForm(ctx, conv, p, tone, turns, req)
	}
	return o.advanceWorkflow(ctx, conv, p, wf, tone, turns, req)
}

func (o *Orchestrator) advanceWorkflow(
	ctx context.Context,
	conv *models.Conversation,
	p *persona.Persona,
	wf *workflow.Workflow,
	tone string,
	turns []*models.Turn,
	req *AdvanceRequest,
) (*TurnResult, error) {
	currentID := DeriveCurrentStage(turns, wf)
	current, ok := wf.Stage(currentID)
	if !ok {
		return nil, fmt.Errorf("%w: stage %q in workflow %q", ErrUnknownStage, currentID, wf.Mode())
	}

	action, err := resolveAction(current, req.Action)
	if err != nil {
		return nil, err
	}

	nextID, ok := wf.ActionTarget(action)
	if !ok {
		// Unreachable for a validated workflow
		return nil, fmt.Errorf("%w: action %q has no target", ErrUnknownStage, action)
	}
	next, ok := wf.Stage(nextID)
	if !ok {
		return nil, fmt.Errorf("%w: stage %q in workflow %q", ErrUnknownStage, nextID, wf.Mode())
	}

	genReq := &generation.Request{
		PersonaPrompt: p.SystemPrompt,
		CurrentStage:  &generation.StageInfo{Label: current.Label, Description: current.Description},
		TargetStage:   &generation.StageInfo{Label: next.Label, Description: next.Description},
		Action:        action,
		Tone:          tone,
		UserText:      req.Text,
		DocumentText:  req.DocumentText,
		History:       historyMessages(turns),
	}

	result, err := o.generator.Generate(ctx, genReq)
	if err != nil {
		o.logger.Warn("generation failed, stage unchanged",
			zap.String("conversation_id", conv.ID),
			zap.String("stage_id", currentID),
			zap.Error(err))
		return nil, &GenerationError{Err: err}
	}

	stage := &models.StageMeta{
		StageID:          next.ID,
		StageLabel:       next.Label,
		StageDescription: next.Description,
		NextStageIDs:     next.NextStages,
		Terminal:         next.Terminal,
	}

	turn, err := o.appendTurns(ctx, conv, req.Text, result, stage)
	if err != nil {
		return nil, err
	}

	o.publishTurn(ctx, conv, turn)

	return &TurnResult{
		Turn:           turn,
		Stage:          stage,
		AllowedActions: next.AllowedActions,
	}, nil
}

func (o *Orchestrator) advanceFreeForm(
	ctx context.Context,
	conv *models.Conversation,
	p *persona.Persona,
	tone string,
	turns []*models.Turn,
	req *AdvanceRequest,
) (*TurnResult, error) {
	// No workflow means no stage logic; an explicit action is meaningless
	// here and rejecting it beats silently ignoring it.
	if req.Action != "" {
		return nil, &InvalidActionError{Action: req.Action, StageID: "", Allowed: nil}
	}

	genReq := &generation.Request{
		PersonaPrompt: p.SystemPrompt,
		Tone:          tone,
		UserText:      req.Text,
		DocumentText:  req.DocumentText,
		History:       historyMessages(turns),
	}

	result, err := o.generator.Generate(ctx, genReq)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	turn, err := o.appendTurns(ctx, conv, req.Text, result, nil)
	if err != nil {
		return nil, err
	}

	o.publishTurn(ctx, conv, turn)

	return &TurnResult{Turn: turn, FreeForm: true}, nil
}

// Reset starts a new workflow run for a conversation. It is an explicit,
// caller-driven operation: a reset marker is appended and the next Advance
// starts from the workflow's initial stage.
func (o *Orchestrator) Reset(ctx context.Context, conversationID string) error {
	conv, err := o.repo.GetConversation(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	unlock := o.lockConversation(conv.ID)
	defer unlock()

	marker := &models.Turn{
		ConversationID: conv.ID,
		Role:           v1.RoleSystem,
		Content:        "Workflow restarted.",
		Stage:          &models.StageMeta{StageID: ""},
	}
	if err := o.repo.AppendTurn(ctx, marker); err != nil {
		return fmt.Errorf("failed to append reset marker: %w", err)
	}

	event := bus.NewEvent(events.ConversationReset, "companion-server", map[string]interface{}{
		"conversation_id": conv.ID,
	})
	if err := o.eventBus.Publish(ctx, events.ConversationReset, event); err != nil {
		o.logger.Warn("failed to publish reset event", zap.Error(err))
	}
	return nil
}

// resolveAction validates the requested action against the current stage,
// inferring the sole action for single-action stages
func resolveAction(current *workflow.Stage, requested string) (string, error) {
	if requested != "" {
		for _, a := range current.AllowedActions {
			if a == requested {
				return requested, nil
			}
		}
		return "", &InvalidActionError{
			Action:  requested,
			StageID: current.ID,
			Allowed: current.AllowedActions,
		}
	}

	if len(current.AllowedActions) == 1 {
		return current.AllowedActions[0], nil
	}
	return "", &ActionRequiredError{StageID: current.ID, Allowed: current.AllowedActions}
}

// appendTurns records the user's message (when present) and the
// assistant's tagged turn in one atomic repository write, so a failure
// never strands a user turn without its reply. Called only after
// generation succeeded.
func (o *Orchestrator) appendTurns(
	ctx context.Context,
	conv *models.Conversation,
	userText string,
	result *generation.Result,
	stage *models.StageMeta,
) (*models.Turn, error) {
	var turns []*models.Turn
	if userText != "" {
		turns = append(turns, &models.Turn{
			ConversationID: conv.ID,
			Role:           v1.RoleUser,
			Content:        userText,
		})
	}

	turn := &models.Turn{
		ConversationID: conv.ID,
		Role:           v1.RoleAssistant,
		Content:        result.Content,
		Attachments:    toModelAttachments(result.Attachments),
		Stage:          stage,
	}
	turns = append(turns, turn)

	if err := o.repo.AppendTurns(ctx, turns); err != nil {
		return nil, fmt.Errorf("failed to append turns: %w", err)
	}
	return turn, nil
}

func (o *Orchestrator) publishTurn(ctx context.Context, conv *models.Conversation, turn *models.Turn) {
	data := map[string]interface{}{
		"conversation_id": conv.ID,
		"turn_id":         turn.ID,
		"persona_id":      conv.PersonaID,
		"mode":            conv.Mode,
		"content":         turn.Content,
	}
	if turn.Stage != nil {
		data["stage_id"] = turn.Stage.StageID
		data["terminal"] = turn.Stage.Terminal
	}

	event := bus.NewEvent(events.TurnCompleted, "companion-server", data)
	if err := o.eventBus.Publish(ctx, events.TurnCompleted, event); err != nil {
		o.logger.Warn("failed to publish turn event",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}
}

func (o *Orchestrator) lockConversation(id string) func() {
	o.locksMu.Lock()
	m, ok := o.locks[id]
	if !ok {
		m = &sync.Mutex{}
		o.locks[id] = m
	}
	o.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// historyMessages converts prior user and assistant turns into generation
// context, skipping system markers
func historyMessages(turns []*models.Turn) []generation.Message {
	var out []generation.Message
	for _, t := range turns {
		switch t.Role {
		case v1.RoleUser:
			out = append(out, generation.Message{Role: generation.MessageRoleUser, Content: t.Content})
		case v1.RoleAssistant:
			out = append(out, generation.Message{Role: generation.MessageRoleAssistant, Content: t.Content})
		}
	}
	return out
}

func toModelAttachments(attachments []generation.Attachment) []models.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]models.Attachment, len(attachments))
	for i, a := range attachments {
		out[i] = models.Attachment{Name: a.Name, ContentType: a.ContentType, Content: a.Content}
	}
	return out
}
