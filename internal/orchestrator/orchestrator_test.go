package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/consilio/consilio/internal/common/logger"
	"github.com/consilio/consilio/internal/conversation/models"
	"github.com/consilio/consilio/internal/conversation/repository"
	"github.com/consilio/consilio/internal/events/bus"
	"github.com/consilio/consilio/internal/generation"
	"github.com/consilio/consilio/internal/persona"
	"github.com/consilio/consilio/internal/workflow"
	v1 "github.com/consilio/consilio/pkg/api/v1"
)

// MockEventBus implements bus.EventBus for testing
type MockEventBus struct {
	mu     sync.Mutex
	events []*bus.Event
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{}
}

func (m *MockEventBus) Publish(ctx context.Context, subject string, event *bus.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) Subscribe(subject string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (m *MockEventBus) QueueSubscribe(subject, queue string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (m *MockEventBus) Request(ctx context.Context, subject string, event *bus.Event, timeout time.Duration) (*bus.Event, error) {
	return nil, nil
}

func (m *MockEventBus) Close() {}

func (m *MockEventBus) IsConnected() bool {
	return true
}

func (m *MockEventBus) Events() []*bus.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*bus.Event, len(m.events))
	copy(out, m.events)
	return out
}

// mockGenerator implements generation.Generator for testing
type mockGenerator struct {
	mu      sync.Mutex
	fail    bool
	calls   int
	lastReq *generation.Request
}

func (g *mockGenerator) Generate(ctx context.Context, req *generation.Request) (*generation.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastReq = req
	if g.fail {
		return nil, errors.New("generation backend unavailable")
	}
	return &generation.Result{Content: "generated content"}, nil
}

func (g *mockGenerator) setFail(fail bool) {
	g.mu.Lock()
	g.fail = fail
	g.mu.Unlock()
}

type testEnv struct {
	orch *Orchestrator
	repo *repository.MemoryRepository
	gen  *mockGenerator
	bus  *MockEventBus
}

func setupOrchestrator(t *testing.T) *testEnv {
	t.Helper()

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	workflows := workflow.NewRegistry(log)
	workflows.LoadDefaults()
	personas := persona.NewRegistry(log)
	personas.LoadDefaults()

	repo := repository.NewMemoryRepository()
	gen := &mockGenerator{}
	eventBus := NewMockEventBus()

	return &testEnv{
		orch: New(repo, workflows, personas, gen, eventBus, log),
		repo: repo,
		gen:  gen,
		bus:  eventBus,
	}
}

func (e *testEnv) createConversation(t *testing.T, personaID, mode string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{PersonaID: personaID, Mode: mode}
	if err := e.repo.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestAdvanceInfersSoleAction(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)

	result, err := env.orch.Advance(context.Background(), &AdvanceRequest{
		ConversationID: conv.ID,
		Text:           "We need a proposal for a logistics client",
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if result.Stage == nil || result.Stage.StageID != "draft" {
		t.Fatalf("expected transition to 'draft', got %+v", result.Stage)
	}
	if len(result.Stage.NextStageIDs) != 1 || result.Stage.NextStageIDs[0] != "refine" {
		t.Errorf("expected next stages ['refine'], got %v", result.Stage.NextStageIDs)
	}
	if result.Stage.Terminal {
		t.Error("draft stage should not be terminal")
	}

	turns, _ := env.repo.ListTurns(context.Background(), conv.ID)
	if len(turns) != 2 {
		t.Fatalf("expected user + assistant turns, got %d", len(turns))
	}
	if turns[0].Stage != nil {
		t.Error("user turn should not carry stage metadata")
	}
	if turns[1].Stage == nil || turns[1].Stage.StageID != "draft" {
		t.Error("assistant turn missing stage tag")
	}
}

func TestAdvanceInvalidAction(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)

	_, err := env.orch.Advance(context.Background(), &AdvanceRequest{
		ConversationID: conv.ID,
		Action:         "finalise_proposal",
	})

	var invalidErr *InvalidActionError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidActionError, got %v", err)
	}
	if invalidErr.StageID != "clarify" {
		t.Errorf("expected error to name stage 'clarify', got %q", invalidErr.StageID)
	}
	if len(invalidErr.Allowed) != 1 || invalidErr.Allowed[0] != "clarify_requirements" {
		t.Errorf("expected allowed actions ['clarify_requirements'], got %v", invalidErr.Allowed)
	}

	// Rejected actions never touch the transcript
	turns, _ := env.repo.ListTurns(context.Background(), conv.ID)
	if len(turns) != 0 {
		t.Errorf("expected unchanged transcript, got %d turns", len(turns))
	}
	if env.gen.calls != 0 {
		t.Error("generation must not run for an invalid action")
	}
}

func TestAdvanceBranchingRequiresExplicitAction(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeDealStrategy)
	ctx := context.Background()

	_, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "big deal"})
	var requiredErr *ActionRequiredError
	if !errors.As(err, &requiredErr) {
		t.Fatalf("expected ActionRequiredError, got %v", err)
	}
	if len(requiredErr.Allowed) != 2 {
		t.Errorf("expected 2 allowed actions in error, got %v", requiredErr.Allowed)
	}

	result, err := env.orch.Advance(ctx, &AdvanceRequest{
		ConversationID: conv.ID,
		Action:         "assess_partnership_play",
		Text:           "we have a strong partner channel",
	})
	if err != nil {
		t.Fatalf("Advance with explicit action failed: %v", err)
	}
	if result.Stage.StageID != "partnership_plan" {
		t.Errorf("expected 'partnership_plan', got %q", result.Stage.StageID)
	}
}

func TestAdvanceTerminalFinality(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)
	ctx := context.Background()

	// Walk the chain to the terminal stage
	for i := 0; i < 3; i++ {
		if _, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "continue"}); err != nil {
			t.Fatalf("Advance %d failed: %v", i, err)
		}
	}

	turns, _ := env.repo.ListTurns(ctx, conv.ID)
	wf := proposalWorkflow(t)
	if got := DeriveCurrentStage(turns, wf); got != "finalise" {
		t.Fatalf("expected terminal stage 'finalise', got %q", got)
	}

	// No implicit action exists at a terminal stage
	_, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID})
	var requiredErr *ActionRequiredError
	if !errors.As(err, &requiredErr) {
		t.Errorf("expected ActionRequiredError at terminal stage, got %v", err)
	}

	// And no explicit action is valid either
	_, err = env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Action: "anything"})
	var invalidErr *InvalidActionError
	if !errors.As(err, &invalidErr) {
		t.Errorf("expected InvalidActionError at terminal stage, got %v", err)
	}
}

func TestAdvanceFreeFormMode(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, "nonexistent_mode")
	ctx := context.Background()

	result, err := env.orch.Advance(ctx, &AdvanceRequest{
		ConversationID: conv.ID,
		Text:           "just chatting",
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if !result.FreeForm {
		t.Error("expected free-form result")
	}
	if result.Stage != nil {
		t.Error("free-form mode must not produce stage metadata")
	}

	turns, _ := env.repo.ListTurns(ctx, conv.ID)
	for _, turn := range turns {
		if turn.Stage != nil {
			t.Error("free-form turns must not carry stage tags")
		}
	}

	// Explicit actions are meaningless without a workflow
	_, err = env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Action: "clarify_requirements"})
	var invalidErr *InvalidActionError
	if !errors.As(err, &invalidErr) {
		t.Errorf("expected InvalidActionError for action in free-form mode, got %v", err)
	}
}

func TestAdvanceGenerationFailureLeavesStageUnchanged(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)
	ctx := context.Background()
	wf := proposalWorkflow(t)

	env.gen.setFail(true)
	_, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "draft it"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}

	turns, _ := env.repo.ListTurns(ctx, conv.ID)
	if len(turns) != 0 {
		t.Fatalf("failed generation must not touch the transcript, got %d turns", len(turns))
	}
	if got := DeriveCurrentStage(turns, wf); got != "clarify" {
		t.Errorf("stage pointer moved after failure: %q", got)
	}

	// A retried call with the backend healthy behaves as a first attempt
	env.gen.setFail(false)
	result, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "draft it"})
	if err != nil {
		t.Fatalf("retried Advance failed: %v", err)
	}
	if result.Stage.StageID != "draft" {
		t.Errorf("expected retry to reach 'draft', got %q", result.Stage.StageID)
	}
}

func TestAdvancePassesStageContextToGenerator(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)

	_, err := env.orch.Advance(context.Background(), &AdvanceRequest{
		ConversationID: conv.ID,
		Text:           "proposal please",
		Tone:           "direct",
		DocumentText:   "client brief contents",
	})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	req := env.gen.lastReq
	if req == nil {
		t.Fatal("generator was not called")
	}
	if req.CurrentStage == nil || req.CurrentStage.Label != "Clarify requirements" {
		t.Errorf("unexpected current stage context: %+v", req.CurrentStage)
	}
	if req.TargetStage == nil || req.TargetStage.Label != "Draft proposal" {
		t.Errorf("unexpected target stage context: %+v", req.TargetStage)
	}
	if req.Tone != "direct" {
		t.Errorf("tone not passed through, got %q", req.Tone)
	}
	if req.DocumentText != "client brief contents" {
		t.Errorf("document text not passed through, got %q", req.DocumentText)
	}
	if req.PersonaPrompt == "" {
		t.Error("persona prompt missing from generation request")
	}
}

func TestAdvancePublishesTurnEvent(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)

	_, err := env.orch.Advance(context.Background(), &AdvanceRequest{ConversationID: conv.ID, Text: "go"})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	published := env.bus.Events()
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	if published[0].Data["conversation_id"] != conv.ID {
		t.Error("event missing conversation id")
	}
	if published[0].Data["stage_id"] != "draft" {
		t.Errorf("event missing stage id, got %v", published[0].Data["stage_id"])
	}
}

func TestResetStartsNewRun(t *testing.T) {
	env := setupOrchestrator(t)
	conv := env.createConversation(t, workflow.PersonaCommercial, workflow.ModeProposalBuilder)
	ctx := context.Background()
	wf := proposalWorkflow(t)

	if _, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "start"}); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	if err := env.orch.Reset(ctx, conv.ID); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	turns, _ := env.repo.ListTurns(ctx, conv.ID)
	if got := DeriveCurrentStage(turns, wf); got != "clarify" {
		t.Errorf("expected initial stage after reset, got %q", got)
	}

	result, err := env.orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "again"})
	if err != nil {
		t.Fatalf("Advance after reset failed: %v", err)
	}
	if result.Stage.StageID != "draft" {
		t.Errorf("expected fresh run to reach 'draft', got %q", result.Stage.StageID)
	}
}

func TestAdvanceConversationNotFound(t *testing.T) {
	env := setupOrchestrator(t)

	_, err := env.orch.Advance(context.Background(), &AdvanceRequest{ConversationID: "missing"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

// newOrchestrator wires an orchestrator around arbitrary repository and
// generator implementations, for failure-injection tests
func newOrchestrator(t *testing.T, repo repository.Repository, gen generation.Generator) *Orchestrator {
	t.Helper()

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	workflows := workflow.NewRegistry(log)
	workflows.LoadDefaults()
	personas := persona.NewRegistry(log)
	personas.LoadDefaults()

	return New(repo, workflows, personas, gen, NewMockEventBus(), log)
}

// assistantRejectingRepo fails any append whose batch carries an
// assistant turn, simulating a store that dies between the user's
// message and the generated reply
type assistantRejectingRepo struct {
	repository.Repository
}

func (r *assistantRejectingRepo) AppendTurns(ctx context.Context, turns []*models.Turn) error {
	for _, turn := range turns {
		if turn.Role == v1.RoleAssistant {
			return errors.New("store write failed")
		}
	}
	return r.Repository.AppendTurns(ctx, turns)
}

func TestAdvanceAppendFailureStrandsNoUserTurn(t *testing.T) {
	mem := repository.NewMemoryRepository()
	ctx := context.Background()
	conv := &models.Conversation{PersonaID: workflow.PersonaCommercial, Mode: workflow.ModeProposalBuilder}
	if err := mem.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	orch := newOrchestrator(t, &assistantRejectingRepo{Repository: mem}, &mockGenerator{})

	_, err := orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "draft it"})
	if err == nil {
		t.Fatal("expected Advance to fail when the append is rejected")
	}

	// Both turns land together or not at all; a lone user turn would
	// corrupt stage derivation on the next call
	turns, _ := mem.ListTurns(ctx, conv.ID)
	if len(turns) != 0 {
		t.Fatalf("expected empty transcript after failed append, got %d turns", len(turns))
	}
}

// blockingGenerator parks until its context is cancelled
type blockingGenerator struct {
	started chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, req *generation.Request) (*generation.Result, error) {
	close(g.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdvanceCancellationLeavesTranscriptUntouched(t *testing.T) {
	mem := repository.NewMemoryRepository()
	conv := &models.Conversation{PersonaID: workflow.PersonaCommercial, Mode: workflow.ModeProposalBuilder}
	if err := mem.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	gen := &blockingGenerator{started: make(chan struct{})}
	orch := newOrchestrator(t, mem, gen)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := orch.Advance(ctx, &AdvanceRequest{ConversationID: conv.ID, Text: "slow one"})
		errCh <- err
	}()

	<-gen.started
	cancel()

	err := <-errCh
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError after cancellation, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got %v", err)
	}

	turns, _ := mem.ListTurns(context.Background(), conv.ID)
	if len(turns) != 0 {
		t.Fatalf("cancelled call must not touch the transcript, got %d turns", len(turns))
	}
}

// unavailableRepo simulates a store outage on every read
type unavailableRepo struct {
	repository.Repository
}

func (r *unavailableRepo) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return nil, errors.New("connection refused")
}

func TestAdvanceStoreOutageIsNotNotFound(t *testing.T) {
	orch := newOrchestrator(t, &unavailableRepo{Repository: repository.NewMemoryRepository()}, &mockGenerator{})

	_, err := orch.Advance(context.Background(), &AdvanceRequest{ConversationID: "conv-1", Text: "hello"})
	if err == nil {
		t.Fatal("expected Advance to surface the store failure")
	}
	if errors.Is(err, ErrConversationNotFound) {
		t.Errorf("store outage must not be reported as a missing conversation: %v", err)
	}
}
