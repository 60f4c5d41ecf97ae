package api

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/common/errors"
	"github.com/consilio/consilio/internal/common/logger"
	"github.com/consilio/consilio/internal/conversation/models"
	"github.com/consilio/consilio/internal/conversation/repository"
	"github.com/consilio/consilio/internal/events"
	"github.com/consilio/consilio/internal/events/bus"
	"github.com/consilio/consilio/internal/extraction"
	"github.com/consilio/consilio/internal/orchestrator"
	"github.com/consilio/consilio/internal/persona"
	"github.com/consilio/consilio/internal/workflow"
	v1 "github.com/consilio/consilio/pkg/api/v1"
)

// maxUploadBytes bounds document uploads before extraction sees them
const maxUploadBytes = 1 << 20

// Handler contains HTTP handlers for the chat API
type Handler struct {
	repo      repository.Repository
	workflows *workflow.Registry
	personas  *persona.Registry
	orch      *orchestrator.Orchestrator
	extractor extraction.Extractor
	eventBus  bus.EventBus
	logger    *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	repo repository.Repository,
	workflows *workflow.Registry,
	personas *persona.Registry,
	orch *orchestrator.Orchestrator,
	extractor extraction.Extractor,
	eventBus bus.EventBus,
	log *logger.Logger,
) *Handler {
	return &Handler{
		repo:      repo,
		workflows: workflows,
		personas:  personas,
		orch:      orch,
		extractor: extractor,
		eventBus:  eventBus,
		logger:    log,
	}
}

// Persona endpoints

// ListPersonas returns all enabled personas
// GET /api/v1/personas
func (h *Handler) ListPersonas(c *gin.Context) {
	personas := h.personas.List()

	resp := PersonasListResponse{
		Personas: make([]*v1.Persona, len(personas)),
		Total:    len(personas),
	}
	for i, p := range personas {
		resp.Personas[i] = h.personaToResponse(p)
	}

	c.JSON(http.StatusOK, resp)
}

// ListModes returns the structured modes registered for a persona
// GET /api/v1/personas/:personaId/modes
func (h *Handler) ListModes(c *gin.Context) {
	personaID := c.Param("personaId")

	if _, ok := h.personas.Get(personaID); !ok {
		appErr := errors.NotFound("persona", personaID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, ModesResponse{
		PersonaID: personaID,
		Modes:     h.workflows.ListModes(personaID),
	})
}

// GetWorkflow returns the stage graph for a persona mode
// GET /api/v1/personas/:personaId/modes/:mode/workflow
func (h *Handler) GetWorkflow(c *gin.Context) {
	personaID := c.Param("personaId")
	mode := c.Param("mode")

	wf, ok := h.workflows.Lookup(personaID, mode)
	if !ok {
		appErr := errors.NotFound("workflow", personaID+"/"+mode)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, workflowToResponse(personaID, wf))
}

// Conversation endpoints

// CreateConversation starts a new conversation with a persona
// POST /api/v1/conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	p, ok := h.personas.Get(req.PersonaID)
	if !ok {
		appErr := errors.NotFound("persona", req.PersonaID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if req.Mode != "" {
		if _, ok := h.workflows.Lookup(req.PersonaID, req.Mode); !ok {
			appErr := errors.ValidationError("mode", "unknown mode for persona "+req.PersonaID)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}

	tone := req.Tone
	if tone == "" {
		tone = p.DefaultTone
	} else if !validTone(p, tone) {
		appErr := errors.ValidationError("tone", "unknown tone for persona "+req.PersonaID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.New().String(),
		PersonaID: req.PersonaID,
		Mode:      req.Mode,
		Tone:      tone,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.CreateConversation(c.Request.Context(), conv); err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		appErr := errors.InternalError("failed to create conversation", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.publishEvent(c.Request.Context(), events.ConversationCreated, conv.ID, map[string]interface{}{
		"conversation_id": conv.ID,
		"persona_id":      conv.PersonaID,
		"mode":            conv.Mode,
	})

	c.JSON(http.StatusCreated, conversationToResponse(conv))
}

// ListConversations returns all conversations
// GET /api/v1/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.repo.ListConversations(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		appErr := errors.InternalError("failed to list conversations", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	resp := ConversationsListResponse{
		Conversations: make([]*v1.Conversation, len(convs)),
		Total:         len(convs),
	}
	for i, conv := range convs {
		resp.Conversations[i] = conversationToResponse(conv)
	}

	c.JSON(http.StatusOK, resp)
}

// GetConversation retrieves a conversation by ID
// GET /api/v1/conversations/:conversationId
func (h *Handler) GetConversation(c *gin.Context) {
	conversationID := c.Param("conversationId")

	conv, err := h.repo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		h.respondRepoError(c, conversationID, err)
		return
	}

	c.JSON(http.StatusOK, conversationToResponse(conv))
}

// DeleteConversation deletes a conversation and its transcript
// DELETE /api/v1/conversations/:conversationId
func (h *Handler) DeleteConversation(c *gin.Context) {
	conversationID := c.Param("conversationId")

	if err := h.repo.DeleteConversation(c.Request.Context(), conversationID); err != nil {
		h.respondRepoError(c, conversationID, err)
		return
	}

	h.publishEvent(c.Request.Context(), events.ConversationDeleted, conversationID, map[string]interface{}{
		"conversation_id": conversationID,
	})

	c.Status(http.StatusNoContent)
}

// ListTurns returns the transcript of a conversation
// GET /api/v1/conversations/:conversationId/turns
func (h *Handler) ListTurns(c *gin.Context) {
	conversationID := c.Param("conversationId")

	if _, err := h.repo.GetConversation(c.Request.Context(), conversationID); err != nil {
		h.respondRepoError(c, conversationID, err)
		return
	}

	turns, err := h.repo.ListTurns(c.Request.Context(), conversationID)
	if err != nil {
		h.logger.Error("failed to list turns",
			zap.String("conversation_id", conversationID), zap.Error(err))
		appErr := errors.InternalError("failed to list turns", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	resp := TurnsListResponse{
		Turns: make([]*v1.Turn, len(turns)),
		Total: len(turns),
	}
	for i, t := range turns {
		resp.Turns[i] = turnToResponse(t)
	}

	c.JSON(http.StatusOK, resp)
}

// SendMessage advances a conversation by one turn
// POST /api/v1/conversations/:conversationId/messages
func (h *Handler) SendMessage(c *gin.Context) {
	conversationID := c.Param("conversationId")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	result, err := h.orch.Advance(c.Request.Context(), &orchestrator.AdvanceRequest{
		ConversationID: conversationID,
		Action:         req.Action,
		Text:           req.Text,
		Tone:           req.Tone,
		DocumentText:   req.DocumentText,
	})
	if err != nil {
		h.respondAdvanceError(c, conversationID, err)
		return
	}

	resp := TurnResultResponse{
		Turn:           turnToResponse(result.Turn),
		AllowedActions: result.AllowedActions,
		FreeForm:       result.FreeForm,
	}
	if result.Stage != nil {
		resp.Stage = stageMetaToResponse(result.Stage)
	}

	c.JSON(http.StatusOK, resp)
}

// ResetConversation rewinds a conversation to its workflow's initial stage
// POST /api/v1/conversations/:conversationId/reset
func (h *Handler) ResetConversation(c *gin.Context) {
	conversationID := c.Param("conversationId")

	if err := h.orch.Reset(c.Request.Context(), conversationID); err != nil {
		if stderrors.Is(err, orchestrator.ErrConversationNotFound) {
			appErr := errors.NotFound("conversation", conversationID)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to reset conversation",
			zap.String("conversation_id", conversationID), zap.Error(err))
		appErr := errors.InternalError("failed to reset conversation", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadDocument extracts text from an uploaded document. The extracted
// text is returned to the client, which includes it in a later message
// as document_text
// POST /api/v1/conversations/:conversationId/documents
func (h *Handler) UploadDocument(c *gin.Context) {
	conversationID := c.Param("conversationId")

	if _, err := h.repo.GetConversation(c.Request.Context(), conversationID); err != nil {
		h.respondRepoError(c, conversationID, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		appErr := errors.BadRequest("file is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if fileHeader.Size > maxUploadBytes {
		appErr := errors.ValidationError("file", "document exceeds the upload size limit")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		appErr := errors.InternalError("failed to open uploaded file", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		appErr := errors.InternalError("failed to read uploaded file", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	text, err := h.extractor.Extract(c.Request.Context(), data, contentType)
	if err != nil {
		if stderrors.Is(err, extraction.ErrUnsupportedFormat) || stderrors.Is(err, extraction.ErrNotText) {
			appErr := errors.ValidationError("file", err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to extract document",
			zap.String("conversation_id", conversationID), zap.Error(err))
		appErr := errors.InternalError("failed to extract document", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, DocumentResponse{
		Name:        fileHeader.Filename,
		ContentType: contentType,
		Text:        text,
	})
}

// HealthCheck reports service liveness
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"event_bus": h.eventBus.IsConnected(),
		"time":      time.Now().UTC(),
	})
}

// respondRepoError maps repository errors onto HTTP responses. Only a
// missing conversation is a 404; anything else is a store failure
func (h *Handler) respondRepoError(c *gin.Context, conversationID string, err error) {
	if stderrors.Is(err, repository.ErrNotFound) {
		appErr := errors.NotFound("conversation", conversationID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	h.logger.Error("conversation store failure",
		zap.String("conversation_id", conversationID), zap.Error(err))
	appErr := errors.InternalError("conversation store failure", err)
	c.JSON(appErr.HTTPStatus, appErr)
}

// respondAdvanceError maps orchestrator errors onto HTTP responses
func (h *Handler) respondAdvanceError(c *gin.Context, conversationID string, err error) {
	var (
		invalidAction  *orchestrator.InvalidActionError
		actionRequired *orchestrator.ActionRequiredError
		genErr         *orchestrator.GenerationError
	)

	switch {
	case stderrors.Is(err, orchestrator.ErrConversationNotFound):
		appErr := errors.NotFound("conversation", conversationID)
		c.JSON(appErr.HTTPStatus, appErr)
	case stderrors.As(err, &invalidAction):
		appErr := errors.Conflict(invalidAction.Error())
		c.JSON(appErr.HTTPStatus, appErr)
	case stderrors.As(err, &actionRequired):
		appErr := errors.BadRequest(actionRequired.Error())
		c.JSON(appErr.HTTPStatus, appErr)
	case stderrors.As(err, &genErr):
		h.logger.Error("generation failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		appErr := errors.UpstreamError("generation", genErr)
		c.JSON(appErr.HTTPStatus, appErr)
	default:
		h.logger.Error("failed to process message",
			zap.String("conversation_id", conversationID), zap.Error(err))
		appErr := errors.InternalError("failed to process message", err)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

func (h *Handler) publishEvent(ctx context.Context, eventType, conversationID string, data map[string]interface{}) {
	event := bus.NewEvent(eventType, "chat-api", data)
	if err := h.eventBus.Publish(ctx, eventType, event); err != nil {
		h.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

// Helper functions to convert models to response types

func (h *Handler) personaToResponse(p *persona.Persona) *v1.Persona {
	return &v1.Persona{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Tones:       p.Tones,
		DefaultTone: p.DefaultTone,
		Modes:       h.workflows.ListModes(p.ID),
		Enabled:     p.Enabled,
	}
}

func workflowToResponse(personaID string, wf *workflow.Workflow) *v1.WorkflowDescription {
	stages := wf.Stages()
	resp := &v1.WorkflowDescription{
		PersonaID:      personaID,
		Mode:           wf.Mode(),
		InitialStageID: wf.InitialStageID(),
		Stages:         make([]v1.StageDescription, len(stages)),
	}
	for i, st := range stages {
		resp.Stages[i] = v1.StageDescription{
			ID:             st.ID,
			Label:          st.Label,
			Description:    st.Description,
			AllowedActions: st.AllowedActions,
			NextStageIDs:   st.NextStages,
			Terminal:       st.Terminal,
		}
	}
	return resp
}

func conversationToResponse(conv *models.Conversation) *v1.Conversation {
	return &v1.Conversation{
		ID:        conv.ID,
		PersonaID: conv.PersonaID,
		Mode:      conv.Mode,
		Tone:      conv.Tone,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

func turnToResponse(t *models.Turn) *v1.Turn {
	resp := &v1.Turn{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Role:           t.Role,
		Content:        t.Content,
		CreatedAt:      t.CreatedAt,
	}
	if len(t.Attachments) > 0 {
		resp.Attachments = make([]v1.Attachment, len(t.Attachments))
		for i, a := range t.Attachments {
			resp.Attachments[i] = v1.Attachment{
				Name:        a.Name,
				ContentType: a.ContentType,
				Content:     a.Content,
			}
		}
	}
	if t.Stage != nil {
		resp.Stage = stageMetaToResponse(t.Stage)
	}
	return resp
}

func stageMetaToResponse(s *models.StageMeta) *v1.StageMeta {
	return &v1.StageMeta{
		StageID:          s.StageID,
		StageLabel:       s.StageLabel,
		StageDescription: s.StageDescription,
		NextStageIDs:     s.NextStageIDs,
		Terminal:         s.Terminal,
	}
}

func validTone(p *persona.Persona, tone string) bool {
	for _, t := range p.Tones {
		if t == tone {
			return true
		}
	}
	return false
}
