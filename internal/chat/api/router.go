package api

import (
	"github.com/gin-gonic/gin"

	"github.com/consilio/consilio/internal/chat/streaming"
	"github.com/consilio/consilio/internal/common/logger"
	"github.com/consilio/consilio/internal/conversation/repository"
	"github.com/consilio/consilio/internal/events/bus"
	"github.com/consilio/consilio/internal/extraction"
	"github.com/consilio/consilio/internal/orchestrator"
	"github.com/consilio/consilio/internal/persona"
	"github.com/consilio/consilio/internal/workflow"
)

// SetupRoutes configures the chat API routes
func SetupRoutes(
	router *gin.RouterGroup,
	repo repository.Repository,
	workflows *workflow.Registry,
	personas *persona.Registry,
	orch *orchestrator.Orchestrator,
	extractor extraction.Extractor,
	eventBus bus.EventBus,
	hub *streaming.Hub,
	log *logger.Logger,
) {
	handler := NewHandler(repo, workflows, personas, orch, extractor, eventBus, log)

	// Persona routes
	personaRoutes := router.Group("/personas")
	{
		personaRoutes.GET("", handler.ListPersonas)
		personaRoutes.GET("/:personaId/modes", handler.ListModes)
		personaRoutes.GET("/:personaId/modes/:mode/workflow", handler.GetWorkflow)
	}

	// Conversation routes
	conversations := router.Group("/conversations")
	{
		conversations.POST("", handler.CreateConversation)
		conversations.GET("", handler.ListConversations)
		conversations.GET("/:conversationId", handler.GetConversation)
		conversations.DELETE("/:conversationId", handler.DeleteConversation)

		conversations.GET("/:conversationId/turns", handler.ListTurns)
		conversations.POST("/:conversationId/messages", handler.SendMessage)
		conversations.POST("/:conversationId/reset", handler.ResetConversation)
		conversations.POST("/:conversationId/documents", handler.UploadDocument)
	}

	// WebSocket endpoint for live conversation events
	router.GET("/ws", func(c *gin.Context) {
		streaming.ServeWS(hub, log, c.Writer, c.Request)
	})
}
