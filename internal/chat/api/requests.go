// Package api provides HTTP handlers for the companion chat API.
package api

import (
	v1 "github.com/consilio/consilio/pkg/api/v1"
)

// CreateConversationRequest for starting a conversation with a persona
type CreateConversationRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
	Mode      string `json:"mode,omitempty"`
	Tone      string `json:"tone,omitempty"`
	Title     string `json:"title,omitempty"`
}

// SendMessageRequest for advancing a conversation by one turn
type SendMessageRequest struct {
	Action       string `json:"action,omitempty"`
	Text         string `json:"text,omitempty"`
	Tone         string `json:"tone,omitempty"`
	DocumentText string `json:"document_text,omitempty"`
}

// Response types

// PersonasListResponse for listing personas
type PersonasListResponse struct {
	Personas []*v1.Persona `json:"personas"`
	Total    int           `json:"total"`
}

// ModesResponse lists the structured modes available for a persona
type ModesResponse struct {
	PersonaID string   `json:"persona_id"`
	Modes     []string `json:"modes"`
}

// ConversationsListResponse for listing conversations
type ConversationsListResponse struct {
	Conversations []*v1.Conversation `json:"conversations"`
	Total         int                `json:"total"`
}

// TurnsListResponse for listing a conversation transcript
type TurnsListResponse struct {
	Turns []*v1.Turn `json:"turns"`
	Total int        `json:"total"`
}

// TurnResultResponse is the outcome of a processed message
type TurnResultResponse struct {
	Turn           *v1.Turn      `json:"turn"`
	Stage          *v1.StageMeta `json:"stage,omitempty"`
	AllowedActions []string      `json:"allowed_actions,omitempty"`
	FreeForm       bool          `json:"free_form"`
}

// DocumentResponse carries the text extracted from an uploaded document
type DocumentResponse struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Text        string `json:"text"`
}
