// Package models defines the conversation domain model.
package models

import (
	"time"

	v1 "github.com/consilio/consilio/pkg/api/v1"
)

// Conversation is a chat session between a user and one persona mode
type Conversation struct {
	ID        string
	PersonaID string
	Mode      string
	Tone      string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StageMeta is the workflow tag carried by a turn. The transcript's most
// recent tagged turn is the authoritative record of where the conversation
// is in its workflow; tags are appended once and never edited.
type StageMeta struct {
	StageID          string   `json:"stage_id"`
	StageLabel       string   `json:"stage_label,omitempty"`
	StageDescription string   `json:"stage_description,omitempty"`
	NextStageIDs     []string `json:"next_stage_ids,omitempty"`
	Terminal         bool     `json:"terminal"`
}

// Attachment is an opaque artifact attached to a turn
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     string `json:"content,omitempty"`
}

// Turn is one entry in a conversation transcript
type Turn struct {
	ID             string
	ConversationID string
	Role           v1.Role
	Content        string
	Attachments    []Attachment
	Stage          *StageMeta
	CreatedAt      time.Time
}
