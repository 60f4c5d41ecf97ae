package v1

import "time"

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSystem    Role = "SYSTEM"
)

// Persona represents a companion identity available to clients
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tones       []string `json:"tones,omitempty"`
	DefaultTone string   `json:"default_tone,omitempty"`
	Modes       []string `json:"modes,omitempty"`
	Enabled     bool     `json:"enabled"`
}

// StageDescription describes one node of a workflow graph
type StageDescription struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	Description    string   `json:"description"`
	AllowedActions []string `json:"allowed_actions,omitempty"`
	NextStageIDs   []string `json:"next_stage_ids,omitempty"`
	Terminal       bool     `json:"terminal"`
}

// WorkflowDescription is the stage graph for one persona mode, used by
// clients to render progress indicators
type WorkflowDescription struct {
	PersonaID      string             `json:"persona_id"`
	Mode           string             `json:"mode"`
	InitialStageID string             `json:"initial_stage_id"`
	Stages         []StageDescription `json:"stages"`
}

// StageMeta is the workflow tag attached to a turn after a completed
// stage transition
type StageMeta struct {
	StageID          string   `json:"stage_id"`
	StageLabel       string   `json:"stage_label,omitempty"`
	StageDescription string   `json:"stage_description,omitempty"`
	NextStageIDs     []string `json:"next_stage_ids,omitempty"`
	Terminal         bool     `json:"terminal"`
}

// Attachment is an opaque artifact produced alongside generated content
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     string `json:"content,omitempty"`
}

// Turn represents one entry in a conversation transcript
type Turn struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Stage          *StageMeta   `json:"stage,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Conversation represents a chat session with a persona
type Conversation struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id"`
	Mode      string    `json:"mode,omitempty"`
	Tone      string    `json:"tone,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
