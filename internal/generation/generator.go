// Package generation defines the content generation contract and its
// OpenAI-backed implementation. Generation is a collaborator of the
// orchestrator: it may fail or time out, and such failures never advance
// a conversation's workflow stage.
package generation

import "context"

// Message is one prior turn passed as generation context
type Message struct {
	Role    string // user or assistant
	Content string
}

// Message roles
const (
	MessageRoleSystem    = "system"
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// StageInfo carries the stage descriptions used to steer generation
type StageInfo struct {
	Label       string
	Description string
}

// Request is a fully assembled generation request. Assembly is the
// orchestrator's job and is deterministic; the generator only owns the
// wire call.
type Request struct {
	PersonaPrompt string
	CurrentStage  *StageInfo // nil in free-form mode
	TargetStage   *StageInfo // nil in free-form mode
	Action        string
	Tone          string
	UserText      string
	DocumentText  string
	History       []Message
}

// Attachment is an opaque artifact produced by generation
type Attachment struct {
	Name        string
	ContentType string
	Content     string
}

// Result is the outcome of a successful generation call
type Result struct {
	Content     string
	Attachments []Attachment
}

// Generator produces conversational content from an assembled request
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}
