// Package events defines the event types published on the bus.
package events

// Conversation lifecycle events. The event type doubles as the bus subject.
const (
	ConversationCreated = "conversation.created"
	ConversationDeleted = "conversation.deleted"
	ConversationReset   = "conversation.reset"
	TurnCompleted       = "conversation.turn.completed"
)

// ConversationSubjects is the wildcard subject covering all conversation
// events, used by stream subscribers.
const ConversationSubjects = "conversation.>"
