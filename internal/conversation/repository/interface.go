package repository

import (
	"context"
	"errors"

	"github.com/consilio/consilio/internal/conversation/models"
)

// ErrNotFound is wrapped by all implementations when a conversation does
// not exist, so callers can tell absence apart from store failures.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for conversation and transcript storage.
// Turns form an append-only log per conversation; they are never updated
// or reordered.
type Repository interface {
	// Conversation operations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Transcript operations. AppendTurns appends atomically: either every
	// turn lands in the transcript or none do.
	AppendTurn(ctx context.Context, turn *models.Turn) error
	AppendTurns(ctx context.Context, turns []*models.Turn) error
	ListTurns(ctx context.Context, conversationID string) ([]*models.Turn, error)

	// Close closes the repository (for database connections)
	Close() error
}
