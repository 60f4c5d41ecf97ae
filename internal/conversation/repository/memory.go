package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consilio/consilio/internal/conversation/models"
)

// MemoryRepository provides in-memory conversation storage
type MemoryRepository struct {
	conversations map[string]*models.Conversation
	turns         map[string][]*models.Turn
	mu            sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory conversation repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*models.Conversation),
		turns:         make(map[string][]*models.Turn),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateConversation creates a new conversation
func (r *MemoryRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	stored := *conv
	r.conversations[conv.ID] = &stored
	return nil
}

// GetConversation retrieves a conversation by ID. The returned value is a
// copy; the stored record is only mutated under the repository lock.
func (r *MemoryRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	copied := *conv
	return &copied, nil
}

// ListConversations returns all conversations
func (r *MemoryRepository) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		copied := *conv
		result = append(result, &copied)
	}
	return result, nil
}

// DeleteConversation deletes a conversation and its transcript
func (r *MemoryRepository) DeleteConversation(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	delete(r.conversations, id)
	delete(r.turns, id)
	return nil
}

// AppendTurn appends one turn to a conversation's transcript
func (r *MemoryRepository) AppendTurn(ctx context.Context, turn *models.Turn) error {
	return r.AppendTurns(ctx, []*models.Turn{turn})
}

// AppendTurns appends turns to a conversation's transcript atomically:
// validation happens before any write, so either all turns land or none do
func (r *MemoryRepository) AppendTurns(ctx context.Context, turns []*models.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conversationID := turns[0].ConversationID
	conv, ok := r.conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	for _, turn := range turns {
		if turn.ConversationID != conversationID {
			return fmt.Errorf("turns span conversations %s and %s", conversationID, turn.ConversationID)
		}
	}

	now := time.Now().UTC()
	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.New().String()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
	}

	r.turns[conversationID] = append(r.turns[conversationID], turns...)
	conv.UpdatedAt = now
	return nil
}

// ListTurns returns a conversation's transcript in append order
func (r *MemoryRepository) ListTurns(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}

	turns := r.turns[conversationID]
	result := make([]*models.Turn, len(turns))
	copy(result, turns)
	return result, nil
}
