package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consilio/consilio/internal/conversation/models"
)

// PostgresRepository provides PostgreSQL-based conversation storage using pgx
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// Ensure PostgresRepository implements Repository interface
var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository connects to PostgreSQL and initializes the schema
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	repo := &PostgresRepository{pool: pool}

	if err := repo.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *PostgresRepository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		persona_id TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		tone TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		attachments JSONB NOT NULL DEFAULT '[]',
		stage JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_conversation_id ON turns(conversation_id);
	`

	_, err := r.pool.Exec(ctx, schema)
	return err
}

// Close closes the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateConversation creates a new conversation
func (r *PostgresRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, persona_id, mode, tone, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, conv.ID, conv.PersonaID, conv.Mode, conv.Tone, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (r *PostgresRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.pool.QueryRow(ctx, `
		SELECT id, persona_id, mode, tone, title, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&conv.ID, &conv.PersonaID, &conv.Mode, &conv.Tone, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns all conversations, most recently updated first
func (r *PostgresRepository) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, persona_id, mode, tone, title, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var result []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.PersonaID, &conv.Mode, &conv.Tone, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		result = append(result, &conv)
	}
	return result, rows.Err()
}

// DeleteConversation deletes a conversation; turns cascade
func (r *PostgresRepository) DeleteConversation(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return nil
}

// AppendTurn appends one turn to a conversation's transcript
func (r *PostgresRepository) AppendTurn(ctx context.Context, turn *models.Turn) error {
	return r.AppendTurns(ctx, []*models.Turn{turn})
}

// AppendTurns appends turns to a conversation's transcript in a single
// transaction, so either every turn lands or none do
func (r *PostgresRepository) AppendTurns(ctx context.Context, turns []*models.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.New().String()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}

		attachments, err := json.Marshal(turn.Attachments)
		if err != nil {
			attachments = []byte("[]")
		}

		var stage []byte
		if turn.Stage != nil {
			stage, err = json.Marshal(turn.Stage)
			if err != nil {
				return fmt.Errorf("failed to marshal stage metadata: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO turns (id, conversation_id, role, content, attachments, stage, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, turn.ID, turn.ConversationID, string(turn.Role), turn.Content, attachments, stage, turn.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations SET updated_at = $1 WHERE id = $2
	`, time.Now().UTC(), turns[0].ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, turns[0].ConversationID)
	}

	return tx.Commit(ctx)
}

// ListTurns returns a conversation's transcript in append order
func (r *PostgresRepository) ListTurns(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	if _, err := r.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, attachments, stage, created_at
		FROM turns WHERE conversation_id = $1 ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var result []*models.Turn
	for rows.Next() {
		var (
			turn        models.Turn
			role        string
			attachments []byte
			stage       []byte
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &role, &turn.Content, &attachments, &stage, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = roleFromString(role)
		if err := json.Unmarshal(attachments, &turn.Attachments); err != nil {
			turn.Attachments = nil
		}
		if len(stage) > 0 {
			var meta models.StageMeta
			if err := json.Unmarshal(stage, &meta); err == nil {
				turn.Stage = &meta
			}
		}
		result = append(result, &turn)
	}
	return result, rows.Err()
}
