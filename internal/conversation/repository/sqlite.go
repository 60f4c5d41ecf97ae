package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/consilio/consilio/internal/conversation/models"
	v1 "github.com/consilio/consilio/pkg/api/v1"
)

// SQLiteRepository provides SQLite-based conversation storage
type SQLiteRepository struct {
	db *sql.DB
}

// Ensure SQLiteRepository implements Repository interface
var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// initSchema creates the database tables if they don't exist
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		persona_id TEXT NOT NULL,
		mode TEXT DEFAULT '',
		tone TEXT DEFAULT '',
		title TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT DEFAULT '',
		attachments TEXT DEFAULT '[]',
		stage TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_turns_conversation_id ON turns(conversation_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// CreateConversation creates a new conversation
func (r *SQLiteRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, persona_id, mode, tone, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.PersonaID, conv.Mode, conv.Tone, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (r *SQLiteRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, persona_id, mode, tone, title, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns all conversations, most recently updated first
func (r *SQLiteRepository) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, persona_id, mode, tone, title, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var result []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

// DeleteConversation deletes a conversation; turns cascade
func (r *SQLiteRepository) DeleteConversation(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return nil
}

// AppendTurn appends one turn to a conversation's transcript
func (r *SQLiteRepository) AppendTurn(ctx context.Context, turn *models.Turn) error {
	return r.AppendTurns(ctx, []*models.Turn{turn})
}

// AppendTurns appends turns to a conversation's transcript in a single
// transaction, so either every turn lands or none do
func (r *SQLiteRepository) AppendTurns(ctx context.Context, turns []*models.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

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

		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns (id, conversation_id, role, content, attachments, stage, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, turn.ID, turn.ConversationID, string(turn.Role), turn.Content, string(attachments), nullableString(stage), turn.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), turns[0].ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, turns[0].ConversationID)
	}

	return tx.Commit()
}

// ListTurns returns a conversation's transcript in append order
func (r *SQLiteRepository) ListTurns(ctx context.Context, conversationID string) ([]*models.Turn, error) {
	if _, err := r.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, attachments, stage, created_at
		FROM turns WHERE conversation_id = ? ORDER BY rowid ASC
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
			attachments string
			stage       sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &role, &turn.Content, &attachments, &stage, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = roleFromString(role)
		if err := json.Unmarshal([]byte(attachments), &turn.Attachments); err != nil {
			turn.Attachments = nil
		}
		if stage.Valid && stage.String != "" {
			var meta models.StageMeta
			if err := json.Unmarshal([]byte(stage.String), &meta); err == nil {
				turn.Stage = &meta
			}
		}
		result = append(result, &turn)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(&conv.ID, &conv.PersonaID, &conv.Mode, &conv.Tone, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func roleFromString(role string) v1.Role {
	switch v1.Role(role) {
	case v1.RoleUser, v1.RoleAssistant, v1.RoleSystem:
		return v1.Role(role)
	default:
		return v1.RoleUser
	}
}
