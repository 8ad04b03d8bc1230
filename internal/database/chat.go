package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/smart-meds/internal/models"
	"github.com/google/uuid"
)

// ChatRepository persists chat sessions and their messages
type ChatRepository struct {
	db *DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetOrCreateSession returns the user's session, creating it on first use
func (r *ChatRepository) GetOrCreateSession(ctx context.Context, userID uuid.UUID) (*models.ChatSession, error) {
	s := &models.ChatSession{}
	now := time.Now()
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := r.db.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO chat_sessions (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, created_at, updated_at
	`, uuid.New(), userID, now).Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create chat session: %w", err)
	}
	return s, nil
}

// AddMessage appends a message to its session
func (r *ChatRepository) AddMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err = r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.SessionID, msg.Role, msg.Content, metadataJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add chat message: %w", err)
	}
	if _, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`, msg.SessionID, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to touch chat session: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the latest non-system messages, oldest first
func (r *ChatRepository) ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	return r.list(ctx, `
		SELECT id, session_id, role, content, metadata, created_at FROM (
			SELECT id, session_id, role, content, metadata, created_at
			FROM chat_messages
			WHERE session_id = $1 AND role <> 'system'
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, sessionID, limit)
}

// ListAll returns every message of the session, oldest first
func (r *ChatRepository) ListAll(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	return r.list(ctx, `
		SELECT id, session_id, role, content, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
}

// ClearMessages wipes the session's messages, keeping the session itself
func (r *ChatRepository) ClearMessages(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	result, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear chat messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *ChatRepository) list(ctx context.Context, query string, args ...any) ([]*models.ChatMessage, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		msg := &models.ChatMessage{}
		var metadataJSON []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return messages, nil
}
