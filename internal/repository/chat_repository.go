package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

// ChatRepository persists the optional room message history.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository constructs a chat repository.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Append stores a message. The caller-assigned id is kept so the broadcast
// copy and the stored row share it.
func (r *ChatRepository) Append(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	const query = `INSERT INTO chat_messages (id, session_id, sender_id, sender_name, body, sent_at)
VALUES (:id, :session_id, :sender_id, :sender_name, :body, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the newest messages in chronological order.
func (r *ChatRepository) ListRecent(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const query = `SELECT id, session_id, sender_id, sender_name, body, sent_at
FROM chat_messages WHERE session_id = $1 ORDER BY sent_at DESC LIMIT $2`
	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
