package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"docchat/internal/models"
	"docchat/internal/util"
)

type ChatRepo struct {
	db *DB
}

func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// EnsureSession creates the session when it does not exist yet and returns the
// id of the user that owns the stored row. Callers compare it with their own
// user id, since an existing session is never reassigned.
func (r *ChatRepo) EnsureSession(ctx context.Context, s models.ChatSession) (string, error) {
	var owner string
	err := r.db.Pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO chat_session (id, user_id, chat_name)
  VALUES ($1, $2, $3)
  ON CONFLICT (id) DO NOTHING
  RETURNING user_id
)
SELECT user_id FROM ins
UNION ALL
SELECT user_id FROM chat_session WHERE id = $1
LIMIT 1`, s.ID, s.UserID, s.ChatName).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent insert committed after this statement's snapshot.
		return r.SessionOwner(ctx, s.ID)
	}
	if err != nil {
		return "", fmt.Errorf("insert chat session: %w", err)
	}
	return owner, nil
}

// SessionOwner returns the user id owning chatID, or util.ErrNotFound.
func (r *ChatRepo) SessionOwner(ctx context.Context, chatID string) (string, error) {
	var owner string
	err := r.db.Pool.QueryRow(ctx, `SELECT user_id FROM chat_session WHERE id=$1`, chatID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("chat session %s: %w", chatID, util.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get chat session owner: %w", err)
	}
	return owner, nil
}

func (r *ChatRepo) InsertMessage(ctx context.Context, m models.ChatMessage) error {
	var parts any
	if len(m.Parts) > 0 {
		parts = []byte(m.Parts)
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO chat_messages (id, chat_id, role, content, parts, tokens, parent_id)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		m.ID, m.ChatID, m.Role, m.Content, parts, m.Tokens, m.ParentID)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *ChatRepo) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, user_id, chat_name, created_at
FROM chat_session
WHERE user_id=$1
ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChatSession, 0)
	for rows.Next() {
		var s models.ChatSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.ChatName, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat sessions: %w", err)
	}
	return out, nil
}

// ListMessages returns a session's messages oldest first. Sessions owned by
// another user are reported as not found.
func (r *ChatRepo) ListMessages(ctx context.Context, userID, chatID string) ([]models.ChatMessage, error) {
	var owner string
	err := r.db.Pool.QueryRow(ctx, `SELECT user_id FROM chat_session WHERE id=$1`, chatID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != userID) {
		return nil, fmt.Errorf("chat session %s: %w", chatID, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat session owner: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
SELECT id, chat_id, role, content, COALESCE(parts, 'null'::jsonb), tokens, parent_id, is_liked, created_at
FROM chat_messages
WHERE chat_id=$1
ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChatMessage, 0, 32)
	for rows.Next() {
		var m models.ChatMessage
		var parts []byte
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &parts, &m.Tokens, &m.ParentID, &m.IsLiked, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if string(parts) != "null" {
			m.Parts = parts
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

// SetFeedback records a like (true), dislike (false) or clears it (nil) on an
// assistant message owned by userID.
func (r *ChatRepo) SetFeedback(ctx context.Context, userID, messageID string, liked *bool) error {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE chat_messages m
SET is_liked=$3
FROM chat_session s
WHERE m.id=$2 AND m.chat_id=s.id AND s.user_id=$1`, userID, messageID, liked)
	if err != nil {
		return fmt.Errorf("update message feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat message %s: %w", messageID, util.ErrNotFound)
	}
	return nil
}
