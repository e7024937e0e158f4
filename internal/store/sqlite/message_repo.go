package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"buzztalk/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Create appends the message and moves the owning conversation's last-message
// pointer in the same transaction.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, m.ConversationID, m.SenderID, m.Content, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?
	`, id, now, m.ConversationID); err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.ID = id
	m.CreatedAt = now
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE id = ?
	`, id).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListSince returns messages created strictly after the cursor, oldest first,
// with the ID as a stable tie-break for equal timestamps.
func (r *MessageRepo) ListSince(ctx context.Context, conversationID int64, after time.Time) ([]*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}
	if !after.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, after.UTC())
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) CountUnread(ctx context.Context, conversationID, userID int64, lastRead time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = ? AND sender_id <> ? AND created_at > ?
	`, conversationID, userID, lastRead.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ToggleReaction removes an existing (user, emoji) reaction, or adds one if
// absent, then returns the message's full reaction set. The delete-first
// order makes a repeated identical reaction a toggle rather than a duplicate.
func (r *MessageRepo) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) ([]*domain.Reaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM message_reactions
		WHERE message_id = ? AND user_id = ? AND emoji = ?
	`, messageID, userID, emoji)
	if err != nil {
		return nil, fmt.Errorf("delete reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_reactions (message_id, user_id, emoji, created_at)
			VALUES (?, ?, ?, ?)
		`, messageID, userID, emoji, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("insert reaction: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return r.ListReactions(ctx, messageID)
}

func (r *MessageRepo) ListReactions(ctx context.Context, messageID int64) ([]*domain.Reaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = ?
		ORDER BY created_at ASC, user_id ASC, emoji ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	var res []*domain.Reaction
	for rows.Next() {
		rc := &domain.Reaction{}
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}
