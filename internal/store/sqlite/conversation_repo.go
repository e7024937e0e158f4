package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"buzztalk/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, pair_key, last_message_id, created_at, updated_at`

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return r.scanOne(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

func (r *ConversationRepo) FindByPairKey(ctx context.Context, key string) (*domain.Conversation, error) {
	return r.scanOne(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE pair_key = ?`, key)
}

// FindByParticipants probes by participant-set membership, oldest first, so
// rows created before the pair-key constraint existed are still found.
func (r *ConversationRepo) FindByParticipants(ctx context.Context, a, b int64) (*domain.Conversation, error) {
	return r.scanOne(ctx, `
		SELECT c.id, c.pair_key, c.last_message_id, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants p1 ON p1.conversation_id = c.id AND p1.user_id = ?
		JOIN conversation_participants p2 ON p2.conversation_id = c.id AND p2.user_id = ?
		ORDER BY c.created_at ASC
		LIMIT 1
	`, a, b)
}

// SetPairKey backfills the key on a legacy row. The uniqueness constraint is
// the source of truth: a violation means a concurrent creator won, and the
// caller must re-read by key.
func (r *ConversationRepo) SetPairKey(ctx context.Context, id int64, key string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET pair_key = ? WHERE id = ? AND pair_key IS NULL
	`, key, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("set pair key: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts a conversation keyed on the pair key. A concurrent
// creator losing the race gets zero affected rows and re-reads the winner
// instead of failing.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, key string, a, b int64) (*domain.Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (pair_key, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(pair_key) DO NOTHING
	`, key, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Lost the race; the winner's record is the conversation.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		conv, err := r.FindByPairKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("conversation for key %q vanished after conflict", key)
		}
		return conv, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	for _, uid := range []int64{a, b} {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO conversation_participants (user_id, conversation_id, joined_at)
			VALUES (?, ?, ?)
		`, uid, id, now); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &domain.Conversation{
		ID:        id,
		PairKey:   &key,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.pair_key, c.last_message_id, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = ?
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(&c.ID, &c.PairKey, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Delete removes the conversation and cascades to messages, reactions, and
// participant rows.
func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM message_reactions
		WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)
	`, id); err != nil {
		return fmt.Errorf("delete reactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_participants WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) scanOne(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID,
		&c.PairKey,
		&c.LastMessageID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}
