package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"buzztalk/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

func (r *ParticipantRepo) ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY user_id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participant ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ParticipantRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is participant: %w", err)
	}
	return true, nil
}

// LastReadAt returns the zero time for participants that never marked the
// conversation read, so unread counting starts from the beginning of time.
func (r *ParticipantRepo) LastReadAt(ctx context.Context, conversationID, userID int64) (time.Time, error) {
	var lastRead sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT last_read_at
		FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?
	`, conversationID, userID).Scan(&lastRead)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last_read_at: %w", err)
	}
	if !lastRead.Valid {
		return time.Time{}, nil
	}
	return lastRead.Time, nil
}

func (r *ParticipantRepo) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = ?
		WHERE conversation_id = ? AND user_id = ?
	`, at.UTC(), conversationID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
