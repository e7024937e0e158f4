package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"buzztalk/internal/domain"
)

type FriendRepo struct {
	db *sql.DB
}

func NewFriendRepo(db *sql.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

var _ domain.FriendRepository = (*FriendRepo)(nil)

func (r *FriendRepo) ListFriends(ctx context.Context, userID int64) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.display_name, u.hashed_password, u.is_active, u.status, u.created_at, u.last_seen
		FROM users u
		JOIN friends f ON f.friend_id = u.id
		WHERE f.user_id = ?
		ORDER BY u.username ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *FriendRepo) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM friends WHERE user_id = ? AND friend_id = ?`, a, b)
}

// AddFriend records the friendship in both directions. INSERT OR IGNORE makes
// a re-run of a partially applied add converge.
func (r *FriendRepo) AddFriend(ctx context.Context, a, b int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, pair := range [][2]int64{{a, b}, {b, a}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)
		`, pair[0], pair[1]); err != nil {
			return fmt.Errorf("insert friendship: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *FriendRepo) RemoveFriend(ctx context.Context, a, b int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`, a, b, b, a)
	if err != nil {
		return fmt.Errorf("remove friendship: %w", err)
	}
	return nil
}

func (r *FriendRepo) IsBlocked(ctx context.Context, userID, otherID int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM blocked_users WHERE user_id = ? AND blocked_id = ?`, userID, otherID)
}

// Block adds targetID to userID's blocked set and severs the friendship in
// both directions.
func (r *FriendRepo) Block(ctx context.Context, userID, targetID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO blocked_users (user_id, blocked_id) VALUES (?, ?)
	`, userID, targetID); err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`, userID, targetID, targetID, userID); err != nil {
		return fmt.Errorf("sever friendship: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *FriendRepo) Unblock(ctx context.Context, userID, targetID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM blocked_users WHERE user_id = ? AND blocked_id = ?
	`, userID, targetID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

func (r *FriendRepo) CreateFriendRequest(ctx context.Context, recipientID, senderID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO friend_requests (recipient_id, sender_id, created_at) VALUES (?, ?, ?)
	`, recipientID, senderID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert friend request: %w", err)
	}
	return nil
}

func (r *FriendRepo) DeleteFriendRequest(ctx context.Context, recipientID, senderID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM friend_requests WHERE recipient_id = ? AND sender_id = ?
	`, recipientID, senderID)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}

func (r *FriendRepo) HasFriendRequest(ctx context.Context, recipientID, senderID int64) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM friend_requests WHERE recipient_id = ? AND sender_id = ?`, recipientID, senderID)
}

func (r *FriendRepo) ListFriendRequests(ctx context.Context, recipientID int64) ([]*domain.FriendRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recipient_id, sender_id, created_at
		FROM friend_requests
		WHERE recipient_id = ?
		ORDER BY created_at ASC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()

	var reqs []*domain.FriendRequest
	for rows.Next() {
		fr := &domain.FriendRequest{}
		if err := rows.Scan(&fr.RecipientID, &fr.SenderID, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		reqs = append(reqs, fr)
	}
	return reqs, rows.Err()
}

func (r *FriendRepo) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return true, nil
}
