package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for user accounts and
// the stored presence status.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*User, error)
	// SetStatus records a presence transition. LastSeen is updated only on
	// the transition to offline.
	SetStatus(ctx context.Context, id int64, status string, at time.Time) error
}

// FriendRepository defines persistence for the friend graph: the friend set,
// the blocked set, and pending friend requests. Friendship is stored in both
// directions; all mutations are idempotent so partially applied multi-step
// flows can be safely re-run.
type FriendRepository interface {
	ListFriends(ctx context.Context, userID int64) ([]*User, error)
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	AddFriend(ctx context.Context, a, b int64) error
	RemoveFriend(ctx context.Context, a, b int64) error

	// IsBlocked reports whether userID has otherID in their blocked set.
	IsBlocked(ctx context.Context, userID, otherID int64) (bool, error)
	// Block adds targetID to userID's blocked set and severs the friendship
	// in both directions.
	Block(ctx context.Context, userID, targetID int64) error
	Unblock(ctx context.Context, userID, targetID int64) error

	CreateFriendRequest(ctx context.Context, recipientID, senderID int64) error
	DeleteFriendRequest(ctx context.Context, recipientID, senderID int64) error
	HasFriendRequest(ctx context.Context, recipientID, senderID int64) (bool, error)
	ListFriendRequests(ctx context.Context, recipientID int64) ([]*FriendRequest, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	// FindByParticipants probes for an existing direct conversation by
	// participant-set membership, oldest first. Covers legacy rows that
	// predate the pair-key constraint.
	FindByParticipants(ctx context.Context, a, b int64) (*Conversation, error)
	FindByPairKey(ctx context.Context, key string) (*Conversation, error)
	// SetPairKey backfills the pair key on a legacy row. Returns ErrConflict
	// if another conversation already owns the key.
	SetPairKey(ctx context.Context, id int64, key string) error
	// CreateIfAbsent atomically inserts a conversation keyed on the pair key,
	// or returns the existing winner if a concurrent creator got there first.
	CreateIfAbsent(ctx context.Context, key string, a, b int64) (*Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	// Delete removes the conversation and cascades to its messages,
	// reactions, and participant rows.
	Delete(ctx context.Context, id int64) error
}

// ParticipantRepository defines operations around conversation membership
// and per-participant read cursors.
type ParticipantRepository interface {
	ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	// LastReadAt returns the participant's read cursor, or the zero time if
	// the participant has never marked the conversation read.
	LastReadAt(ctx context.Context, conversationID, userID int64) (time.Time, error)
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error
}

// MessageRepository defines persistence operations for messages and
// their reactions.
type MessageRepository interface {
	// Create appends the message and updates the owning conversation's
	// last-message pointer in the same transaction.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// ListSince returns messages created strictly after the cursor, ascending
	// by creation time with ID as a stable tie-break. A zero cursor returns
	// the full history.
	ListSince(ctx context.Context, conversationID int64, after time.Time) ([]*Message, error)
	CountUnread(ctx context.Context, conversationID, userID int64, lastRead time.Time) (int, error)
	// ToggleReaction removes an existing (user, emoji) reaction or adds one
	// if absent, then returns the message's full reaction set.
	ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) ([]*Reaction, error)
	ListReactions(ctx context.Context, messageID int64) ([]*Reaction, error)
}
