package domain

import "time"

// User status values. Presence is owned by the ws layer; the stored status
// only reflects the last connect/disconnect transition.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// User represents an application user.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	DisplayName    *string   `db:"display_name" json:"display_name,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Conversation is a direct 1:1 thread between two users. PairKey is the
// canonical identifier for the unordered participant pair; it is nullable
// only to tolerate legacy rows created before the uniqueness constraint.
type Conversation struct {
	ID            int64     `db:"id"`
	PairKey       *string   `db:"pair_key"`
	LastMessageID *int64    `db:"last_message_id"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ConversationParticipant tracks membership and the per-user read cursor.
// A NULL LastReadAt means the participant has never marked the thread read.
type ConversationParticipant struct {
	UserID         int64      `db:"user_id"`
	ConversationID int64      `db:"conversation_id"`
	LastReadAt     *time.Time `db:"last_read_at"`
	JoinedAt       time.Time  `db:"joined_at"`
}

// Message is a single chat message. Content is opaque to the server.
type Message struct {
	ID             int64     `db:"id"`
	ConversationID int64     `db:"conversation_id"`
	SenderID       int64     `db:"sender_id"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

// Reaction is one (user, emoji) mark on a message. At most one row exists
// per (message, user, emoji); a repeated identical reaction toggles it off.
type Reaction struct {
	MessageID int64     `db:"message_id" json:"message_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"at"`
}

// FriendRequest is a pending request from Sender to Recipient.
type FriendRequest struct {
	RecipientID int64     `db:"recipient_id"`
	SenderID    int64     `db:"sender_id"`
	CreatedAt   time.Time `db:"created_at"`
}
