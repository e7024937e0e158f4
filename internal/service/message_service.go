package service

import (
	"context"
	"fmt"
	"time"

	"buzztalk/internal/domain"
)

const maxContentRunes = 5000

// MessageService appends messages to conversations and owns reaction
// toggling. Content is opaque: it is persisted and forwarded, never
// interpreted.
type MessageService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	friends       domain.FriendRepository
}

func NewMessageService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	friends domain.FriendRepository,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		users:         users,
		friends:       friends,
	}
}

// Send validates and persists a message. A send across a blocked
// relationship (either direction) is silently suppressed: no row is written
// and (nil, nil) is returned so neither party learns a block exists.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID int64, content string) (*domain.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrInvalidInput, maxContentRunes)
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	ids, err := s.participants.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	var other int64
	isParticipant := false
	for _, id := range ids {
		if id == senderID {
			isParticipant = true
		} else {
			other = id
		}
	}
	if !isParticipant {
		return nil, domain.ErrForbidden
	}

	if other != 0 {
		for _, pair := range [][2]int64{{senderID, other}, {other, senderID}} {
			blocked, err := s.friends.IsBlocked(ctx, pair[0], pair[1])
			if err != nil {
				return nil, fmt.Errorf("check block: %w", err)
			}
			if blocked {
				return nil, nil
			}
		}
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListSince returns a conversation's messages created after the cursor,
// ascending. The caller must be a participant.
func (s *MessageService) ListSince(ctx context.Context, conversationID, userID int64, after time.Time) ([]*domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	ok, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrForbidden
	}
	return s.messages.ListSince(ctx, conversationID, after)
}

// React toggles the (user, emoji) reaction on a message and returns the
// owning conversation ID with the message's resulting reaction set.
func (s *MessageService) React(ctx context.Context, messageID, userID int64, emoji string) (int64, []*domain.Reaction, error) {
	if emoji == "" {
		return 0, nil, fmt.Errorf("%w: emoji is required", domain.ErrInvalidInput)
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return 0, nil, err
	}
	if msg == nil {
		return 0, nil, domain.ErrNotFound
	}
	ok, err := s.participants.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, domain.ErrForbidden
	}
	reactions, err := s.messages.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return 0, nil, err
	}
	return msg.ConversationID, reactions, nil
}

func (s *MessageService) Reactions(ctx context.Context, messageID int64) ([]*domain.Reaction, error) {
	return s.messages.ListReactions(ctx, messageID)
}

func (s *MessageService) SenderOf(ctx context.Context, m *domain.Message) (*domain.User, error) {
	return s.users.GetByID(ctx, m.SenderID)
}
