package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buzztalk/internal/domain"
)

// ConversationService implements canonical conversation identity: every
// unordered pair of friends maps onto exactly one conversation record,
// even under concurrent creation.
type ConversationService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	users         domain.UserRepository
	friends       domain.FriendRepository
}

func NewConversationService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	users domain.UserRepository,
	friends domain.FriendRepository,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		users:         users,
		friends:       friends,
	}
}

// GetOrCreate resolves the single conversation for (userID, friendID),
// creating it if absent. Concurrent callers converge on one record: the
// uniqueness constraint on the pair key is the source of truth, and a lost
// race is reconciled by re-reading the winner, never surfaced as an error.
func (s *ConversationService) GetOrCreate(ctx context.Context, userID, friendID int64) (*domain.Conversation, error) {
	if userID == friendID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", domain.ErrInvalidInput)
	}
	friend, err := s.users.GetByID(ctx, friendID)
	if err != nil {
		return nil, fmt.Errorf("get friend: %w", err)
	}
	if friend == nil {
		return nil, domain.ErrNotFound
	}
	areFriends, err := s.friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("check friendship: %w", err)
	}
	if !areFriends {
		return nil, fmt.Errorf("%w: you are not friends with this user", domain.ErrInvalidInput)
	}

	key := domain.PairKey(userID, friendID)

	// Probe by participant set first: legacy rows may predate the pair key.
	conv, err := s.conversations.FindByParticipants(ctx, userID, friendID)
	if err != nil {
		return nil, fmt.Errorf("find by participants: %w", err)
	}
	if conv != nil {
		if conv.PairKey == nil {
			if err := s.conversations.SetPairKey(ctx, conv.ID, key); err != nil {
				if !errors.Is(err, domain.ErrConflict) {
					return nil, err
				}
				// A concurrent creator owns the key; their record wins.
				winner, err := s.conversations.FindByPairKey(ctx, key)
				if err != nil {
					return nil, err
				}
				if winner != nil {
					return winner, nil
				}
			} else {
				conv.PairKey = &key
			}
		}
		return conv, nil
	}

	return s.conversations.CreateIfAbsent(ctx, key, userID, friendID)
}

// Summary is one row of a user's conversation list.
type Summary struct {
	Conversation *domain.Conversation
	Other        *domain.User
	LastMessage  *domain.Message
	Unread       int
}

// List returns the caller's conversations with unread counts, deduplicated
// by pair key so a legacy duplicate is never user-visible.
func (s *ConversationService) List(ctx context.Context, userID int64) ([]*Summary, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(convs))
	var res []*Summary
	for _, conv := range convs {
		ids, err := s.participants.ParticipantIDs(ctx, conv.ID)
		if err != nil {
			return nil, err
		}

		key := ""
		if conv.PairKey != nil {
			key = *conv.PairKey
		} else if len(ids) == 2 {
			key = domain.PairKey(ids[0], ids[1])
		} else {
			key = fmt.Sprintf("id:%d", conv.ID)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		sum := &Summary{Conversation: conv}
		for _, id := range ids {
			if id != userID {
				other, err := s.users.GetByID(ctx, id)
				if err != nil {
					return nil, err
				}
				sum.Other = other
				break
			}
		}
		if conv.LastMessageID != nil {
			last, err := s.messages.GetByID(ctx, *conv.LastMessageID)
			if err != nil {
				return nil, err
			}
			sum.LastMessage = last
		}

		lastRead, err := s.participants.LastReadAt(ctx, conv.ID, userID)
		if err != nil {
			return nil, err
		}
		unread, err := s.messages.CountUnread(ctx, conv.ID, userID, lastRead)
		if err != nil {
			return nil, err
		}
		sum.Unread = unread

		res = append(res, sum)
	}
	return res, nil
}

// MarkRead advances the caller's read cursor and returns the cursor instant
// for the messagesRead broadcast.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID int64) (time.Time, error) {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	if err := s.participants.MarkRead(ctx, conversationID, userID, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// Delete removes the conversation and all of its messages.
func (s *ConversationService) Delete(ctx context.Context, conversationID, userID int64) error {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.conversations.Delete(ctx, conversationID)
}

func (s *ConversationService) ParticipantIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	return s.participants.ParticipantIDs(ctx, conversationID)
}

func (s *ConversationService) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	return s.participants.IsParticipant(ctx, conversationID, userID)
}

func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]*domain.Conversation, error) {
	return s.conversations.ListForUser(ctx, userID)
}

func (s *ConversationService) requireParticipant(ctx context.Context, conversationID, userID int64) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return domain.ErrNotFound
	}
	ok, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}
