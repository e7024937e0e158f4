package service

import (
	"context"
	"fmt"

	"buzztalk/internal/domain"
)

// UserService owns the friend graph: search, friend requests, friendships,
// and blocks. The conversation and message services consult it as the
// friend-graph collaborator.
type UserService struct {
	users   domain.UserRepository
	friends domain.FriendRepository
}

func NewUserService(users domain.UserRepository, friends domain.FriendRepository) *UserService {
	return &UserService{users: users, friends: friends}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// Search finds a user by exact username, excluding the caller.
func (s *UserService) Search(ctx context.Context, username string, selfID int64) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("search user: %w", err)
	}
	if user == nil || user.ID == selfID {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *UserService) ListFriends(ctx context.Context, userID int64) ([]*domain.User, error) {
	return s.friends.ListFriends(ctx, userID)
}

func (s *UserService) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	return s.friends.AreFriends(ctx, a, b)
}

// IsBlockedEither reports whether either user has blocked the other.
func (s *UserService) IsBlockedEither(ctx context.Context, a, b int64) (bool, error) {
	blocked, err := s.friends.IsBlocked(ctx, a, b)
	if err != nil {
		return false, err
	}
	if blocked {
		return true, nil
	}
	return s.friends.IsBlocked(ctx, b, a)
}

func (s *UserService) SendFriendRequest(ctx context.Context, senderID, recipientID int64) error {
	if senderID == recipientID {
		return fmt.Errorf("%w: cannot befriend yourself", domain.ErrInvalidInput)
	}
	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if recipient == nil {
		return domain.ErrNotFound
	}

	already, err := s.friends.AreFriends(ctx, senderID, recipientID)
	if err != nil {
		return err
	}
	if already {
		return fmt.Errorf("%w: you are already friends", domain.ErrConflict)
	}
	pending, err := s.friends.HasFriendRequest(ctx, recipientID, senderID)
	if err != nil {
		return err
	}
	if pending {
		return fmt.Errorf("%w: request already sent", domain.ErrConflict)
	}
	reverse, err := s.friends.HasFriendRequest(ctx, senderID, recipientID)
	if err != nil {
		return err
	}
	if reverse {
		return fmt.Errorf("%w: this user has already sent you a request", domain.ErrConflict)
	}

	return s.friends.CreateFriendRequest(ctx, recipientID, senderID)
}

// RespondFriendRequest removes the pending request and, on accept, records
// the friendship in both directions. Both steps are idempotent so a
// partially applied respond can be safely re-run.
func (s *UserService) RespondFriendRequest(ctx context.Context, recipientID, requesterID int64, accept bool) error {
	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("get requester: %w", err)
	}
	if requester == nil {
		return domain.ErrNotFound
	}
	if err := s.friends.DeleteFriendRequest(ctx, recipientID, requesterID); err != nil {
		return err
	}
	if accept {
		return s.friends.AddFriend(ctx, recipientID, requesterID)
	}
	return nil
}

func (s *UserService) ListFriendRequests(ctx context.Context, recipientID int64) ([]*domain.FriendRequest, error) {
	return s.friends.ListFriendRequests(ctx, recipientID)
}

func (s *UserService) Unfriend(ctx context.Context, userID, friendID int64) error {
	return s.friends.RemoveFriend(ctx, userID, friendID)
}

func (s *UserService) Block(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return fmt.Errorf("%w: cannot block yourself", domain.ErrInvalidInput)
	}
	return s.friends.Block(ctx, userID, targetID)
}

func (s *UserService) Unblock(ctx context.Context, userID, targetID int64) error {
	return s.friends.Unblock(ctx, userID, targetID)
}
