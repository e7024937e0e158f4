package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"buzztalk/internal/domain"
	"buzztalk/internal/security"
	"buzztalk/internal/service"
	"buzztalk/internal/store/sqlite"
)

// testEnv wires the services against a throwaway on-disk database.
type testEnv struct {
	db      *sql.DB
	friends *sqlite.FriendRepo

	auth  *service.AuthService
	users *service.UserService
	convs *service.ConversationService
	msgs  *service.MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	userRepo := sqlite.NewUserRepo(db)
	friendRepo := sqlite.NewFriendRepo(db)
	convRepo := sqlite.NewConversationRepo(db)
	partRepo := sqlite.NewParticipantRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)

	tokens := security.NewTokenService("test-secret", time.Hour)
	hasher := security.NewPasswordHasher(bcrypt.MinCost)

	return &testEnv{
		db:      db,
		friends: friendRepo,
		auth:    service.NewAuthService(userRepo, tokens, hasher),
		users:   service.NewUserService(userRepo, friendRepo),
		convs:   service.NewConversationService(convRepo, partRepo, msgRepo, userRepo, friendRepo),
		msgs:    service.NewMessageService(convRepo, partRepo, msgRepo, userRepo, friendRepo),
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *domain.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), service.RegisterInput{
		Username: username,
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) befriend(t *testing.T, a, b int64) {
	t.Helper()
	require.NoError(t, e.friends.AddFriend(context.Background(), a, b))
}

// insertLegacyConversation creates a conversation row the way rows looked
// before the pair key existed: no key, just the two participant rows.
func (e *testEnv) insertLegacyConversation(t *testing.T, a, b int64, createdAt time.Time) int64 {
	t.Helper()
	createdAt = createdAt.UTC()
	res, err := e.db.Exec(`
		INSERT INTO conversations (pair_key, created_at, updated_at) VALUES (NULL, ?, ?)
	`, createdAt, createdAt)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	for _, uid := range []int64{a, b} {
		_, err := e.db.Exec(`
			INSERT INTO conversation_participants (user_id, conversation_id, joined_at) VALUES (?, ?, ?)
		`, uid, id, createdAt)
		require.NoError(t, err)
	}
	return id
}

func (e *testEnv) countRows(t *testing.T, table string, conversationID int64) int {
	t.Helper()
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE conversation_id = ?`, table)
	require.NoError(t, e.db.QueryRow(query, conversationID).Scan(&n))
	return n
}
