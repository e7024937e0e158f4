package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzztalk/internal/domain"
	"buzztalk/internal/security"
	"buzztalk/internal/service"
	"buzztalk/internal/store/sqlite"
)

const testOrigin = "http://client.test"

type handlerEnv struct {
	hub     *Hub
	tokens  *security.TokenService
	users   *sqlite.UserRepo
	friends *sqlite.FriendRepo
	convs   *service.ConversationService
	srv     *httptest.Server
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	userRepo := sqlite.NewUserRepo(db)
	friendRepo := sqlite.NewFriendRepo(db)
	convRepo := sqlite.NewConversationRepo(db)
	partRepo := sqlite.NewParticipantRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)

	tokens := security.NewTokenService("ws-test-secret", time.Hour)
	hub := NewHub(NewPresence())
	convSvc := service.NewConversationService(convRepo, partRepo, msgRepo, userRepo, friendRepo)
	msgSvc := service.NewMessageService(convRepo, partRepo, msgRepo, userRepo, friendRepo)

	handler := MakeHandler(hub, tokens, userRepo, friendRepo, convSvc, msgSvc, []string{testOrigin})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &handlerEnv{
		hub:     hub,
		tokens:  tokens,
		users:   userRepo,
		friends: friendRepo,
		convs:   convSvc,
		srv:     srv,
	}
}

func (e *handlerEnv) createUser(t *testing.T, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, HashedPassword: "irrelevant"}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *handlerEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http")
}

func (e *handlerEnv) dial(t *testing.T, user *domain.User) *websocket.Conn {
	t.Helper()
	token, err := e.tokens.CreateForUser(user.ID, user.Username)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Origin", testOrigin)
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent discards frames until one with the wanted event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %q", want)
		if event, _ := frame["event"].(string); event == want {
			return frame
		}
	}
}

// expectNoEvent reads until the deadline and fails if the event shows up.
// The read timeout poisons the connection, so call this last.
func expectNoEvent(t *testing.T, conn *websocket.Conn, event string, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		got, _ := frame["event"].(string)
		require.NotEqual(t, event, got)
	}
}

func TestHandlerRejectsUnauthenticatedHandshake(t *testing.T) {
	env := newHandlerEnv(t)

	header := http.Header{}
	header.Set("Origin", testOrigin)

	// No token at all.
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Garbage token.
	header.Set("Authorization", "Bearer not-a-token")
	_, resp, err = websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Valid token but disallowed origin.
	alice := env.createUser(t, "alice")
	token, err := env.tokens.CreateForUser(alice.ID, alice.Username)
	require.NoError(t, err)
	header.Set("Origin", "http://evil.test")
	header.Set("Authorization", "Bearer "+token)
	_, resp, err = websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestHandlerConnectAnnouncesAndJoinsRooms(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	require.NoError(t, env.friends.AddFriend(ctx, alice.ID, bob.ID))
	conv, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	bobConn := env.dial(t, bob)

	aliceConn := env.dial(t, alice)
	online := readEvent(t, bobConn, "friendOnline")
	assert.Equal(t, float64(alice.ID), online["userId"])

	// Bob's send reaches Alice through the room she joined on connect.
	require.NoError(t, bobConn.WriteJSON(map[string]any{
		"event":   "sendMessage",
		"chatId":  conv.ID,
		"content": "hello alice",
	}))
	msg := readEvent(t, aliceConn, "newMessage")
	assert.Equal(t, float64(conv.ID), msg["chatId"])
	assert.Equal(t, float64(bob.ID), msg["senderId"])
	assert.Equal(t, "hello alice", msg["content"])
	assert.Equal(t, "bob", msg["senderUsername"])

	user, err := env.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, user.Status)
}

func TestHandlerGuardedOfflineAnnounce(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	require.NoError(t, env.friends.AddFriend(ctx, alice.ID, bob.ID))

	bobConn := env.dial(t, bob)

	first := env.dial(t, alice)
	readEvent(t, bobConn, "friendOnline")
	second := env.dial(t, alice)
	readEvent(t, bobConn, "friendOnline")

	// Closing the superseded session must not announce the user offline.
	require.NoError(t, first.Close())
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, second.Close())

	offline := readEvent(t, bobConn, "friendOffline")
	assert.Equal(t, float64(alice.ID), offline["userId"])
	assert.NotEmpty(t, offline["lastSeen"])

	// Exactly one offline announce for the two closed sessions.
	expectNoEvent(t, bobConn, "friendOffline", 300*time.Millisecond)

	require.Eventually(t, func() bool {
		user, err := env.users.GetByID(ctx, alice.ID)
		return err == nil && user.Status == domain.StatusOffline
	}, 2*time.Second, 50*time.Millisecond)
}
