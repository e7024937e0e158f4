package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records every frame written to it.
type fakeConn struct {
	mu      sync.Mutex
	frames  []any
	failure error
	closed  bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return c.failure
	}
	c.frames = append(c.frames, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestSession(userID int64) (*Session, *fakeConn) {
	conn := &fakeConn{}
	return NewSession(userID, conn), conn
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(NewPresence())
	s, _ := newTestSession(1)

	hub.Register(s)
	assert.True(t, hub.Presence().IsOnline(1))

	hub.Join(10, s)
	assert.True(t, hub.InRoom(10, s.ID))

	cleared := hub.Unregister(s)
	assert.True(t, cleared)
	assert.False(t, hub.Presence().IsOnline(1))
	assert.False(t, hub.InRoom(10, s.ID))
}

func TestHubUnregisterSupersededSession(t *testing.T) {
	hub := NewHub(NewPresence())
	s1, _ := newTestSession(1)
	s2, _ := newTestSession(1)

	hub.Register(s1)
	hub.Register(s2)

	// The older session disconnecting must not clear presence for the user.
	assert.False(t, hub.Unregister(s1))
	assert.True(t, hub.Presence().IsOnline(1))

	assert.True(t, hub.Unregister(s2))
	assert.False(t, hub.Presence().IsOnline(1))
}

func TestHubJoinUntrackedSessionIsNoop(t *testing.T) {
	hub := NewHub(NewPresence())
	s, _ := newTestSession(1)

	hub.Join(10, s)
	assert.False(t, hub.InRoom(10, s.ID))
}

func TestBroadcastToRoomExcludesSender(t *testing.T) {
	hub := NewHub(NewPresence())
	alice, aliceConn := newTestSession(1)
	bob, bobConn := newTestSession(2)
	hub.Register(alice)
	hub.Register(bob)
	hub.Join(10, alice)
	hub.Join(10, bob)

	hub.BroadcastToRoom(10, map[string]any{"event": "userTyping"}, alice.ID)

	assert.Equal(t, 0, aliceConn.count())
	assert.Equal(t, 1, bobConn.count())
}

func TestBroadcastToConversationRoomAndBackstop(t *testing.T) {
	hub := NewHub(NewPresence())
	alice, aliceConn := newTestSession(1)
	bob, bobConn := newTestSession(2)
	hub.Register(alice)
	hub.Register(bob)

	// Alice joined the room; Bob is connected but has not joined yet.
	hub.Join(10, alice)

	hub.BroadcastToConversation(10, []int64{1, 2}, map[string]any{"event": "newMessage"})

	assert.Equal(t, 1, aliceConn.count(), "room member receives via the room path")
	assert.Equal(t, 1, bobConn.count(), "online participant outside the room receives via the registry backstop")
}

func TestBroadcastToConversationDeduplicates(t *testing.T) {
	hub := NewHub(NewPresence())
	alice, aliceConn := newTestSession(1)
	hub.Register(alice)
	hub.Join(10, alice)

	// Alice is both in the room and the registry's session for user 1; she
	// must still receive the event exactly once.
	hub.BroadcastToConversation(10, []int64{1}, map[string]any{"event": "newMessage"})

	assert.Equal(t, 1, aliceConn.count())
}

func TestBroadcastToConversationMultiSession(t *testing.T) {
	hub := NewHub(NewPresence())
	bobOld, oldConn := newTestSession(2)
	hub.Register(bobOld)
	hub.Join(10, bobOld)

	// Bob reconnects: the registry now points at the new session, while the
	// old one still sits in the room.
	bobNew, newConn := newTestSession(2)
	hub.Register(bobNew)

	hub.BroadcastToConversation(10, []int64{2}, map[string]any{"event": "newMessage"})

	assert.Equal(t, 1, oldConn.count())
	assert.Equal(t, 1, newConn.count())
}

func TestBroadcastSkipsOfflineParticipants(t *testing.T) {
	hub := NewHub(NewPresence())
	alice, aliceConn := newTestSession(1)
	hub.Register(alice)
	hub.Join(10, alice)

	hub.BroadcastToConversation(10, []int64{1, 2}, map[string]any{"event": "newMessage"})

	assert.Equal(t, 1, aliceConn.count())
	assert.False(t, hub.Presence().IsOnline(2))
}

func TestNotifyUser(t *testing.T) {
	hub := NewHub(NewPresence())
	bob, bobConn := newTestSession(2)
	hub.Register(bob)

	assert.True(t, hub.NotifyUser(2, map[string]any{"event": "newFriendRequest"}))
	assert.Equal(t, 1, bobConn.count())

	assert.False(t, hub.NotifyUser(99, map[string]any{"event": "newFriendRequest"}))
}

func TestDeliverClosesDeadSession(t *testing.T) {
	hub := NewHub(NewPresence())
	conn := &fakeConn{failure: errors.New("broken pipe")}
	s := NewSession(1, conn)
	hub.Register(s)
	hub.Join(10, s)

	hub.BroadcastToRoom(10, map[string]any{"event": "newMessage"}, "")

	require.True(t, conn.closed)
}
