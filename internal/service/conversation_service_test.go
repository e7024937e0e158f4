package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzztalk/internal/domain"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.befriend(t, alice.ID, bob.ID)

	first, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, first.PairKey)
	assert.Equal(t, domain.PairKey(alice.ID, bob.ID), *first.PairKey)

	// Repeats from either side resolve to the same record.
	again, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	reversed, err := env.convs.GetOrCreate(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, reversed.ID)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.befriend(t, alice.ID, bob.ID)

	const n = 32
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := env.convs.GetOrCreate(ctx, a, b)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestGetOrCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	_, err := env.convs.GetOrCreate(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.convs.GetOrCreate(ctx, alice.ID, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Not friends yet.
	_, err = env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetOrCreateBackfillsLegacyRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.befriend(t, alice.ID, bob.ID)

	legacyID := env.insertLegacyConversation(t, alice.ID, bob.ID, time.Now().Add(-time.Hour))

	conv, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, legacyID, conv.ID)
	require.NotNil(t, conv.PairKey)
	assert.Equal(t, domain.PairKey(alice.ID, bob.ID), *conv.PairKey)
}

func TestGetOrCreateBackfillConflictYieldsWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.befriend(t, alice.ID, bob.ID)

	// An old keyless row, and a newer duplicate that already owns the key.
	env.insertLegacyConversation(t, alice.ID, bob.ID, time.Now().Add(-time.Hour))
	winnerID := env.insertLegacyConversation(t, alice.ID, bob.ID, time.Now())
	key := domain.PairKey(alice.ID, bob.ID)
	_, err := env.db.Exec(`UPDATE conversations SET pair_key = ? WHERE id = ?`, key, winnerID)
	require.NoError(t, err)

	// The probe finds the older keyless row first; the key conflict on
	// backfill must resolve to the row that owns the key.
	conv, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, winnerID, conv.ID)
}

func TestListDedupesByPairKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.befriend(t, alice.ID, bob.ID)

	keyed, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	// A leftover duplicate row for the same pair, never backfilled.
	env.insertLegacyConversation(t, alice.ID, bob.ID, time.Now().Add(-time.Hour))

	summaries, err := env.convs.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, keyed.ID, summaries[0].Conversation.ID)
	require.NotNil(t, summaries[0].Other)
	assert.Equal(t, bob.ID, summaries[0].Other.ID)
}

func TestListIncludesLastMessageAndUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	env.befriend(t, alice.ID, bob.ID)

	conv, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = env.msgs.Send(ctx, conv.ID, alice.ID, "hi bob")
	require.NoError(t, err)
	last, err := env.msgs.Send(ctx, conv.ID, alice.ID, "you there?")
	require.NoError(t, err)

	summaries, err := env.convs.List(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, last.ID, summaries[0].LastMessage.ID)
	assert.Equal(t, 2, summaries[0].Unread)

	// The sender's own list has nothing unread.
	mine, err := env.convs.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, 0, mine[0].Unread)
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	eve := env.createUser(t, "eve")
	env.befriend(t, alice.ID, bob.ID)

	conv, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.msgs.Send(ctx, conv.ID, alice.ID, "hi")
	require.NoError(t, err)

	at, err := env.convs.MarkRead(ctx, conv.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, at.IsZero())

	summaries, err := env.convs.List(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Unread)

	_, err = env.convs.MarkRead(ctx, conv.ID, eve.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.convs.MarkRead(ctx, 9999, bob.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	eve := env.createUser(t, "eve")
	env.befriend(t, alice.ID, bob.ID)

	conv, err := env.convs.GetOrCreate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	msg, err := env.msgs.Send(ctx, conv.ID, alice.ID, "hello")
	require.NoError(t, err)
	_, _, err = env.msgs.React(ctx, msg.ID, bob.ID, "👍")
	require.NoError(t, err)

	err = env.convs.Delete(ctx, conv.ID, eve.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, env.convs.Delete(ctx, conv.ID, alice.ID))

	assert.Equal(t, 0, env.countRows(t, "messages", conv.ID))
	assert.Equal(t, 0, env.countRows(t, "conversation_participants", conv.ID))
	_, err = env.msgs.ListSince(ctx, conv.ID, alice.ID, time.Time{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
