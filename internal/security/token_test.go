package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.CreateForUser(42, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestTokenWrongSecret(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	other := NewTokenService("other-secret", time.Hour)

	token, err := svc.CreateForUser(42, "alice")
	require.NoError(t, err)

	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute)

	token, err := svc.CreateForUser(42, "alice")
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	_, err := svc.Parse("not-a-token")
	assert.Error(t, err)
}

func TestPasswordHashAndVerify(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hashed, err := h.Hash("hunter2!")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2!", hashed)

	assert.NoError(t, h.Verify("hunter2!", hashed))
	assert.Error(t, h.Verify("wrong", hashed))
}

func TestPasswordHasherCostFallback(t *testing.T) {
	assert.Equal(t, defaultHashCost, NewPasswordHasher(0).cost)
	assert.Equal(t, defaultHashCost, NewPasswordHasher(-3).cost)
	assert.Equal(t, bcrypt.MinCost, NewPasswordHasher(bcrypt.MinCost).cost)
}
