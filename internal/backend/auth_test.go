package backend

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/store"
)

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewAuthSession(store.NewMemory(), nil)

	require.NoError(t, s.Save(ctx, "opaque-token", types.User{Email: "dev@example.com", Name: "Dev"}))

	token, ok := s.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, "opaque-token", token)

	user, ok := s.User(ctx)
	require.True(t, ok)
	assert.Equal(t, "dev@example.com", user.Email)
	assert.True(t, s.Valid(ctx))
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	s := NewAuthSession(store.NewMemory(), nil)

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Save(ctx, "opaque-token", types.User{Email: "dev@example.com"}))

	s.now = func() time.Time { return base.Add(23 * time.Hour) }
	assert.True(t, s.Valid(ctx), "still fresh inside the window")

	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	assert.False(t, s.Valid(ctx), "opaque tokens age out after 24h")

	_, ok := s.User(ctx)
	assert.False(t, ok)
}

func TestSessionHonorsJWTExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewAuthSession(store.NewMemory(), nil)

	// A JWT whose exp is in one hour stays valid even past the 24h
	// fallback window, and dies at its own expiry.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dev",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Save(ctx, signed, types.User{Email: "dev@example.com"}))
	assert.True(t, s.Valid(ctx))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.False(t, s.Valid(ctx), "the token's own exp claim wins over the fallback window")
}

func TestSessionExpiredJWTRejected(t *testing.T) {
	ctx := context.Background()
	s := NewAuthSession(store.NewMemory(), nil)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dev",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, signed, types.User{Email: "dev@example.com"}))
	assert.False(t, s.Valid(ctx))
}

func TestLogoutInvalidatesImmediately(t *testing.T) {
	ctx := context.Background()
	s := NewAuthSession(store.NewMemory(), nil)

	require.NoError(t, s.Save(ctx, "opaque-token", types.User{Email: "dev@example.com"}))
	require.True(t, s.Valid(ctx))

	require.NoError(t, s.Logout(ctx))
	assert.False(t, s.Valid(ctx))
	_, ok := s.Token(ctx)
	assert.False(t, ok)
}

func TestEmptySessionInvalid(t *testing.T) {
	s := NewAuthSession(store.NewMemory(), nil)
	assert.False(t, s.Valid(context.Background()))
}
