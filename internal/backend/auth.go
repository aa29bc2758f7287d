package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/frevohq/frevo-core/internal/shared/types"
	"github.com/frevohq/frevo-core/internal/store"
)

// AuthTTL caps how long a stored credential stays usable when the token
// itself carries no expiry.
const AuthTTL = 24 * time.Hour

// AuthSession persists the signed-in identity in the local scope: the bearer
// token, the user record, and the sign-in timestamp. Validity is checked on
// read, never assumed.
type AuthSession struct {
	st     store.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthSession builds a session over the given store.
func NewAuthSession(st store.Store, logger *zap.Logger) *AuthSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthSession{st: st, logger: logger, now: time.Now}
}

// Save records a fresh sign-in.
func (s *AuthSession) Save(ctx context.Context, token string, user types.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return s.st.Set(ctx, store.ScopeLocal, map[string]string{
		store.KeyAuthToken:    token,
		store.KeyUser:         string(userJSON),
		store.KeyLastAuthTime: strconv.FormatInt(s.now().UnixMilli(), 10),
	})
}

// Token returns the stored bearer token if the session is still valid.
func (s *AuthSession) Token(ctx context.Context) (string, bool) {
	vals, err := s.st.Get(ctx, store.ScopeLocal, []string{store.KeyAuthToken, store.KeyLastAuthTime})
	if err != nil {
		s.logger.Warn("auth read failed", zap.Error(err))
		return "", false
	}
	token := vals[store.KeyAuthToken]
	if token == "" {
		return "", false
	}
	if !s.fresh(token, vals[store.KeyLastAuthTime]) {
		return "", false
	}
	return token, true
}

// User returns the stored user record if the session is still valid.
func (s *AuthSession) User(ctx context.Context) (*types.User, bool) {
	if _, ok := s.Token(ctx); !ok {
		return nil, false
	}
	vals, err := s.st.Get(ctx, store.ScopeLocal, []string{store.KeyUser})
	if err != nil || vals[store.KeyUser] == "" {
		return nil, false
	}
	var user types.User
	if err := json.Unmarshal([]byte(vals[store.KeyUser]), &user); err != nil {
		s.logger.Warn("stored user record unreadable", zap.Error(err))
		return nil, false
	}
	return &user, true
}

// Valid reports whether a usable credential is stored.
func (s *AuthSession) Valid(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// Logout discards the stored credential and identity.
func (s *AuthSession) Logout(ctx context.Context) error {
	return s.st.Delete(ctx, store.ScopeLocal, []string{
		store.KeyAuthToken, store.KeyUser, store.KeyLastAuthTime,
	})
}

// fresh prefers the token's own exp claim; an opaque token falls back to the
// sign-in timestamp plus AuthTTL.
func (s *AuthSession) fresh(token, lastAuth string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return s.now().Before(exp.Time)
		}
	}

	ms, err := strconv.ParseInt(lastAuth, 10, 64)
	if err != nil {
		return false
	}
	return s.now().Sub(time.UnixMilli(ms)) < AuthTTL
}
