package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/identity"
)

func newServiceWithUser(t *testing.T) (*TokenService, identity.Store, identity.User) {
	t.Helper()
	store := identity.NewMemoryRepository()
	user := identity.User{
		ID:           uuid.NewString(),
		Email:        "a@x.com",
		Subscription: identity.DefaultSubscription,
		Verified:     true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Upsert(context.Background(), user))
	return NewTokenService("super-secret", store), store, user
}

func TestIssuePersistsTokenAndResolves(t *testing.T) {
	svc, store, user := newServiceWithUser(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, user)
	require.NoError(t, err)

	stored, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, token, stored.SessionToken)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, 5*time.Second)

	active, err := svc.ResolveActiveUser(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.Email, active.Email)
}

func TestNewTokenRevokesPrevious(t *testing.T) {
	svc, _, user := newServiceWithUser(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, user)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, user)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = svc.ResolveActiveUser(ctx, first)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.ResolveActiveUser(ctx, second)
	require.NoError(t, err)
}

func TestInvalidateClearsSession(t *testing.T) {
	svc, store, user := newServiceWithUser(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, user)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, token))

	stored, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, stored.SessionToken)

	_, err = svc.ResolveActiveUser(ctx, token)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	require.ErrorIs(t, svc.Invalidate(ctx, token), apperr.ErrUnauthorized)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	svc, _, user := newServiceWithUser(t)

	_, err := svc.Verify("")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.Verify("not.a.jwt")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	other := NewTokenService("wrong-secret", identity.NewMemoryRepository())
	require.NoError(t, other.store.Upsert(context.Background(), user))
	foreign, err := other.Issue(context.Background(), user)
	require.NoError(t, err)
	_, err = svc.Verify(foreign)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: user.ID})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(unsigned)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, _, user := newServiceWithUser(t)
	ctx := context.Background()

	token, err := svc.Issue(ctx, user)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(TokenTTL + time.Minute) }
	_, err = svc.Verify(token)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.ResolveActiveUser(ctx, token)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveActiveUserUnknownUser(t *testing.T) {
	svc, _, _ := newServiceWithUser(t)
	ghost := identity.User{ID: uuid.NewString(), CreatedAt: time.Now()}

	_, err := svc.Issue(context.Background(), ghost)
	require.ErrorIs(t, err, identity.ErrNotFound)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           ghost.ID,
	}).SignedString(svc.secret)
	require.NoError(t, err)

	_, err = svc.ResolveActiveUser(context.Background(), signed)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}
