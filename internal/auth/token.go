// Package auth issues and validates session tokens. A token is accepted only
// while it is the one persisted on the user record, so issuing a new token
// revokes the previous one and logout clears it.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/identity"
)

// TokenTTL is the lifetime of every session token.
const TokenTTL = time.Hour

const notAuthorized = "Not authorized"

// Claims is the signed payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string    `json:"uid"`
	UserCreatedAt time.Time `json:"createdAt"`
}

// TokenService mints session tokens and enforces the single live token per user.
type TokenService struct {
	secret []byte
	store  identity.Store
	now    func() time.Time
}

// NewTokenService builds a token service signing with secret and persisting
// issued tokens through store.
func NewTokenService(secret string, store identity.Store) *TokenService {
	return &TokenService{secret: []byte(secret), store: store, now: time.Now}
}

// Issue signs a token for user and stores it as the user's session token,
// overwriting any previous one.
func (s *TokenService) Issue(ctx context.Context, user identity.User) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		UserID:        user.ID,
		UserCreatedAt: user.CreatedAt.UTC(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if _, err := s.store.UpdateFields(ctx, user.ID, identity.Update{SessionToken: identity.Ptr(signed)}); err != nil {
		return "", fmt.Errorf("persist session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claims.
func (s *TokenService) Verify(token string) (Claims, error) {
	if token == "" {
		return Claims{}, apperr.Unauthorized(notAuthorized)
	}

	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, apperr.Wrap(apperr.KindUnauthorized, notAuthorized, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return Claims{}, apperr.Unauthorized(notAuthorized)
	}
	return claims, nil
}

// ResolveActiveUser verifies token and loads its user, rejecting tokens that
// are no longer the user's stored session token.
func (s *TokenService) ResolveActiveUser(ctx context.Context, token string) (identity.User, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return identity.User{}, err
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		return identity.User{}, apperr.Wrap(apperr.KindUnauthorized, notAuthorized, err)
	}
	if user.SessionToken == "" || subtle.ConstantTimeCompare([]byte(user.SessionToken), []byte(token)) != 1 {
		return identity.User{}, apperr.Unauthorized(notAuthorized)
	}
	return user, nil
}

// Invalidate clears the session token of the user owning token.
func (s *TokenService) Invalidate(ctx context.Context, token string) error {
	user, err := s.ResolveActiveUser(ctx, token)
	if err != nil {
		return err
	}
	if _, err := s.store.UpdateFields(ctx, user.ID, identity.Update{SessionToken: identity.Ptr("")}); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperr.Wrap(apperr.KindUnauthorized, notAuthorized, err)
		}
		return fmt.Errorf("clear session token: %w", err)
	}
	return nil
}
