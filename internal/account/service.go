// Package account implements the account workflows: registration with
// optional email verification, login, logout, password reset, subscription
// changes and avatar replacement. State lives entirely in the identity store.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/auth"
	"github.com/userauth/userauth/internal/avatar"
	"github.com/userauth/userauth/internal/identity"
	"github.com/userauth/userauth/internal/notification"
)

var errNotVerified = errors.New("email not verified")

// Options toggles workflow behavior.
type Options struct {
	// RequireVerification makes new accounts confirm their email before login.
	RequireVerification bool
	// PublicBaseURL prefixes verification links.
	PublicBaseURL string
}

// Profile is the public view of a user.
type Profile struct {
	ID           string
	Email        string
	Subscription identity.Subscription
	AvatarURL    string
}

func profileOf(u identity.User) Profile {
	return Profile{ID: u.ID, Email: u.Email, Subscription: u.Subscription, AvatarURL: u.AvatarURL}
}

// Session is a profile plus the session token issued for it. Token is empty
// when none was issued.
type Session struct {
	Profile
	Token string
}

// Service orchestrates the account workflows.
type Service struct {
	store    identity.Store
	tokens   *auth.TokenService
	notifier notification.Notifier
	avatars  *avatar.Service
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the workflow engine.
func NewService(store identity.Store, tokens *auth.TokenService, notifier notification.Notifier, avatars *avatar.Service, opts Options, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		avatars:  avatars,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates an account. With verification enabled the user receives
// a verification link and no session token; otherwise a token is issued.
func (s *Service) Register(ctx context.Context, creds identity.Credentials) (Session, error) {
	if _, err := s.store.FindByEmail(ctx, creds.Email); err == nil {
		return Session{}, apperr.Conflict(fmt.Sprintf("Email %s in use", creds.Email))
	} else if !errors.Is(err, identity.ErrNotFound) {
		return Session{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := identity.HashPassword(creds.Password)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindValidation, "password is required", err)
	}

	user := identity.User{
		ID:           uuid.NewString(),
		Email:        creds.Email,
		PasswordHash: hash,
		Subscription: identity.DefaultSubscription,
		AvatarURL:    avatar.DefaultURL(creds.Email),
		Verified:     !s.opts.RequireVerification,
		CreatedAt:    s.now().UTC(),
	}
	if s.opts.RequireVerification {
		user.VerificationToken = identity.NewVerificationToken()
	}

	if err := s.store.Upsert(ctx, user); err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return Session{}, apperr.Conflict(fmt.Sprintf("Email %s in use", creds.Email))
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	s.log("account.register", user.ID, slog.Bool("verification_required", s.opts.RequireVerification))

	if s.opts.RequireVerification {
		if err := s.sendVerification(ctx, user.Email, user.VerificationToken); err != nil {
			return Session{}, err
		}
		return Session{Profile: profileOf(user)}, nil
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return Session{}, err
	}
	return Session{Profile: profileOf(user), Token: token}, nil
}

// VerifyRegistration consumes a verification token, marks the user verified
// and signs them in. A consumed token no longer resolves, also for a caller
// racing the one that consumed it.
func (s *Service) VerifyRegistration(ctx context.Context, verificationToken string) (Session, error) {
	user, err := s.store.ConsumeVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Session{}, apperr.NotFound("User not found")
		}
		return Session{}, fmt.Errorf("consume verification token: %w", err)
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return Session{}, err
	}
	s.log("account.verify", user.ID)

	// The account is already verified; a failed confirmation email must not undo that.
	if err := s.notifier.Send(ctx, notification.RegistrationConfirmedMessage(user.Email)); err != nil && s.logger != nil {
		s.logger.Warn("send registration confirmation", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return Session{Profile: profileOf(user), Token: token}, nil
}

// ResendVerification replaces the outstanding verification token and mails it again.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return fmt.Errorf("lookup email: %w", err)
	}
	if user.VerificationToken == "" {
		return apperr.Validation("Verification has already been passed")
	}

	next := identity.NewVerificationToken()
	if _, err := s.store.UpdateFields(ctx, user.ID, identity.Update{VerificationToken: identity.Ptr(next)}); err != nil {
		return fmt.Errorf("rotate verification token: %w", err)
	}
	s.log("account.verify_resend", user.ID)

	return s.sendVerification(ctx, user.Email, next)
}

// ForgotPassword replaces the password of a verified user with a random
// temporary one and emails it to them.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return fmt.Errorf("lookup email: %w", err)
	}
	if err != nil || !user.Verified {
		return apperr.Wrap(apperr.KindUnauthorized, fmt.Sprintf("No user with email %s found", email), err)
	}

	temporary := identity.NewTemporaryPassword()
	hash, err := identity.HashPassword(temporary)
	if err != nil {
		return fmt.Errorf("hash temporary password: %w", err)
	}
	if _, err := s.store.UpdateFields(ctx, user.ID, identity.Update{PasswordHash: identity.Ptr(hash)}); err != nil {
		return fmt.Errorf("store temporary password: %w", err)
	}
	s.log("account.password_reset", user.ID)

	if err := s.notifier.Send(ctx, notification.PasswordResetMessage(user.Email, temporary)); err != nil {
		return fmt.Errorf("send temporary password: %w", err)
	}
	return nil
}

// Login checks credentials of a verified user and issues a new session
// token, revoking any earlier one.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (Session, error) {
	user, err := s.store.FindByEmail(ctx, creds.Email)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return Session{}, apperr.Wrap(apperr.KindUnauthorized, "Email or password is wrong", err)
	case err != nil:
		return Session{}, fmt.Errorf("lookup email: %w", err)
	case !user.Verified:
		return Session{}, apperr.Wrap(apperr.KindUnauthorized, "Email or password is wrong", errNotVerified)
	}

	if err := identity.ComparePassword(user.PasswordHash, creds.Password); err != nil {
		return Session{}, apperr.Wrap(apperr.KindUnauthorized, "Email or password is wrong", err)
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return Session{}, err
	}
	s.log("account.login", user.ID)
	return Session{Profile: profileOf(user), Token: token}, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.tokens.Invalidate(ctx, token); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("account.logout")
	}
	return nil
}

// CurrentUser resolves the owner of an active token.
func (s *Service) CurrentUser(ctx context.Context, token string) (Profile, error) {
	user, err := s.tokens.ResolveActiveUser(ctx, token)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(user), nil
}

// SubscriptionPatch is the only part of a user that its owner may patch.
type SubscriptionPatch struct {
	Subscription *identity.Subscription
}

// ChangeSubscription updates the tier of the token's owner.
func (s *Service) ChangeSubscription(ctx context.Context, token string, patch SubscriptionPatch) (Profile, error) {
	user, err := s.tokens.ResolveActiveUser(ctx, token)
	if err != nil {
		return Profile{}, err
	}
	if patch.Subscription == nil {
		return Profile{}, apperr.Validation("missing field subscription")
	}
	if !patch.Subscription.Valid() {
		return Profile{}, apperr.Validation(fmt.Sprintf("unknown subscription %q", *patch.Subscription))
	}

	updated, err := s.store.UpdateFields(ctx, user.ID, identity.Update{Subscription: patch.Subscription})
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Profile{}, apperr.Wrap(apperr.KindUnauthorized, "Not authorized", err)
		}
		return Profile{}, fmt.Errorf("update subscription: %w", err)
	}
	s.log("account.subscription", user.ID, slog.String("subscription", string(updated.Subscription)))
	return profileOf(updated), nil
}

// ChangeAvatar installs an uploaded image as the user's avatar.
func (s *Service) ChangeAvatar(ctx context.Context, userID, tempPath string) (string, error) {
	url, err := s.avatars.Change(ctx, tempPath, userID)
	if err != nil {
		return "", err
	}
	s.log("account.avatar", userID)
	return url, nil
}

func (s *Service) sendVerification(ctx context.Context, email, token string) error {
	link := notification.VerificationLink(s.opts.PublicBaseURL, token)
	if err := s.notifier.Send(ctx, notification.VerificationMessage(email, link)); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *Service) log(event, userID string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Info(event, append([]any{slog.String("user_id", userID)}, attrs...)...)
}
