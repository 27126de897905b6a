package identity

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned when a password does not match its hash.
var ErrPasswordMismatch = errors.New("password mismatch")

// ErrEmptyPassword rejects hashing an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword derives the stored bcrypt hash for password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ComparePassword validates password against hash.
func ComparePassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// NewTemporaryPassword returns a random one-time password.
func NewTemporaryPassword() string {
	return uuid.NewString()
}

// NewVerificationToken returns a random opaque email verification token.
func NewVerificationToken() string {
	return uuid.NewString()
}
