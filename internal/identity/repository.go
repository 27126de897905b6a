package identity

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when a write would give two users the same email.
	ErrDuplicateEmail = errors.New("email already in use")
)

// Store persists users. Implementations are safe for concurrent use and
// serialize writes per record, last writer wins.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	FindByVerificationToken(ctx context.Context, token string) (User, error)
	// Upsert inserts the user or replaces the record with the same ID.
	Upsert(ctx context.Context, user User) error
	// UpdateFields applies upd to the user and returns the updated record.
	UpdateFields(ctx context.Context, id string, upd Update) (User, error)
	// ConsumeVerificationToken marks the holder of token verified and clears
	// the token in one atomic step. Of several concurrent calls with the same
	// token exactly one succeeds; the others get ErrNotFound.
	ConsumeVerificationToken(ctx context.Context, token string) (User, error)
}

// consumeVerification is the update applied when a verification token is used.
func consumeVerification() Update {
	return Update{Verified: Ptr(true), VerificationToken: Ptr("")}
}
