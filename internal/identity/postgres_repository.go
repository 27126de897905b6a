package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation = "23505"
	userColumns     = `id, email, password_hash, subscription, avatar_url, verified, verification_token, session_token, created_at`
)

// PostgresRepository implements Store using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user store.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByEmail fetches a user by exact email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

// FindByVerificationToken fetches the user holding an outstanding verification token.
func (r *PostgresRepository) FindByVerificationToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE verification_token = $1`, token)
}

// Upsert inserts the user or overwrites the row with the same id.
func (r *PostgresRepository) Upsert(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            email = EXCLUDED.email,
            password_hash = EXCLUDED.password_hash,
            subscription = EXCLUDED.subscription,
            avatar_url = EXCLUDED.avatar_url,
            verified = EXCLUDED.verified,
            verification_token = EXCLUDED.verification_token,
            session_token = EXCLUDED.session_token`,
		userID, user.Email, user.PasswordHash, string(user.Subscription), user.AvatarURL, user.Verified,
		nullable(user.VerificationToken), nullable(user.SessionToken), user.CreatedAt.UTC())
	return mapWriteErr(err)
}

// UpdateFields applies upd in a single UPDATE ... RETURNING statement.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, upd Update) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	if upd.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	sets, args := updateAssignments(upd)
	args = append(args, userID)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)

	user, err := r.queryOne(ctx, query, args...)
	if err != nil {
		return User{}, mapWriteErr(err)
	}
	return user, nil
}

// ConsumeVerificationToken flips verified and clears the token with a
// conditional UPDATE, so only one caller can match the row.
func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	sets, args := updateAssignments(consumeVerification())
	args = append(args, token)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE verification_token = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)
	return r.queryOne(ctx, query, args...)
}

func updateAssignments(upd Update) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.Subscription != nil {
		add("subscription", string(*upd.Subscription))
	}
	if upd.AvatarURL != nil {
		add("avatar_url", *upd.AvatarURL)
	}
	if upd.Verified != nil {
		add("verified", *upd.Verified)
	}
	if upd.VerificationToken != nil {
		add("verification_token", nullable(*upd.VerificationToken))
	}
	if upd.SessionToken != nil {
		add("session_token", nullable(*upd.SessionToken))
	}
	return sets, args
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (User, error) {
	row := r.db.QueryRow(ctx, query, args...)
	var (
		id           uuid.UUID
		subscription string
		verifyToken  *string
		sessionToken *string
		createdAt    time.Time
		user         User
	)
	if err := row.Scan(&id, &user.Email, &user.PasswordHash, &subscription, &user.AvatarURL, &user.Verified, &verifyToken, &sessionToken, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.Subscription = Subscription(subscription)
	if verifyToken != nil {
		user.VerificationToken = *verifyToken
	}
	if sessionToken != nil {
		user.SessionToken = *sessionToken
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "users_email_key" {
		return ErrDuplicateEmail
	}
	return err
}
