package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisUserPrefix   = "auth:user:"
	redisEmailPrefix  = "auth:user:email:"
	redisVerifyPrefix = "auth:user:verify:"
	redisMaxRetries   = 8
)

// RedisRepository stores each user as a JSON document with secondary index
// keys for email and verification token. Writes run inside WATCH/MULTI so
// index keys never drift from the document.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository builds a Redis-backed user store.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

type redisUser struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"password_hash"`
	Subscription      string    `json:"subscription"`
	AvatarURL         string    `json:"avatar_url"`
	Verified          bool      `json:"verified"`
	VerificationToken string    `json:"verification_token,omitempty"`
	SessionToken      string    `json:"session_token,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toRedisUser(u User) redisUser {
	return redisUser{
		ID:                u.ID,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Subscription:      string(u.Subscription),
		AvatarURL:         u.AvatarURL,
		Verified:          u.Verified,
		VerificationToken: u.VerificationToken,
		SessionToken:      u.SessionToken,
		CreatedAt:         u.CreatedAt.UTC(),
	}
}

func (d redisUser) user() User {
	return User{
		ID:                d.ID,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		Subscription:      Subscription(d.Subscription),
		AvatarURL:         d.AvatarURL,
		Verified:          d.Verified,
		VerificationToken: d.VerificationToken,
		SessionToken:      d.SessionToken,
		CreatedAt:         d.CreatedAt.UTC(),
	}
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// FindByEmail resolves the email index and loads the document.
func (r *RedisRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findByIndex(ctx, redisEmailPrefix+email)
}

// FindByID loads the document by id.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.load(ctx, r.client, id)
}

// FindByVerificationToken resolves the verification index and loads the document.
func (r *RedisRepository) FindByVerificationToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	return r.findByIndex(ctx, redisVerifyPrefix+token)
}

// Upsert writes the document and its index keys, rejecting an email owned by another id.
func (r *RedisRepository) Upsert(ctx context.Context, user User) error {
	emailKey := redisEmailPrefix + user.Email
	userKey := redisUserPrefix + user.ID

	return r.watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, emailKey).Result()
		switch {
		case err == nil && owner != user.ID:
			return ErrDuplicateEmail
		case err != nil && !errors.Is(err, redis.Nil):
			return err
		}

		prev, err := r.load(ctx, tx, user.ID)
		exists := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		payload, err := json.Marshal(toRedisUser(user))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if exists {
				if prev.Email != user.Email {
					pipe.Del(ctx, redisEmailPrefix+prev.Email)
				}
				if prev.VerificationToken != "" && prev.VerificationToken != user.VerificationToken {
					pipe.Del(ctx, redisVerifyPrefix+prev.VerificationToken)
				}
			}
			pipe.Set(ctx, userKey, payload, 0)
			pipe.Set(ctx, emailKey, user.ID, 0)
			if user.VerificationToken != "" {
				pipe.Set(ctx, redisVerifyPrefix+user.VerificationToken, user.ID, 0)
			}
			return nil
		})
		return err
	}, emailKey, userKey)
}

// UpdateFields applies upd to the stored document.
func (r *RedisRepository) UpdateFields(ctx context.Context, id string, upd Update) (User, error) {
	userKey := redisUserPrefix + id
	var updated User

	err := r.watch(ctx, func(tx *redis.Tx) error {
		user, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		oldToken := user.VerificationToken
		upd.Apply(&user)

		payload, err := json.Marshal(toRedisUser(user))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, payload, 0)
			if oldToken != user.VerificationToken {
				if oldToken != "" {
					pipe.Del(ctx, redisVerifyPrefix+oldToken)
				}
				if user.VerificationToken != "" {
					pipe.Set(ctx, redisVerifyPrefix+user.VerificationToken, id, 0)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = user
		return nil
	}, userKey)
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// ConsumeVerificationToken watches the token index key, so when two callers
// race the second transaction aborts and then finds the index gone.
func (r *RedisRepository) ConsumeVerificationToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	indexKey := redisVerifyPrefix + token
	var consumed User

	err := r.watch(ctx, func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, indexKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		userKey := redisUserPrefix + id
		if err := tx.Watch(ctx, userKey).Err(); err != nil {
			return err
		}

		user, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if user.VerificationToken != token {
			return ErrNotFound
		}
		consumeVerification().Apply(&user)

		payload, err := json.Marshal(toRedisUser(user))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey, payload, 0)
			pipe.Del(ctx, indexKey)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = user
		return nil
	}, indexKey)
	if err != nil {
		return User{}, err
	}
	return consumed, nil
}

func (r *RedisRepository) findByIndex(ctx context.Context, indexKey string) (User, error) {
	id, err := r.client.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return r.load(ctx, r.client, id)
}

func (r *RedisRepository) load(ctx context.Context, c stringGetter, id string) (User, error) {
	raw, err := c.Get(ctx, redisUserPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	var doc redisUser
	if err := json.Unmarshal(raw, &doc); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return doc.user(), nil
}

// watch retries fn while another client modifies the watched keys.
func (r *RedisRepository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis user write: %w", redis.TxFailedErr)
}
