package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestUser(email string) User {
	return User{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      "hash",
		Subscription:      DefaultSubscription,
		AvatarURL:         "https://example.com/a.png",
		VerificationToken: uuid.NewString(),
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("upsert and find", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := newTestUser("a@x.com")
		if err := store.Upsert(ctx, user); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		byEmail, err := store.FindByEmail(ctx, "a@x.com")
		if err != nil {
			t.Fatalf("find by email: %v", err)
		}
		if byEmail.ID != user.ID || byEmail.Subscription != DefaultSubscription {
			t.Fatalf("unexpected user %+v", byEmail)
		}
		if !byEmail.CreatedAt.Equal(user.CreatedAt) {
			t.Fatalf("created at mismatch: %s vs %s", byEmail.CreatedAt, user.CreatedAt)
		}

		byToken, err := store.FindByVerificationToken(ctx, user.VerificationToken)
		if err != nil || byToken.ID != user.ID {
			t.Fatalf("find by verification token: %v", err)
		}

		if _, err := store.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := store.FindByVerificationToken(ctx, ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for empty token, got %v", err)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.Upsert(ctx, newTestUser("dup@x.com")); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := store.Upsert(ctx, newTestUser("dup@x.com")); !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("expected ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("update fields clears verification token", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := newTestUser("v@x.com")
		if err := store.Upsert(ctx, user); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		updated, err := store.UpdateFields(ctx, user.ID, Update{
			Verified:          Ptr(true),
			VerificationToken: Ptr(""),
			SessionToken:      Ptr("session-1"),
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !updated.Verified || updated.VerificationToken != "" || updated.SessionToken != "session-1" {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if updated.Email != user.Email || updated.PasswordHash != user.PasswordHash {
			t.Fatalf("untouched fields changed: %+v", updated)
		}

		if _, err := store.FindByVerificationToken(ctx, user.VerificationToken); !errors.Is(err, ErrNotFound) {
			t.Fatalf("consumed token still resolvable: %v", err)
		}

		reloaded, err := store.FindByID(ctx, user.ID)
		if err != nil || reloaded.SessionToken != "session-1" {
			t.Fatalf("reload: %+v %v", reloaded, err)
		}
	})

	t.Run("update fields rotates verification token", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := newTestUser("r@x.com")
		if err := store.Upsert(ctx, user); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		next := uuid.NewString()
		if _, err := store.UpdateFields(ctx, user.ID, Update{VerificationToken: Ptr(next)}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if _, err := store.FindByVerificationToken(ctx, user.VerificationToken); !errors.Is(err, ErrNotFound) {
			t.Fatalf("old token still resolvable: %v", err)
		}
		if got, err := store.FindByVerificationToken(ctx, next); err != nil || got.ID != user.ID {
			t.Fatalf("new token lookup: %v", err)
		}
	})

	t.Run("consume verification token once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := newTestUser("c@x.com")
		if err := store.Upsert(ctx, user); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		const callers = 6
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			consumed []User
			failures []error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := store.ConsumeVerificationToken(ctx, user.VerificationToken)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures = append(failures, err)
					return
				}
				consumed = append(consumed, got)
			}()
		}
		wg.Wait()

		if len(consumed) != 1 {
			t.Fatalf("expected exactly one consumer, got %d", len(consumed))
		}
		for _, err := range failures {
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for losing consumer, got %v", err)
			}
		}
		if !consumed[0].Verified || consumed[0].VerificationToken != "" || consumed[0].ID != user.ID {
			t.Fatalf("unexpected consumed user %+v", consumed[0])
		}
		if _, err := store.FindByVerificationToken(ctx, user.VerificationToken); !errors.Is(err, ErrNotFound) {
			t.Fatalf("consumed token still resolvable: %v", err)
		}
		if _, err := store.ConsumeVerificationToken(ctx, ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for empty token, got %v", err)
		}
	})

	t.Run("update missing user", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.UpdateFields(context.Background(), uuid.NewString(), Update{Verified: Ptr(true)}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryRepository() })
}

func TestRedisRepository(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("start miniredis: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			client.Close()
			mr.Close()
		})
		return NewRedisRepository(client)
	})
}

func TestRedisRepositoryEmailChangeMovesIndex(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisRepository(client)
	ctx := context.Background()
	user := newTestUser("old@x.com")
	if err := store.Upsert(ctx, user); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	user.Email = "new@x.com"
	if err := store.Upsert(ctx, user); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if mr.Exists(redisEmailPrefix + "old@x.com") {
		t.Fatalf("stale email index left behind")
	}
	if _, err := store.FindByEmail(ctx, "new@x.com"); err != nil {
		t.Fatalf("find new email: %v", err)
	}
}
