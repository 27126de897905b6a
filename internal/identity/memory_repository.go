package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for tests and local development.
func NewMemoryRepository() Store {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	return r.findFirst(func(u User) bool { return u.Email == email })
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByVerificationToken(_ context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	return r.findFirst(func(u User) bool { return u.VerificationToken == token })
}

func (r *memoryRepository) Upsert(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.users {
		if id != user.ID && existing.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryRepository) UpdateFields(_ context.Context, id string, upd Update) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	upd.Apply(&user)
	r.users[id] = user
	return user, nil
}

func (r *memoryRepository) ConsumeVerificationToken(_ context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, user := range r.users {
		if user.VerificationToken == token {
			consumeVerification().Apply(&user)
			r.users[id] = user
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) findFirst(match func(User) bool) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if match(user) {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}
