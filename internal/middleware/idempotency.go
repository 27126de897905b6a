package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "auth:idem:"
	maxIdempotencyKeyLen = 128
	pendingReplay        = "pending"
	idempotencyTimeout   = 2 * time.Second
)

// replay is the cached outcome of a completed request.
type replay struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency answers a repeated unsafe request carrying the same
// Idempotency-Key with the response of the first one. It must run after
// RequireUser: the cache entry belongs to the authenticated user, their
// session token, and the exact request line and body, so a key reused by
// another caller or with another payload executes normally. Requests that
// are safe, carry no key, or have no authenticated user pass through.
//
// A request arriving while the first one with the same key is still running
// gets 409. Failed requests release their key so the client may retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}
		user, ok := CurrentUser(c)
		if !ok {
			return c.Next()
		}

		cacheKey := idempotencyCacheKey(user.ID, SessionToken(c), c.Method(), c.Path(), key, c.Body())
		log := logger.With(slog.String("user_id", user.ID), slog.String("request_id", RequestIDFrom(c)))

		ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyTimeout)
		reserved, err := cache.SetNX(ctx, cacheKey, pendingReplay, ttl).Result()
		cancel()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if !reserved {
			return replayStored(c, cache, cacheKey, log)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey, log)
			return err
		}

		payload, err := json.Marshal(replay{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        c.Response().Body(),
		})
		if err != nil {
			release(cache, cacheKey, log)
			return err
		}
		ctx, cancel = context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()
		if err := cache.Set(ctx, cacheKey, payload, ttl).Err(); err != nil {
			// The response already went through; only the replay is lost.
			log.Warn("persist idempotent response", slog.Any("error", err))
			release(cache, cacheKey, log)
		}
		return nil
	}
}

func replayStored(c *fiber.Ctx, cache *redis.Client, cacheKey string, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyTimeout)
	defer cancel()

	cached, err := cache.Get(ctx, cacheKey).Result()
	switch {
	case errors.Is(err, redis.Nil), err == nil && cached == pendingReplay:
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	case err != nil:
		log.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
	}

	var stored replay
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		log.Warn("decode idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.ContentType != "" {
		c.Set(fiber.HeaderContentType, stored.ContentType)
	}
	return c.Status(stored.Status).Send(stored.Body)
}

func release(cache *redis.Client, cacheKey string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	if err := cache.Del(ctx, cacheKey).Err(); err != nil {
		log.Warn("release idempotency key", slog.Any("error", err))
	}
}

// idempotencyCacheKey scopes key to the caller and digests the request, so
// the same key with a different token, route or body is a different entry.
func idempotencyCacheKey(userID, sessionToken, method, path, key string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{sessionToken, method, path, key} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(body)
	return idempotencyPrefix + userID + ":" + hex.EncodeToString(h.Sum(nil))
}
