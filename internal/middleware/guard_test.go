package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/auth"
	"github.com/userauth/userauth/internal/identity"
	"github.com/userauth/userauth/internal/logging"
)

func guardedApp(t *testing.T) (*fiber.App, *auth.TokenService, identity.User) {
	t.Helper()
	store := identity.NewMemoryRepository()
	user := identity.User{ID: "u-1", Email: "a@x.com", Subscription: identity.DefaultSubscription, Verified: true, CreatedAt: time.Now()}
	require.NoError(t, store.Upsert(context.Background(), user))
	tokens := auth.NewTokenService("test-secret", store)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/me", RequireUser(tokens), func(c *fiber.Ctx) error {
		u, ok := CurrentUser(c)
		if !ok {
			return errors.New("user missing from context")
		}
		return c.JSON(fiber.Map{"email": u.Email, "token": SessionToken(c)})
	})
	return app, tokens, user
}

func getMe(t *testing.T, app *fiber.App, authorization string) (int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set(fiber.HeaderAuthorization, authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRequireUserAttachesUserAndToken(t *testing.T) {
	app, tokens, user := guardedApp(t)
	token, err := tokens.Issue(context.Background(), user)
	require.NoError(t, err)

	status, body := getMe(t, app, "Bearer "+token)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, user.Email, body["email"])
	require.Equal(t, token, body["token"])
}

func TestRequireUserRejectsMissingOrMalformedHeader(t *testing.T) {
	app, tokens, user := guardedApp(t)
	token, err := tokens.Issue(context.Background(), user)
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Token " + token, token} {
		status, body := getMe(t, app, header)
		require.Equal(t, fiber.StatusUnauthorized, status, "header %q", header)
		require.Equal(t, "Not authorized", body["message"])
	}
}

func TestRequireUserRejectsSupersededToken(t *testing.T) {
	app, tokens, user := guardedApp(t)
	ctx := context.Background()
	first, err := tokens.Issue(ctx, user)
	require.NoError(t, err)
	second, err := tokens.Issue(ctx, user)
	require.NoError(t, err)

	status, _ := getMe(t, app, "Bearer "+first)
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = getMe(t, app, "bearer "+second)
	require.Equal(t, fiber.StatusOK, status)
}

func TestErrorHandlerMapsKinds(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/conflict", func(*fiber.Ctx) error { return apperr.Conflict("Email a@x.com in use") })
	app.Get("/fiber", func(*fiber.Ctx) error { return fiber.ErrMethodNotAllowed })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("boom") })

	cases := map[string]struct {
		status  int
		message string
	}{
		"/conflict": {fiber.StatusConflict, "Email a@x.com in use"},
		"/fiber":    {fiber.StatusMethodNotAllowed, "Method Not Allowed"},
		"/boom":     {fiber.StatusInternalServerError, "boom"},
	}
	for path, want := range cases {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		require.Equal(t, want.status, resp.StatusCode, path)
		require.Equal(t, want.message, body["message"], path)
	}
}
