package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/auth"
	"github.com/userauth/userauth/internal/identity"
)

const (
	userLocal  = "user"
	tokenLocal = "token"
)

// RequireUser returns a middleware that resolves the bearer token to the
// user holding it as their live session and exposes both to handlers.
func RequireUser(tokens *auth.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return apperr.Unauthorized("Not authorized")
		}

		user, err := tokens.ResolveActiveUser(c.UserContext(), token)
		if err != nil {
			return err
		}

		c.Locals(userLocal, user)
		c.Locals(tokenLocal, token)
		return c.Next()
	}
}

// CurrentUser returns the user attached by RequireUser.
func CurrentUser(c *fiber.Ctx) (identity.User, bool) {
	user, ok := c.Locals(userLocal).(identity.User)
	return user, ok
}

// SessionToken returns the raw bearer token attached by RequireUser.
func SessionToken(c *fiber.Ctx) string {
	token, _ := c.Locals(tokenLocal).(string)
	return token
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
