package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/userauth/userauth/internal/account"
)

// RegisterAccountRoutes wires the user account endpoints under /users.
// guard runs, in order, in front of the endpoints that act on the caller's
// session.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler, guard ...fiber.Handler) {
	group := r.Group("/users")
	protected := func(handler fiber.Handler) []fiber.Handler {
		return append(guard[:len(guard):len(guard)], handler)
	}

	// Public
	group.Post("/register", h.Register)
	group.Get("/verify/:verificationToken", h.Verify)
	group.Post("/verify", h.ResendVerification)
	group.Post("/forgot_password", h.ForgotPassword)
	group.Post("/login", h.Login)

	// Protected
	group.Post("/logout", protected(h.Logout)...)
	group.Get("/current", protected(h.Current)...)
	group.Patch("/", protected(h.UpdateSubscription)...)
	group.Patch("/avatars", protected(h.UpdateAvatar)...)
}
