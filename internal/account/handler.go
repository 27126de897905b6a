package account

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/userauth/userauth/internal/apperr"
	"github.com/userauth/userauth/internal/identity"
	"github.com/userauth/userauth/internal/middleware"
)

const avatarField = "avatar"

// Handler exposes the account workflows over HTTP.
type Handler struct {
	svc       *Service
	uploadDir string
}

// NewHandler constructs an account handler. Uploaded avatars are staged in uploadDir.
func NewHandler(svc *Service, uploadDir string) *Handler {
	return &Handler{svc: svc, uploadDir: uploadDir}
}

// Register creates an account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Register(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(RegisterResponse{
		Token: session.Token,
		User: UserResponse{
			Email:        session.Email,
			Subscription: string(session.Subscription),
			AvatarURL:    session.AvatarURL,
		},
	})
}

// Verify confirms the email address behind a verification token.
func (h *Handler) Verify(c *fiber.Ctx) error {
	session, err := h.svc.VerifyRegistration(c.UserContext(), c.Params("verificationToken"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(VerifyResponse{Message: "Verification successful", Token: session.Token})
}

// ResendVerification mails a fresh verification link.
func (h *Handler) ResendVerification(c *fiber.Ctx) error {
	var req EmailRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResendVerification(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Verification email sent"})
}

// ForgotPassword mails a temporary password.
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req EmailRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "success"})
}

// Login exchanges credentials for a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Login(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(LoginResponse{
		Token: session.Token,
		User: LoginUser{
			UserID:       session.ID,
			Email:        session.Email,
			Subscription: string(session.Subscription),
		},
	})
}

// Logout revokes the caller's session token.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.svc.Logout(c.UserContext(), middleware.SessionToken(c)); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Current returns the caller's profile.
func (h *Handler) Current(c *fiber.Ctx) error {
	profile, err := h.svc.CurrentUser(c.UserContext(), middleware.SessionToken(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(CurrentUserResponse{Email: profile.Email, Subscription: string(profile.Subscription)})
}

// UpdateSubscription changes the caller's tier.
func (h *Handler) UpdateSubscription(c *fiber.Ctx) error {
	var req UpdateUserRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}
	tier := identity.Subscription(*req.Subscription)
	profile, err := h.svc.ChangeSubscription(c.UserContext(), middleware.SessionToken(c), SubscriptionPatch{Subscription: &tier})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(CurrentUserResponse{Email: profile.Email, Subscription: string(profile.Subscription)})
}

// UpdateAvatar stages the multipart "avatar" file and installs it.
func (h *Handler) UpdateAvatar(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.Unauthorized("Not authorized")
	}

	var tempPath string
	if file, err := c.FormFile(avatarField); err == nil {
		tempPath = filepath.Join(h.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
		if err := c.SaveFile(file, tempPath); err != nil {
			return fmt.Errorf("stage upload: %w", err)
		}
	}

	url, err := h.svc.ChangeAvatar(c.UserContext(), user.ID, tempPath)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(AvatarResponse{AvatarURL: url})
}

type validatable interface {
	Validate() error
}

func parseAndValidate(c *fiber.Ctx, req validatable) error {
	if err := c.BodyParser(req); err != nil {
		return apperr.Wrap(apperr.KindValidation, "malformed request body", err)
	}
	if err := req.Validate(); err != nil {
		return apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	return nil
}
