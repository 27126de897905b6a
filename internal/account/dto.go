package account

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/userauth/userauth/internal/identity"
)

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the email format and password length.
func (r CredentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

// EmailRequest is the body of resend-verification and forgot-password.
type EmailRequest struct {
	Email string `json:"email"`
}

// Validate checks the email format.
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// UpdateUserRequest is the body of the user patch. Fields other than
// subscription are ignored.
type UpdateUserRequest struct {
	Subscription *string `json:"subscription"`
}

// Validate checks that subscription is present and a known tier.
func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Subscription, validation.NotNil, validation.In(
			string(identity.SubscriptionStarter),
			string(identity.SubscriptionPro),
			string(identity.SubscriptionBusiness),
		)),
	)
}

// UserResponse is the profile returned after registration.
type UserResponse struct {
	Email        string `json:"email"`
	Subscription string `json:"subscription"`
	AvatarURL    string `json:"avatarURL"`
}

// RegisterResponse carries the token only when verification is disabled.
type RegisterResponse struct {
	Token string       `json:"token,omitempty"`
	User  UserResponse `json:"user"`
}

// LoginUser is the user part of a login response.
type LoginUser struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Subscription string `json:"subscription"`
}

// LoginResponse is returned by login.
type LoginResponse struct {
	Token string    `json:"token"`
	User  LoginUser `json:"user"`
}

// VerifyResponse is returned when an email is confirmed.
type VerifyResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// CurrentUserResponse is returned by current and the user patch.
type CurrentUserResponse struct {
	Email        string `json:"email"`
	Subscription string `json:"subscription"`
}

// AvatarResponse is returned after an avatar change.
type AvatarResponse struct {
	AvatarURL string `json:"avatarURL"`
}
