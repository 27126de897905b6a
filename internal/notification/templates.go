package notification

import (
	"fmt"
	"html"
	"net/url"
)

// VerificationLink builds the public link that completes registration.
func VerificationLink(baseURL, token string) string {
	return fmt.Sprintf("%s/api/users/verify/%s", baseURL, url.PathEscape(token))
}

// VerificationMessage asks the user to confirm their email address.
func VerificationMessage(email, link string) Message {
	return Message{
		Kind:        KindVerification,
		Destination: email,
		Subject:     "Thank you for registration",
		Text:        fmt.Sprintf("Please open %s to activate your account", link),
		HTML:        fmt.Sprintf(`<h1>Please <a href="%s">click</a> to activate your account</h1>`, html.EscapeString(link)),
	}
}

// RegistrationConfirmedMessage is sent once verification succeeds.
func RegistrationConfirmedMessage(email string) Message {
	return Message{
		Kind:        KindRegistrationConfirmed,
		Destination: email,
		Subject:     "Thank you for registration",
		Text:        "Registration successfully",
		HTML:        "<h1>Registration successfully</h1>",
	}
}

// PasswordResetMessage discloses a temporary password to the account owner.
func PasswordResetMessage(email, temporaryPassword string) Message {
	return Message{
		Kind:        KindPasswordReset,
		Destination: email,
		Subject:     "Change Password",
		Text:        fmt.Sprintf("Your temporary password: %s", temporaryPassword),
		HTML:        fmt.Sprintf("<h1>Your temporary password: %s</h1>", html.EscapeString(temporaryPassword)),
		Sensitive:   true,
	}
}
