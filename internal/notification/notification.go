package notification

import (
	"context"
	"log/slog"
)

const (
	// KindVerification carries the email verification link.
	KindVerification = "verification"
	// KindRegistrationConfirmed confirms a completed verification.
	KindRegistrationConfirmed = "registration_confirmed"
	// KindPasswordReset carries a temporary password.
	KindPasswordReset = "password_reset"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Text        string
	HTML        string
	// Sensitive bodies are never written to logs.
	Sensitive bool
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a development implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("subject", message.Subject),
	}
	if !message.Sensitive {
		attrs = append(attrs, slog.String("body", message.Text))
	}
	n.logger.Info("notification", attrs...)
	return nil
}
