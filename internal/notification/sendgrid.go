package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier delivers messages through the SendGrid v3 mail API.
type SendGridNotifier struct {
	client mailClient
	from   *mail.Email
	logger *slog.Logger
}

// NewSendGridNotifier builds a notifier sending from the given address.
func NewSendGridNotifier(apiKey, from, senderName string, logger *slog.Logger) *SendGridNotifier {
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(senderName, from),
		logger: logger,
	}
}

// Send delivers the message. Non-2xx API responses are reported as errors.
func (n *SendGridNotifier) Send(ctx context.Context, message Message) error {
	to := mail.NewEmail("", message.Destination)
	email := mail.NewSingleEmail(n.from, message.Subject, to, message.Text, message.HTML)

	resp, err := n.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid send %s: %w", message.Kind, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send %s: status %d: %s", message.Kind, resp.StatusCode, resp.Body)
	}
	if n.logger != nil {
		n.logger.Debug("email sent", slog.String("kind", message.Kind), slog.Int("status", resp.StatusCode))
	}
	return nil
}
