package notifications

import (
	"context"
	"fmt"
	"strings"

	resend "github.com/resend/resend-go/v3"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// Email is one outgoing message.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// ResendSender delivers email through the Resend API.
type ResendSender struct {
	from   string
	client *resend.Client
}

// NewResendSender builds a sender from configuration.
func NewResendSender(cfg config.ResendConfig) (*ResendSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("resend api key required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, fmt.Errorf("resend from address required")
	}
	return &ResendSender{from: cfg.DefaultFrom, client: resend.NewClient(cfg.APIKey)}, nil
}

func (r *ResendSender) Send(ctx context.Context, email Email) error {
	if strings.TrimSpace(email.To) == "" {
		return fmt.Errorf("email recipient required")
	}
	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	if params.Html == "" && params.Text == "" {
		return fmt.Errorf("email body is empty")
	}
	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	return nil
}
