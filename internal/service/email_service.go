package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ContactMessage is a visitor message relayed to the site owner.
type ContactMessage struct {
	Name    string
	Email   string
	Message string
}

// EmailService delivers transactional emails. The auth engine only depends on
// its success/failure signal; a send failure never rolls back state that was
// persisted before the dispatch.
type EmailService interface {
	SendOtpCode(ctx context.Context, toEmail, code, idempotencyKey string) error
	SendContactMessage(ctx context.Context, msg ContactMessage) error
	SendSubscribeEmails(ctx context.Context, subscriberEmail string) error
}

// NoopEmailService is used in development when no email provider is configured.
type NoopEmailService struct{}

func (s *NoopEmailService) SendOtpCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	log.Printf("[EmailService] noop send otp code to=%s", toEmail)
	return nil
}

func (s *NoopEmailService) SendContactMessage(ctx context.Context, msg ContactMessage) error {
	log.Printf("[EmailService] noop relay contact message from=%s", msg.Email)
	return nil
}

func (s *NoopEmailService) SendSubscribeEmails(ctx context.Context, subscriberEmail string) error {
	log.Printf("[EmailService] noop subscribe emails for=%s", subscriberEmail)
	return nil
}

// ResendEmailService sends emails via the Resend REST API.
type ResendEmailService struct {
	from   string
	owner  string
	client *resend.Client
}

// NewResendEmailService constructs the gateway up front so a bad
// configuration fails at startup, not on first use.
func NewResendEmailService(apiKey, from, owner string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner email address is required")
	}
	return &ResendEmailService{
		from:   from,
		owner:  owner,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailService) SendOtpCode(ctx context.Context, toEmail, code, idempotencyKey string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Your OTP Code",
		Text:    fmt.Sprintf("Your verification code is %s. It is valid for 2 minutes.", code),
		Html:    fmt.Sprintf("<div style=\"font-family:Arial\"><h2>OTP Verification</h2><p style=\"font-size:24px;font-weight:bold\">%s</p><p>This OTP is valid for <b>2 minutes</b>.</p></div>", code),
	}
	return s.sendWithRetries(ctx, params, idempotencyKey)
}

func (s *ResendEmailService) SendContactMessage(ctx context.Context, msg ContactMessage) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{s.owner},
		ReplyTo: msg.Email,
		Subject: fmt.Sprintf("New Message from %s", msg.Name),
		Html: fmt.Sprintf(
			"<div style=\"font-family:Arial,sans-serif;line-height:1.6\"><h2>New Contact Message</h2><p><b>Name:</b> %s</p><p><b>Email:</b> %s</p><hr /><p>%s</p></div>",
			msg.Name, msg.Email, msg.Message,
		),
	}
	return s.sendWithRetries(ctx, params, "")
}

// SendSubscribeEmails notifies the owner and welcomes the subscriber.
func (s *ResendEmailService) SendSubscribeEmails(ctx context.Context, subscriberEmail string) error {
	ownerNote := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{s.owner},
		Subject: "New Subscriber",
		Html:    fmt.Sprintf("<div style=\"font-family:Arial,sans-serif\"><h2>New Subscriber</h2><p><b>Email:</b> %s</p></div>", subscriberEmail),
	}
	if err := s.sendWithRetries(ctx, ownerNote, ""); err != nil {
		return err
	}

	welcome := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{subscriberEmail},
		Subject: "Thanks for Subscribing!",
		Html:    "<div style=\"font-family:Arial,sans-serif;line-height:1.6\"><h2>Welcome!</h2><p>Thanks for subscribing to my updates.</p><p>You'll receive updates about projects, blogs, and tutorials.</p></div>",
	}
	return s.sendWithRetries(ctx, welcome, "")
}

func (s *ResendEmailService) sendWithRetries(ctx context.Context, params *resend.SendEmailRequest, idempotencyKey string) error {
	options := &resend.SendEmailOptions{}
	if strings.TrimSpace(idempotencyKey) != "" {
		options.IdempotencyKey = strings.TrimSpace(idempotencyKey)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
