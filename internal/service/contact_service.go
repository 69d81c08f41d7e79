package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/yourusername/portfolio-api/internal/pkg/errors"
)

// ContactService relays visitor messages and newsletter subscriptions to the
// email gateway. No state is persisted; the gateway's answer is the result.
type ContactService struct {
	emailService EmailService
}

func NewContactService(emailService EmailService) (*ContactService, error) {
	if emailService == nil {
		return nil, fmt.Errorf("email service is required")
	}
	return &ContactService{emailService: emailService}, nil
}

// SendMessage relays a contact message from an authenticated visitor.
func (s *ContactService) SendMessage(ctx context.Context, msg ContactMessage) error {
	if len(strings.TrimSpace(msg.Message)) < 5 {
		return fmt.Errorf("%w: message too short", apperrors.ErrValidation)
	}

	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := s.emailService.SendContactMessage(sendCtx, msg); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDelivery, err)
	}
	return nil
}

// Subscribe relays a newsletter signup: a notice to the owner and a welcome
// email to the subscriber.
func (s *ContactService) Subscribe(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", apperrors.ErrValidation)
	}

	// The welcome email makes this two sends; give them a wider window than a
	// single dispatch.
	sendCtx, cancel := context.WithTimeout(ctx, 2*deliveryTimeout)
	defer cancel()

	if err := s.emailService.SendSubscribeEmails(sendCtx, email); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDelivery, err)
	}
	return nil
}
