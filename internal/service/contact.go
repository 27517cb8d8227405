package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/exmoboty/starter/internal/mail"
	"github.com/exmoboty/starter/internal/model"
)

// ContactService forwards contact form submissions to the site address.
type ContactService struct {
	mailer Mailer
	to     string
	from   string
	options
}

// NewContactService creates a ContactService delivering to the to address.
func NewContactService(mailer Mailer, to, from string, opts ...Option) *ContactService {
	return &ContactService{mailer: mailer, to: to, from: from, options: newOptions(opts)}
}

// Send validates the form and mails it with the sender as Reply-To.
func (s *ContactService) Send(ctx context.Context, req model.ContactRequest) error {
	name := SanitizeName(req.Name)
	email := strings.TrimSpace(req.Email)
	message := strings.TrimSpace(req.Message)

	ve := &ValidationError{}
	if name == "" {
		ve.add("name", "Name cannot be blank")
	}
	checkEmail(ve, email)
	if message == "" {
		ve.add("message", "Message cannot be blank")
	}
	if err := ve.err(); err != nil {
		return err
	}

	err := s.mailer.Send(ctx, mail.Message{
		To:      s.to,
		From:    s.from,
		ReplyTo: fmt.Sprintf("%s <%s>", mail.HeaderValue(name), email),
		Subject: "Contact Form",
		Body:    message,
	})
	s.recorder.MailSent("contact", err)
	if err != nil {
		s.logger.ErrorContext(ctx, "send contact mail", "error", err)
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}
	return nil
}
