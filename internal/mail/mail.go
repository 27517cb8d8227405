package mail

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var ErrNoRecipient = errors.New("mail message has no recipient")

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// HeaderValue strips CR and LF so a user-supplied value cannot add headers.
func HeaderValue(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(s))
}

func (m Message) sanitized() Message {
	return Message{
		To:      HeaderValue(m.To),
		From:    HeaderValue(m.From),
		ReplyTo: HeaderValue(m.ReplyTo),
		Subject: HeaderValue(m.Subject),
		Body:    m.Body,
	}
}

// LogMailer writes messages to the logger instead of delivering them.
// It is the development transport and is refused in production.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	msg = msg.sanitized()
	if msg.To == "" {
		return ErrNoRecipient
	}
	m.logger.InfoContext(ctx, "mail",
		"to", msg.To,
		"from", msg.From,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
	)
	// Bodies can carry reset links, so they only appear at debug level.
	m.logger.DebugContext(ctx, "mail body", "to", msg.To, "body", msg.Body)
	return nil
}

func (m *LogMailer) Close() error { return nil }
