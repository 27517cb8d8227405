package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/exmoboty/starter/internal/crypto"
	"github.com/exmoboty/starter/internal/mail"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/repository"
)

// DefaultResetWindow is how long a reset token stays usable.
const DefaultResetWindow = time.Hour

const (
	resetSubject   = "Reset your password"
	changedSubject = "Your password has been changed"
)

// mailTimeout bounds one background delivery.
const mailTimeout = 30 * time.Second

// ResetConfig holds the reset flow settings.
type ResetConfig struct {
	Window  time.Duration
	BaseURL string
	From    string
}

// ResetService runs the forgot-password flow.
type ResetService struct {
	users  UserStore
	hasher PasswordHasher
	mailer Mailer
	policy PasswordPolicy
	cfg    ResetConfig
	wg     sync.WaitGroup
	options
}

// NewResetService creates a new ResetService.
func NewResetService(users UserStore, hasher PasswordHasher, mailer Mailer, policy PasswordPolicy, cfg ResetConfig, opts ...Option) *ResetService {
	if cfg.Window <= 0 {
		cfg.Window = DefaultResetWindow
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ResetService{
		users:   users,
		hasher:  hasher,
		mailer:  mailer,
		policy:  policy,
		cfg:     cfg,
		options: newOptions(opts),
	}
}

// ResetURL returns the link mailed for token.
func (s *ResetService) ResetURL(token string) string {
	return s.cfg.BaseURL + "/reset/" + token
}

// RequestReset starts a reset window for email and queues the link for
// delivery. An unknown email returns an empty token and a nil error, and
// changes nothing. Mail goes out in the background, so neither the response
// nor its latency depends on the mail transport.
func (s *ResetService) RequestReset(ctx context.Context, email string) (string, error) {
	email = model.NormalizeEmail(email)
	ve := &ValidationError{}
	checkEmail(ve, email)
	if err := ve.err(); err != nil {
		return "", err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recorder.AuthEvent("reset_request", outcomeFailure)
			return "", nil
		}
		s.recorder.AuthEvent("reset_request", outcomeError)
		return "", err
	}

	token, err := crypto.GenerateToken(crypto.ResetTokenBytes)
	if err != nil {
		return "", err
	}
	if err := s.users.SetResetToken(ctx, user.ID, crypto.HashToken(token), s.now().Add(s.cfg.Window)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recorder.AuthEvent("reset_request", outcomeFailure)
			return "", nil
		}
		s.recorder.AuthEvent("reset_request", outcomeError)
		return "", fmt.Errorf("storing reset token: %w", err)
	}

	s.deliver(ctx, "reset", user.ID, mail.Message{
		To:      user.Email,
		From:    s.cfg.From,
		Subject: resetSubject,
		Body: "You are receiving this email because you (or someone else) have requested the reset of the password for your account.\n\n" +
			"Please click on the following link, or paste this into your browser to complete the process:\n\n" +
			s.ResetURL(token) + "\n\n" +
			"If you did not request this, please ignore this email and your password will remain unchanged.\n",
	})

	s.recorder.AuthEvent("reset_request", outcomeSuccess)
	return token, nil
}

// deliver sends msg off the request path. Failures are logged and counted.
func (s *ResetService) deliver(ctx context.Context, kind, userID string, msg mail.Message) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, mailTimeout)
		defer cancel()

		err := s.mailer.Send(ctx, msg)
		s.recorder.MailSent(kind, err)
		if err != nil {
			s.logger.ErrorContext(ctx, "send "+kind+" mail", "user_id", userID, "error", err)
		}
	})
}

// Wait blocks until every queued mail has been handed to the mailer.
func (s *ResetService) Wait() {
	s.wg.Wait()
}

// ValidateToken returns the user holding token while its window is open.
func (s *ResetService) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrTokenInvalidOrExpired
	}
	user, err := s.users.FindByResetToken(ctx, crypto.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			return nil, ErrTokenInvalidOrExpired
		}
		return nil, err
	}
	return user, nil
}

// ConsumeToken sets a new password through token and retires the token. The
// store applies the change only if the token is still held and unexpired, so
// a token can succeed at most once.
func (s *ResetService) ConsumeToken(ctx context.Context, token string, req model.PasswordRequest) (*model.User, error) {
	ve := &ValidationError{}
	s.policy.check(ve, req.Password, req.ConfirmPassword)
	if err := ve.err(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrTokenInvalidOrExpired
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHash, err)
	}

	user, err := s.users.ConsumeResetToken(ctx, crypto.HashToken(token), hash, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			s.recorder.AuthEvent("reset_consume", outcomeFailure)
			return nil, ErrTokenInvalidOrExpired
		}
		s.recorder.AuthEvent("reset_consume", outcomeError)
		return nil, err
	}

	s.deliver(ctx, "password_changed", user.ID, mail.Message{
		To:      user.Email,
		From:    s.cfg.From,
		Subject: changedSubject,
		Body:    "Hello,\n\nThis is a confirmation that the password for your account " + user.Email + " has just been changed.\n",
	})

	s.recorder.AuthEvent("reset_consume", outcomeSuccess)
	return user, nil
}
