package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/exmoboty/starter/internal/mail"
	"github.com/exmoboty/starter/internal/model"
)

// UserStore is the credential store the services depend on.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	CountByEmail(ctx context.Context, email string) (int64, error)
	Save(ctx context.Context, user *model.User) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	UpdateProfile(ctx context.Context, id, name string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.User, error)
	Remove(ctx context.Context, id string) error
}

// SessionStore persists server-side sessions keyed by hashed id.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt, lastSeen time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
	VerifyDummy(password string) bool
}

// Mailer sends outgoing mail.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Recorder receives counters for auth events, mail attempts and swept sessions.
type Recorder interface {
	AuthEvent(event, outcome string)
	MailSent(kind string, err error)
	SessionsExpired(n int64)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}
func (nopRecorder) MailSent(string, error)   {}
func (nopRecorder) SessionsExpired(int64)    {}

type options struct {
	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a service.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func newOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Outcome labels for Recorder.AuthEvent.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeError   = "error"
)
