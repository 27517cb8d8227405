package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exmoboty/starter/internal/crypto"
	"github.com/exmoboty/starter/internal/mail"
	"github.com/exmoboty/starter/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type recordingRecorder struct {
	mu     sync.Mutex
	events map[string]int
	swept  int64
}

func (r *recordingRecorder) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string]int)
	}
	r.events[event+"/"+outcome]++
}

func (r *recordingRecorder) MailSent(string, error) {}

func (r *recordingRecorder) SessionsExpired(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swept += n
}

func (r *recordingRecorder) count(event, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[event+"/"+outcome]
}

// spyHasher counts dummy comparisons and can be told to fail hashing.
type spyHasher struct {
	*crypto.Hasher
	hashErr error
	dummies int
}

func (h *spyHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return h.Hasher.Hash(password)
}

func (h *spyHasher) VerifyDummy(password string) bool {
	h.dummies++
	return h.Hasher.VerifyDummy(password)
}

var errHashBroken = errors.New("entropy source failed")

type fixture struct {
	clock    *fakeClock
	users    *repository.MemoryUserRepository
	store    *repository.MemorySessionRepository
	hasher   *spyHasher
	mailer   *recordingMailer
	recorder *recordingRecorder
	sessions *SessionManager
	auth     *AuthService
	reset    *ResetService
	account  *AccountService
	contact  *ContactService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	h, err := crypto.NewHasher(crypto.MinCost)
	require.NoError(t, err)

	f := &fixture{
		clock:    newFakeClock(),
		users:    repository.NewMemoryUserRepository(),
		store:    repository.NewMemorySessionRepository(),
		hasher:   &spyHasher{Hasher: h},
		mailer:   &recordingMailer{},
		recorder: &recordingRecorder{},
	}
	opts := []Option{WithClock(f.clock.Now), WithRecorder(f.recorder)}

	f.sessions = NewSessionManager(f.store, time.Hour, opts...)
	f.auth = NewAuthService(f.users, f.sessions, f.hasher, DefaultPasswordPolicy, opts...)
	f.reset = NewResetService(f.users, f.hasher, f.mailer, DefaultPasswordPolicy, ResetConfig{
		Window:  time.Hour,
		BaseURL: "http://localhost:3000/",
		From:    "no-reply@example.com",
	}, opts...)
	f.account = NewAccountService(f.users, f.sessions, f.hasher, DefaultPasswordPolicy, opts...)
	f.contact = NewContactService(f.mailer, "contact@example.com", "no-reply@example.com", opts...)
	return f
}
