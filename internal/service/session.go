package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exmoboty/starter/internal/crypto"
	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/repository"
)

// BrowserSessionLifetime is the server-side lifetime used when the cookie
// itself has no Max-Age.
const BrowserSessionLifetime = 24 * time.Hour

// DefaultSweepInterval is how often Run deletes expired sessions when no
// interval is given.
const DefaultSweepInterval = 10 * time.Minute

// SessionManager issues, resolves and revokes server-side sessions. Callers
// hold the opaque id; the store only ever sees its SHA-256 hash.
type SessionManager struct {
	store    SessionStore
	lifetime time.Duration
	options
}

// NewSessionManager creates a SessionManager. A zero maxAge selects
// BrowserSessionLifetime.
func NewSessionManager(store SessionStore, maxAge time.Duration, opts ...Option) *SessionManager {
	if maxAge <= 0 {
		maxAge = BrowserSessionLifetime
	}
	return &SessionManager{store: store, lifetime: maxAge, options: newOptions(opts)}
}

// Lifetime returns how long a session stays valid after its last use.
func (m *SessionManager) Lifetime() time.Duration {
	return m.lifetime
}

// Create starts a session for userID and returns the opaque id to hand to
// the client.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, *model.Session, error) {
	id, err := crypto.GenerateToken(crypto.SessionIDBytes)
	if err != nil {
		return "", nil, err
	}

	now := m.now().UTC()
	s := &model.Session{
		ID:         crypto.HashToken(id),
		UserID:     userID,
		ExpiresAt:  now.Add(m.lifetime),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}
	return id, s, nil
}

// Get resolves an opaque id. Expired sessions are deleted on sight.
func (m *SessionManager) Get(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	key := crypto.HashToken(id)

	s, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if s.IsExpiredAt(m.now()) {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "delete expired session", "error", err)
		}
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Touch resolves id and pushes its expiry a full lifetime past now.
func (m *SessionManager) Touch(ctx context.Context, id string) (*model.Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	expires := now.Add(m.lifetime)
	if err := m.store.UpdateExpiry(ctx, s.ID, expires, now); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.ExpiresAt = expires
	s.LastSeenAt = now
	return s, nil
}

// Destroy ends a session. Unknown ids are ignored.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, crypto.HashToken(id))
}

// DestroyAllForUser ends every session of userID.
func (m *SessionManager) DestroyAllForUser(ctx context.Context, userID string) error {
	return m.store.DeleteByUser(ctx, userID)
}

// Sweep deletes every expired session and returns how many went.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, err
	}
	m.recorder.SessionsExpired(n)
	return n, nil
}

// Run sweeps every interval until ctx is done. A non-positive interval
// falls back to DefaultSweepInterval.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.ErrorContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.DebugContext(ctx, "swept expired sessions", "count", n)
			}
		}
	}
}
