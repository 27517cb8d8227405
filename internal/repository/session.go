package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/exmoboty/starter/internal/model"
)

// SessionRepository handles session persistence in MySQL.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at, last_seen_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.ExpiresAt.UTC(), s.CreatedAt.UTC(), s.LastSeenAt.UTC(),
	)
	if err != nil {
		return storeError(mysqlBackend, "insert session", err)
	}
	return nil
}

// Get retrieves a session by its stored id. Expiry is not checked here.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at, last_seen_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, storeError(mysqlBackend, "get session", err)
	}
	return &s, nil
}

// UpdateExpiry moves the expiry and last-seen stamps of a session.
func (r *SessionRepository) UpdateExpiry(ctx context.Context, id string, expiresAt, lastSeen time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ?, last_seen_at = ? WHERE id = ?`,
		expiresAt.UTC(), lastSeen.UTC(), id,
	)
	if err != nil {
		return storeError(mysqlBackend, "touch session", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeError(mysqlBackend, "touch session", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return storeError(mysqlBackend, "delete session", err)
	}
	return nil
}

// DeleteByUser removes every session of a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return storeError(mysqlBackend, "delete user sessions", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry is at or before now and
// returns how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, storeError(mysqlBackend, "delete expired sessions", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeError(mysqlBackend, "delete expired sessions", err)
	}
	return n, nil
}
