package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/exmoboty/starter/internal/model"
)

const mysqlBackend = "mysql"

const userColumns = `id, email, password_hash, profile_name, password_reset_token, password_reset_expires, created_at, updated_at`

// UserRepository handles user persistence in MySQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user    model.User
		token   sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Profile.Name,
		&token, &expires, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if token.Valid && expires.Valid {
		user.SetResetToken(token.String, expires.Time)
	}
	return &user, nil
}

func (r *UserRepository) findOne(ctx context.Context, operation, where string, args ...any) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(mysqlBackend, operation, err)
	}
	return user, nil
}

// FindByEmail retrieves a user by their normalized email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "find user by email", `email = ?`, model.NormalizeEmail(email))
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "find user by id", `id = ?`, id)
}

// FindByResetToken retrieves the user holding tokenHash whose reset window is
// still open at now.
func (r *UserRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	user, err := r.findOne(ctx, "find user by reset token",
		`password_reset_token = ? AND password_reset_expires > ?`, tokenHash, now.UTC())
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrResetTokenNotFound
	}
	return user, err
}

// CountByEmail returns how many records hold the normalized email.
func (r *UserRepository) CountByEmail(ctx context.Context, email string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, model.NormalizeEmail(email)).Scan(&n)
	if err != nil {
		return 0, storeError(mysqlBackend, "count users by email", err)
	}
	return n, nil
}

// Save inserts the user when it has no ID yet and updates it otherwise.
// The generated ID and timestamps are set on the struct.
func (r *UserRepository) Save(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	now := time.Now().UTC().Truncate(time.Microsecond)

	var (
		token   sql.NullString
		expires sql.NullTime
	)
	if user.PasswordResetToken != "" && user.PasswordResetExpires != nil {
		token = sql.NullString{String: user.PasswordResetToken, Valid: true}
		expires = sql.NullTime{Time: user.PasswordResetExpires.UTC(), Valid: true}
	}

	if user.ID == "" {
		id := uuid.NewString()
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, user.Email, user.PasswordHash, user.Profile.Name, token, expires, now, now,
		)
		if err != nil {
			if isDuplicateEntryError(err) {
				return ErrDuplicateEmail
			}
			return storeError(mysqlBackend, "insert user", err)
		}
		user.ID = id
		user.CreatedAt = now
		user.UpdatedAt = now
		return nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, password_hash = ?, profile_name = ?,
			password_reset_token = ?, password_reset_expires = ?, updated_at = ?
		WHERE id = ?`,
		user.Email, user.PasswordHash, user.Profile.Name, token, expires, now, user.ID,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDuplicateEmail
		}
		return storeError(mysqlBackend, "update user", err)
	}
	if err := requireAffected(result, "update user"); err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

// UpdateProfile changes only the display name.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET profile_name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return storeError(mysqlBackend, "update profile", err)
	}
	return requireAffected(result, "update profile")
}

// UpdatePassword replaces the stored hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return storeError(mysqlBackend, "update password", err)
	}
	return requireAffected(result, "update password")
}

// SetResetToken opens a reset window, writing only the two reset columns so
// a concurrent password change is never overwritten.
func (r *UserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_reset_token = ?, password_reset_expires = ?, updated_at = ? WHERE id = ?`,
		tokenHash, expires.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return storeError(mysqlBackend, "set reset token", err)
	}
	return requireAffected(result, "set reset token")
}

// ConsumeResetToken sets a new password hash and clears the reset fields for
// the user holding tokenHash, provided the window is still open at now. The
// row is locked for the duration so two concurrent consumers cannot both win.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError(mysqlBackend, "begin consume reset token", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE password_reset_token = ? AND password_reset_expires > ? FOR UPDATE`,
		tokenHash, now.UTC(),
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetTokenNotFound
		}
		return nil, storeError(mysqlBackend, "lock reset token", err)
	}

	updatedAt := time.Now().UTC().Truncate(time.Microsecond)
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, password_reset_token = NULL,
			password_reset_expires = NULL, updated_at = ?
		WHERE id = ? AND password_reset_token = ?`,
		passwordHash, updatedAt, user.ID, tokenHash,
	)
	if err != nil {
		return nil, storeError(mysqlBackend, "consume reset token", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, storeError(mysqlBackend, "consume reset token", err)
	}
	if n == 0 {
		return nil, ErrResetTokenNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError(mysqlBackend, "commit consume reset token", err)
	}

	user.PasswordHash = passwordHash
	user.ClearResetToken()
	user.UpdatedAt = updatedAt
	return user, nil
}

// Remove deletes the user. Sessions go with it through the foreign key.
func (r *UserRepository) Remove(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return storeError(mysqlBackend, "delete user", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeError(mysqlBackend, "delete user", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// requireAffected maps an UPDATE that matched nothing to ErrUserNotFound.
// The DSN sets clientFoundRows so unchanged-but-matched rows still count.
func requireAffected(result sql.Result, operation string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return storeError(mysqlBackend, operation, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
