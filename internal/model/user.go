package model

import (
	"strings"
	"time"
)

// Profile holds user-editable display data.
type Profile struct {
	Name string
}

// User represents an account in the credential store.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Profile      Profile

	// PasswordResetToken holds the SHA-256 hash of the active reset token.
	// It is set together with PasswordResetExpires and cleared together with it.
	PasswordResetToken   string
	PasswordResetExpires *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetResetToken starts a reset window for the given token hash.
func (u *User) SetResetToken(tokenHash string, expires time.Time) {
	u.PasswordResetToken = tokenHash
	exp := expires.UTC()
	u.PasswordResetExpires = &exp
}

// ClearResetToken ends any active reset window.
func (u *User) ClearResetToken() {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

// HasActiveReset reports whether a reset token is usable at now.
// The token is rejected at the exact expiry instant.
func (u *User) HasActiveReset(now time.Time) bool {
	return u.PasswordResetToken != "" &&
		u.PasswordResetExpires != nil &&
		u.PasswordResetExpires.After(now)
}

// NormalizeEmail trims and lower-cases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignupRequest carries the signup form fields.
type SignupRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// LoginRequest carries the login form fields.
type LoginRequest struct {
	Email    string
	Password string
}

// PasswordRequest carries a new password and its confirmation, used by
// reset and account password change.
type PasswordRequest struct {
	Password        string
	ConfirmPassword string
}

// ContactRequest carries the contact form fields.
type ContactRequest struct {
	Name    string
	Email   string
	Message string
}
