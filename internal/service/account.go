package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/repository"
)

// AccountService lets a signed-in user manage their own account.
type AccountService struct {
	users    UserStore
	sessions *SessionManager
	hasher   PasswordHasher
	policy   PasswordPolicy
	options
}

// NewAccountService creates a new AccountService.
func NewAccountService(users UserStore, sessions *SessionManager, hasher PasswordHasher, policy PasswordPolicy, opts ...Option) *AccountService {
	return &AccountService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		policy:   policy,
		options:  newOptions(opts),
	}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrNotFound
	}
	return err
}

// GetUser retrieves a user by ID.
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// UpdateProfile replaces the display name. The password is left untouched.
func (s *AccountService) UpdateProfile(ctx context.Context, id, fullName string) error {
	name := SanitizeName(fullName)
	if name == "" {
		ve := &ValidationError{}
		ve.add("fullName", "Full Name cannot be blank")
		return ve
	}
	return notFound(s.users.UpdateProfile(ctx, id, name))
}

// ChangePassword validates and stores a new password.
func (s *AccountService) ChangePassword(ctx context.Context, id string, req model.PasswordRequest) error {
	ve := &ValidationError{}
	s.policy.check(ve, req.Password, req.ConfirmPassword)
	if err := ve.err(); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHash, err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return notFound(err)
	}
	s.recorder.AuthEvent("password_change", outcomeSuccess)
	return nil
}

// DeleteAccount removes the user and ends all of their sessions.
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.users.Remove(ctx, id); err != nil {
		return notFound(err)
	}
	if err := s.sessions.DestroyAllForUser(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "destroy sessions of deleted user", "user_id", id, "error", err)
	}
	s.recorder.AuthEvent("account_delete", outcomeSuccess)
	s.logger.InfoContext(ctx, "account deleted", "user_id", id)
	return nil
}
