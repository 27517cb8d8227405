package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/exmoboty/starter/internal/model"
	"github.com/exmoboty/starter/internal/repository"
)

// AuthService handles signup, login and logout.
type AuthService struct {
	users    UserStore
	sessions *SessionManager
	hasher   PasswordHasher
	policy   PasswordPolicy
	options
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, sessions *SessionManager, hasher PasswordHasher, policy PasswordPolicy, opts ...Option) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		policy:   policy,
		options:  newOptions(opts),
	}
}

// Signup creates an account and logs it in. It returns the new user and the
// opaque session id.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (*model.User, string, error) {
	email := model.NormalizeEmail(req.Email)
	name := SanitizeName(req.FullName)

	ve := &ValidationError{}
	checkEmail(ve, email)
	s.policy.check(ve, req.Password, req.ConfirmPassword)
	if name == "" {
		ve.add("fullName", "Full Name cannot be blank")
	}
	if err := ve.err(); err != nil {
		s.recorder.AuthEvent("signup", outcomeFailure)
		return nil, "", err
	}

	n, err := s.users.CountByEmail(ctx, email)
	if err != nil {
		s.recorder.AuthEvent("signup", outcomeError)
		return nil, "", err
	}
	if n > 0 {
		s.recorder.AuthEvent("signup", outcomeFailure)
		return nil, "", ErrDuplicateAccount
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.recorder.AuthEvent("signup", outcomeError)
		return nil, "", fmt.Errorf("%w: %w", ErrHash, err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Profile:      model.Profile{Name: name},
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.recorder.AuthEvent("signup", outcomeFailure)
			return nil, "", ErrDuplicateAccount
		}
		s.recorder.AuthEvent("signup", outcomeError)
		return nil, "", err
	}

	sessionID, _, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		s.recorder.AuthEvent("signup", outcomeError)
		return user, "", err
	}

	s.recorder.AuthEvent("signup", outcomeSuccess)
	s.logger.InfoContext(ctx, "account created", "user_id", user.ID)
	return user, sessionID, nil
}

// Login checks credentials and starts a session. Unknown emails still cost a
// full bcrypt comparison and fail with the same error as a wrong password.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.User, string, error) {
	email := model.NormalizeEmail(req.Email)

	ve := &ValidationError{}
	checkEmail(ve, email)
	if req.Password == "" {
		ve.add("password", "Password cannot be blank")
	}
	if err := ve.err(); err != nil {
		s.recorder.AuthEvent("login", outcomeFailure)
		return nil, "", err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.VerifyDummy(req.Password)
			s.recorder.AuthEvent("login", outcomeFailure)
			return nil, "", ErrInvalidCredentials
		}
		s.recorder.AuthEvent("login", outcomeError)
		return nil, "", err
	}

	ok, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		s.recorder.AuthEvent("login", outcomeError)
		return nil, "", fmt.Errorf("%w: %w", ErrHash, err)
	}
	if !ok {
		s.recorder.AuthEvent("login", outcomeFailure)
		return nil, "", ErrInvalidCredentials
	}

	sessionID, _, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		s.recorder.AuthEvent("login", outcomeError)
		return nil, "", err
	}

	s.recorder.AuthEvent("login", outcomeSuccess)
	return user, sessionID, nil
}

// Logout ends the session. Logging out twice, or without a session, is fine.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		return err
	}
	s.recorder.AuthEvent("logout", outcomeSuccess)
	return nil
}
