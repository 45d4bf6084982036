// Package service: authentication decision logic.
//
// AuthService is where the service decides who someone is. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (decisions) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RULES:
//   - A wrong password and an unknown email fail identically.
//   - A deactivated account is reported as such, but only after the password
//     matched, so the distinction leaks nothing to someone without it.
//   - An OAuth identity is never silently merged into an existing account
//     with the same email. The collision is a conflict.
//
// AuthService does not log. Every outcome is returned to the caller, which
// decides what is worth a log line or a metric.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/userauth/internal/apperror"
	"github.com/sakif/userauth/internal/auth"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/repository"
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	now       func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		now:       time.Now,
	}
}

// RegisterInput is an already-validated registration request.
type RegisterInput struct {
	Email          string
	Password       string
	Name           string
	ProfilePicture *string
}

// AuthResult is returned by Register and Login.
// It bundles the public user view and the issued JWT so the handler can
// respond (and set the cookie) in one step.
type AuthResult struct {
	User        *model.UserPublicView `json:"user"`
	AccessToken string                `json:"access_token"`
}

// ValidateCredentials checks an email/password pair.
//
// Unknown email, an account without a password, and a wrong password all
// return apperror.InvalidCredentials(). A correct password on an inactive
// account returns apperror.AccountDeactivated().
func (s *AuthService) ValidateCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	if !user.HasPassword() {
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %s: %w", user.ID, err)
	}

	if !user.IsActive {
		return nil, apperror.AccountDeactivated()
	}

	return user, nil
}

// ResolveOAuthIdentity maps a verified OAuth identity to a user.
//
// The order matters:
//
//  1. (provider, providerId) already known → record the login, return that user
//  2. email already taken by any account   → conflict, nothing is created
//  3. otherwise                            → create a new passwordless account
//
// Step 3 can still lose a race with a concurrent request; the store's unique
// constraints turn that into apperror.ErrConflict.
func (s *AuthService) ResolveOAuthIdentity(ctx context.Context, id model.OAuthIdentity) (*model.User, error) {
	if id.Provider == model.ProviderLocal || !id.Provider.Implemented() {
		return nil, apperror.ValidationFailed("provider",
			fmt.Sprintf("sign-in with %q is not supported", id.Provider))
	}
	if id.ProviderID == "" {
		return nil, apperror.ValidationFailed("providerId", "provider id is required")
	}
	if id.Email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}

	existing, err := s.users.GetByProvider(ctx, id.Provider, id.ProviderID)
	switch {
	case err == nil:
		now := s.now().UTC()
		if err := s.users.TouchLastLogin(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("service/auth: recording login for user %s: %w", existing.ID, err)
		}
		existing.LastLogin = &now
		return existing, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up %s identity: %w", id.Provider, err)
	}

	byEmail, err := s.users.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		return nil, apperror.Conflict("user", fmt.Sprintf(
			"an account with this email already exists; sign in with %s", signInMethod(byEmail)))
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	providerID := id.ProviderID
	name := id.Name
	if name == "" {
		name = id.Email
	}
	user := &model.User{
		Email:          id.Email,
		Name:           name,
		ProfilePicture: id.ProfilePicture,
		AuthProvider:   id.Provider,
		ProviderID:     &providerID,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating %s user: %w", id.Provider, err)
	}

	return user, nil
}

// signInMethod names how the owner of an existing account signs in.
func signInMethod(u *model.User) string {
	if u.AuthProvider == model.ProviderLocal {
		return "your email and password"
	}
	return string(u.AuthProvider)
}

// Register creates a local account and issues its first token.
//
// The email pre-check gives a clean conflict in the common case. Two
// concurrent registrations can both pass it; the loser gets ErrConflict
// from the store.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	_, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperror.Conflict("user", "an account with this email already exists")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:          in.Email,
		PasswordHash:   &hash,
		Name:           in.Name,
		ProfilePicture: in.ProfilePicture,
		AuthProvider:   model.ProviderLocal,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	return s.issue(user)
}

// Login records a successful authentication and issues a token.
//
// The user must come from ValidateCredentials or ResolveOAuthIdentity.
// Inactive accounts are refused here too, which covers the OAuth path.
func (s *AuthService) Login(ctx context.Context, user *model.User) (*AuthResult, error) {
	if user == nil {
		return nil, fmt.Errorf("service/auth: user must not be nil")
	}
	if !user.IsActive {
		return nil, apperror.AccountDeactivated()
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("service/auth: recording login for user %s: %w", user.ID, err)
	}
	user.LastLogin = &now
	user.UpdatedAt = now

	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user.Public(), AccessToken: token}, nil
}

// Profile returns the public view of the user with the given ID.
func (s *AuthService) Profile(ctx context.Context, id string) (*model.UserPublicView, error) {
	if id == "" {
		return nil, apperror.NotFound("user", id)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user.Public(), nil
}
