// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses and validates requests, writes responses
//	Service (Business layer) → enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the users table
//
// Services take repository interfaces, never a *sqlite.DB, so tests run
// against in-memory fakes and the admin CLI reuses the same code as the
// HTTP server.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/userauth/internal/apperror"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/repository"
)

// Limits shared by the service and the request validators.
const (
	MaxNameLength    = 100
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// UserService manages existing accounts: profile edits, activation and
// admin listing. Authentication decisions live in AuthService.
type UserService struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// Get returns the public view of one user.
// Returns apperror.ErrNotFound if the user doesn't exist.
func (s *UserService) Get(ctx context.Context, id string) (*model.UserPublicView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// UpdateProfileInput is a partial update: nil fields are left untouched.
// An empty ProfilePicture clears the picture.
type UpdateProfileInput struct {
	Name           *string
	ProfilePicture *string
}

// UpdateProfile applies a partial profile update and returns the new view.
//
// STRATEGY: fetch, apply, save. The "not found" error comes from GetByID,
// the same as every other lookup.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*model.UserPublicView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.ValidationFailed("name", "name cannot be empty")
		}
		if utf8.RuneCountInString(name) > MaxNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("name must be %d characters or less", MaxNameLength))
		}
		user.Name = name
	}

	if in.ProfilePicture != nil {
		if pic := strings.TrimSpace(*in.ProfilePicture); pic == "" {
			user.ProfilePicture = nil
		} else {
			user.ProfilePicture = &pic
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("failed to update profile",
			slog.String("userID", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user.Public(), nil
}

// SetActive deactivates or reactivates an account.
// Deactivated accounts keep their data but cannot log in.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "user ID is required")
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}

	s.logger.Info("account activation changed",
		slog.String("userID", id),
		slog.Bool("active", active),
	)
	return nil
}

// Delete removes an account permanently.
func (s *UserService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "user ID is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("account deleted", slog.String("userID", id))
	return nil
}

// List returns a page of users, newest first.
//
// limit is clamped to 1-100 (default 20); a negative offset becomes 0.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]model.UserPublicView, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing users: %w", err)
	}

	views := make([]model.UserPublicView, 0, len(users))
	for i := range users {
		views = append(views, *users[i].Public())
	}
	return views, nil
}
