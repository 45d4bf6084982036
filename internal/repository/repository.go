// Package repository declares the storage contracts the service layer
// depends on. Implementations live in subpackages (sqlite, cached).
package repository

import (
	"context"
	"time"

	"github.com/sakif/userauth/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is CRUD over the users table.
//
// Lookups that miss return an error wrapping apperror.ErrNotFound.
// Create and Update return an error wrapping apperror.ErrConflict when the
// store rejects a duplicate email or (provider, providerId) pair; that is the
// only guard against two concurrent registrations for the same email.
// Update leaves the password hash as stored.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByProvider(ctx context.Context, provider model.AuthProvider, providerID string) (*model.User, error)
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}
