// Package cached decorates a UserRepository with a read-through profile cache.
//
// Only GetByID is cached (it backs GET /api/me on every authenticated request).
// Every write that goes through the decorator drops the cached entry for that
// user, so readers see their own writes. Cache failures are invisible: the
// underlying cache.Store already turns them into misses.
package cached

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sakif/userauth/internal/cache"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/repository"
)

const keyPrefix = "userauth:user:"

// UserRepository caches GetByID results in a cache.Store.
type UserRepository struct {
	next  repository.UserRepository
	store cache.Store
	ttl   time.Duration
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository wraps next. A non-positive ttl falls back to five minutes.
func NewUserRepository(next repository.UserRepository, store cache.Store, ttl time.Duration) *UserRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserRepository{next: next, store: store, ttl: ttl}
}

// entry is the cached shape. It has no password hash: hashes stay in the
// database, and Update never writes the hash column.
type entry struct {
	ID             string             `json:"id"`
	Email          string             `json:"email"`
	Name           string             `json:"name"`
	ProfilePicture *string            `json:"profile_picture,omitempty"`
	AuthProvider   model.AuthProvider `json:"auth_provider"`
	ProviderID     *string            `json:"provider_id,omitempty"`
	IsActive       bool               `json:"is_active"`
	LastLogin      *time.Time         `json:"last_login,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func toEntry(u *model.User) entry {
	return entry{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		AuthProvider:   u.AuthProvider,
		ProviderID:     u.ProviderID,
		IsActive:       u.IsActive,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (e entry) user() *model.User {
	return &model.User{
		ID:             e.ID,
		Email:          e.Email,
		Name:           e.Name,
		ProfilePicture: e.ProfilePicture,
		AuthProvider:   e.AuthProvider,
		ProviderID:     e.ProviderID,
		IsActive:       e.IsActive,
		LastLogin:      e.LastLogin,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func key(id string) string { return keyPrefix + id }

// GetByID serves from cache when possible and fills it on a miss.
// Corrupt entries are ignored and overwritten. A cached user has a nil
// PasswordHash; credential checks go through GetByEmail, which is not cached.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	if raw, _ := r.store.Get(ctx, key(id)); raw != nil {
		var e entry
		if err := json.Unmarshal(raw, &e); err == nil && e.ID == id {
			return e.user(), nil
		}
	}

	u, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(toEntry(u)); err == nil {
		_ = r.store.Set(ctx, key(id), raw, r.ttl)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.next.Create(ctx, user)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.next.GetByEmail(ctx, email)
}

func (r *UserRepository) GetByProvider(ctx context.Context, provider model.AuthProvider, providerID string) (*model.User, error) {
	return r.next.GetByProvider(ctx, provider, providerID)
}

func (r *UserRepository) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	return r.next.List(ctx, opts)
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	defer r.invalidate(ctx, user.ID)
	return r.next.Update(ctx, user)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	defer r.invalidate(ctx, id)
	return r.next.TouchLastLogin(ctx, id, at)
}

func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	defer r.invalidate(ctx, id)
	return r.next.SetActive(ctx, id, active)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	defer r.invalidate(ctx, id)
	return r.next.Delete(ctx, id)
}

func (r *UserRepository) invalidate(ctx context.Context, id string) {
	_ = r.store.Delete(ctx, key(id))
}
