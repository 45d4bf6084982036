// Package model defines the data structures used throughout the application.
package model

import "time"

// AuthProvider identifies how an account was created.
//
// Only Local and Google have a login flow. Facebook and Twitter are reserved
// values: they may appear in stored rows but nothing in the service can
// produce or authenticate them.
type AuthProvider string

const (
	ProviderLocal    AuthProvider = "local"
	ProviderGoogle   AuthProvider = "google"
	ProviderFacebook AuthProvider = "facebook"
	ProviderTwitter  AuthProvider = "twitter"
)

// Valid reports whether p is one of the known provider values.
func (p AuthProvider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderFacebook, ProviderTwitter:
		return true
	}
	return false
}

// Implemented reports whether p has a working login path.
func (p AuthProvider) Implemented() bool {
	return p == ProviderLocal || p == ProviderGoogle
}

// User represents one account row in the users table.
//
// PasswordHash is a pointer because OAuth-only accounts have no hash at all;
// nil maps to SQL NULL. It carries `json:"-"` so that even an accidental
// json.Marshal(user) cannot leak it. Handlers still only ever encode
// UserPublicView.
//
// ProviderID is meaningful only when AuthProvider != ProviderLocal. The pair
// (AuthProvider, ProviderID) is unique in the database when ProviderID is set.
type User struct {
	ID             string       `json:"id"             db:"id"`
	Email          string       `json:"email"          db:"email"`
	PasswordHash   *string      `json:"-"              db:"password_hash"`
	Name           string       `json:"name"           db:"name"`
	ProfilePicture *string      `json:"profilePicture" db:"profile_picture"`
	AuthProvider   AuthProvider `json:"authProvider"   db:"auth_provider"`
	ProviderID     *string      `json:"providerId"     db:"provider_id"`
	IsActive       bool         `json:"isActive"       db:"is_active"`
	LastLogin      *time.Time   `json:"lastLogin"      db:"last_login"`
	CreatedAt      time.Time    `json:"createdAt"      db:"created_at"`
	UpdatedAt      time.Time    `json:"updatedAt"      db:"updated_at"`
}

// HasPassword reports whether the account can log in with local credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserPublicView is the only user shape that leaves the service.
// It has no password hash field, so there is nothing to forget to strip.
type UserPublicView struct {
	ID             string       `json:"id"`
	Email          string       `json:"email"`
	Name           string       `json:"name"`
	ProfilePicture *string      `json:"profilePicture,omitempty"`
	AuthProvider   AuthProvider `json:"authProvider"`
	ProviderID     *string      `json:"providerId,omitempty"`
	IsActive       bool         `json:"isActive"`
	LastLogin      *time.Time   `json:"lastLogin,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Public returns the outward view of u.
func (u *User) Public() *UserPublicView {
	return &UserPublicView{
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

// OAuthIdentity is an identity already verified by an OAuth exchange.
// The service trusts every field of it.
type OAuthIdentity struct {
	Email          string
	Name           string
	ProfilePicture *string
	Provider       AuthProvider
	ProviderID     string
}
