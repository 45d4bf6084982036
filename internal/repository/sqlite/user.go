package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/userauth/internal/apperror"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, name, profile_picture, auth_provider,
	provider_id, is_active, last_login, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row. Nullable columns go through sql.Null* and
// come out as nil pointers on the model.
func scanUser(row rowScanner) (*model.User, error) {
	var (
		u          model.User
		hash       sql.NullString
		picture    sql.NullString
		providerID sql.NullString
		provider   string
		lastLogin  sql.NullTime
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&hash,
		&u.Name,
		&picture,
		&provider,
		&providerID,
		&u.IsActive,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.AuthProvider = model.AuthProvider(provider)
	u.PasswordHash = nullStringPtr(hash)
	u.ProfilePicture = nullStringPtr(picture)
	u.ProviderID = nullStringPtr(providerID)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create inserts a new user, filling in ID, CreatedAt and UpdatedAt.
//
// An empty AuthProvider defaults to local. A duplicate email or
// (provider, provider_id) pair comes back as apperror.ErrConflict: this is
// where a lost check-then-create race between two requests ends up.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if user.AuthProvider == "" {
		user.AuthProvider = model.ProviderLocal
	}

	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		ptrToNull(user.PasswordHash),
		user.Name,
		ptrToNull(user.ProfilePicture),
		string(user.AuthProvider),
		ptrToNull(user.ProviderID),
		user.IsActive,
		timePtrToNull(user.LastLogin),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "an account with this email or identity already exists")
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail looks up a user by exact email match.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetByProvider looks up a user by their external identity.
func (db *DB) GetByProvider(ctx context.Context, provider model.AuthProvider, providerID string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE auth_provider = ? AND provider_id = ?`,
		string(provider), providerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", string(provider)+":"+providerID)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s identity: %w", provider, err)
	}
	return u, nil
}

// List returns users ordered by creation time, newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}

// Update writes the mutable profile fields (email, name, picture) and bumps
// UpdatedAt. ID, provider identity, password hash and CreatedAt are never
// rewritten, so a user read without its hash can be saved back safely.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, name = ?, profile_picture = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email,
		user.Name,
		ptrToNull(user.ProfilePicture),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "an account with this email already exists")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	return expectOneRow(result, user.ID)
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at, at, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating last_login for %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// SetActive flips is_active. Deactivated users cannot log in with a password.
func (db *DB) SetActive(ctx context.Context, id string, active bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting is_active for %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// Delete hard-deletes a user row.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// expectOneRow turns "0 rows affected" into apperror.ErrNotFound.
func expectOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
