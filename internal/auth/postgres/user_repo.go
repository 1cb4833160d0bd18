// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements auth repositories backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the repository uses. It matches
// pgxmock.PgxPoolIface so the repository can be tested without a database.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user. A unique-constraint violation on the username
// column is reported as auth.ErrUsernameTaken.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			external_id, legacy_id, username, password_hash,
			token, banned, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ExternalID.String(),
		user.LegacyID,
		user.Username,
		user.PasswordHash,
		user.Token,
		user.Banned,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrUsernameTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves a user by username (case-sensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT external_id, legacy_id, username, password_hash,
		       token, banned, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// GetByToken retrieves a user by session token.
func (r *UserRepository) GetByToken(ctx context.Context, token string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT external_id, legacy_id, username, password_hash,
		       token, banned, created_at, updated_at
		FROM users
		WHERE token = $1
	`, token)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_TOKEN_FAILED").
			With("operation", "get user by token").
			Wrap(err)
	}
	return user, nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").
			With("operation", "count users").
			Wrap(err)
	}
	return count, nil
}

// SetBanned updates the ban flag for a user.
func (r *UserRepository) SetBanned(ctx context.Context, externalID ulid.ULID, banned bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET banned = $2, updated_at = $3
		WHERE external_id = $1
	`, externalID.String(), banned, time.Now())
	if err != nil {
		return oops.Code("USER_SET_BANNED_FAILED").
			With("operation", "set banned").
			With("external_id", externalID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("external_id", externalID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ClearToken removes the stored session token for a user.
func (r *UserRepository) ClearToken(ctx context.Context, externalID ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET token = '', updated_at = $2
		WHERE external_id = $1
	`, externalID.String(), time.Now())
	if err != nil {
		return oops.Code("USER_CLEAR_TOKEN_FAILED").
			With("operation", "clear token").
			With("external_id", externalID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("external_id", externalID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *UserRepository) scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		legacyID     int64
		username     string
		passwordHash string
		token        string
		banned       bool
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&idStr,
		&legacyID,
		&username,
		&passwordHash,
		&token,
		&banned,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse external id").
			With("external_id", idStr).
			Wrap(err)
	}

	return &auth.User{
		LegacyID:     legacyID,
		ExternalID:   id,
		Username:     username,
		PasswordHash: passwordHash,
		Token:        token,
		Banned:       banned,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
