// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// usernameRegex matches usernames of 3-20 characters containing only
// letters, numbers, and underscores. Matching is case-sensitive; "Alice"
// and "alice" are distinct accounts.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// User represents a registered account.
//
// LegacyID is assigned as count-of-users+1 at registration. Two
// registrations racing can be assigned the same value; the unique
// ExternalID is the storage primary key, so the collision is confined
// to the legacy field. This mirrors the deployed system and is kept
// deliberately (see DESIGN.md).
type User struct {
	LegacyID     int64
	ExternalID   ulid.ULID
	Username     string
	PasswordHash string
	Token        string
	Banned       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a validated User with a fresh external ID, the derived
// session token, and creation timestamps. The password hash must already
// be computed by a PasswordHasher.
func NewUser(legacyID int64, username, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}

	now := time.Now()
	return &User{
		LegacyID:     legacyID,
		ExternalID:   ulid.Make(),
		Username:     username,
		PasswordHash: passwordHash,
		Token:        DeriveToken(legacyID, username, passwordHash),
		Banned:       false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username may contain only letters, numbers, and underscores")
	}
	return nil
}

// UserRepository manages user persistence. Every lookup goes to storage;
// the core keeps no cache. Implementations map a unique-constraint
// violation on username to ErrUsernameTaken and report missing rows as
// ErrNotFound.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByUsername retrieves a user by username (case-sensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByToken retrieves a user by session token.
	GetByToken(ctx context.Context, token string) (*User, error)

	// Count returns the total number of users.
	Count(ctx context.Context) (int64, error)

	// SetBanned updates the ban flag for a user. This is the surface the
	// administrative process uses; the auth service never calls it.
	SetBanned(ctx context.Context, externalID ulid.ULID, banned bool) error

	// ClearToken removes the stored session token for a user.
	ClearToken(ctx context.Context, externalID ulid.ULID) error
}
