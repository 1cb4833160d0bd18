// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Service provides the register, login, and authenticate operations.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewService creates a new Service with a no-op logger.
func NewService(users UserRepository, hasher PasswordHasher) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &Service{
		users:  users,
		hasher: hasher,
		logger: slog.New(slog.DiscardHandler),
	}, nil
}

// NewServiceWithLogger creates a new Service with the provided logger.
func NewServiceWithLogger(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	svc, err := NewService(users, hasher)
	if err != nil {
		return nil, err
	}
	svc.logger = logger
	return svc, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's the well-known bcrypt hash of "password"
// and is never compared against a real account.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Register creates a new account and returns the user together with its
// session token.
//
// The legacy ID is assigned as Count()+1. Two concurrent registrations can
// be handed the same value; the username uniqueness constraint still makes
// exactly one of them win when both picked the same name, and the external
// ULID keys storage, so a duplicated legacy ID is recorded but harmless.
func (s *Service) Register(ctx context.Context, username, password string) (*User, string, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, "", err
	}
	if password == "" {
		return nil, "", ErrEmptyPassword
	}

	// Pre-check uniqueness for a friendly error; the database constraint
	// is the authority when two registrations race past this point.
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil, "", oops.Code("AUTH_USERNAME_TAKEN").
			With("username", username).
			Errorf("username already exists")
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, "", oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by username").
			Wrap(err)
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "count users").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(count+1, username, hash)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "construct user").
			Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			// Lost the race between the pre-check and the insert.
			return nil, "", oops.Code("AUTH_USERNAME_TAKEN").
				With("username", username).
				Errorf("username already exists")
		}
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	s.logger.Info("user registered",
		"username", user.Username,
		"external_id", user.ExternalID.String(),
		"legacy_id", user.LegacyID,
	)
	return user, user.Token, nil
}

// Login verifies credentials and returns the user with its stored session
// token. Unknown usernames and wrong passwords produce the same error code
// and message so the response never reveals whether the account exists.
// Uses constant-time operations to prevent timing-based username enumeration.
func (s *Service) Login(ctx context.Context, username, password string) (*User, string, error) {
	user, lookupErr := s.users.GetByUsername(ctx, username)

	// Determine which hash to verify against (real or dummy for timing attack prevention)
	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			targetHash = dummyPasswordHash
			userExists = false
		} else {
			return nil, "", oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get user by username").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify the password so absent and present users cost the same.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, "", invalidCredentials()
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		s.logger.Warn("failed login attempt", "username", username)
		return nil, "", invalidCredentials()
	}

	if user.Token == "" {
		// Every registration derives a token; a missing one means the
		// record was mutated outside the service.
		return nil, "", oops.Code("AUTH_TOKEN_MISSING").
			With("username", username).
			Errorf("no session token recorded for user")
	}

	s.logger.Info("user logged in", "username", user.Username)
	return user, user.Token, nil
}

// Authenticate resolves a session token to a user.
//
// The outcome is one of four states: no token, token with no matching
// user, matching user that is banned, or success. Store failures surface
// as AUTH_LOOKUP_FAILED and carry no storage detail for the client.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, oops.Code("AUTH_TOKEN_REQUIRED").Errorf("authentication required")
	}

	user, err := s.users.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_TOKEN_INVALID").Errorf("invalid token")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by token").
			Wrap(err)
	}

	if user.Banned {
		s.logger.Warn("banned user presented a valid token", "username", user.Username)
		return nil, oops.Code("AUTH_ACCOUNT_BANNED").
			With("username", user.Username).
			Errorf("user is banned")
	}

	return user, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("authentication failed")
}
