// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth provides the authentication core for Authgate.
//
// # Domain Types
//
// User is the sole persisted entity. Create it with NewUser, which
// validates the username and stamps timestamps and the external ID.
// Direct struct initialization bypasses validation and may create
// invalid state. Repository implementations receive pre-validated
// values from the constructor.
//
// # Services
//
// Service coordinates the three operations the HTTP layer consumes:
//   - Register - validate, hash, derive token, insert
//   - Login - verify credentials, reissue the stored token
//   - Authenticate - resolve a session token to a user, enforce bans
//
// Services are created with NewService / NewServiceWithLogger, which
// validate dependencies.
package auth
