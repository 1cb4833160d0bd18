// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"context"
	"net/http"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "token"

// Outcome classifies the result of a session check.
type Outcome int

const (
	// OutcomeAllow means the request carries a valid session.
	OutcomeAllow Outcome = iota

	// OutcomeUnauthenticated means no token was presented.
	OutcomeUnauthenticated

	// OutcomeInvalidToken means the token matches no user.
	OutcomeInvalidToken

	// OutcomeForbidden means the token's user is banned.
	OutcomeForbidden

	// OutcomeInternalError means the user store could not be consulted.
	OutcomeInternalError
)

// Decision is the typed accept/reject a Guard produces for a request.
// User is set only when Outcome is OutcomeAllow.
type Decision struct {
	Outcome Outcome
	User    *auth.User
}

// Guard resolves a request's session cookie to a user before handler
// dispatch. It holds no per-request state and is safe for concurrent use.
type Guard struct {
	authService AuthService
}

// NewGuard creates a Guard.
func NewGuard(authService AuthService) (*Guard, error) {
	if authService == nil {
		return nil, oops.Errorf("auth service is required")
	}
	return &Guard{authService: authService}, nil
}

// Check inspects the request's session cookie and returns a Decision.
// It never writes to the response; callers translate the decision into
// HTTP behavior.
func (g *Guard) Check(r *http.Request) Decision {
	token := ""
	if c, err := r.Cookie(SessionCookieName); err == nil {
		token = c.Value
	}

	user, err := g.authService.Authenticate(r.Context(), token)
	if err == nil {
		return Decision{Outcome: OutcomeAllow, User: user}
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		switch oopsErr.Code() {
		case "AUTH_TOKEN_REQUIRED":
			return Decision{Outcome: OutcomeUnauthenticated}
		case "AUTH_TOKEN_INVALID":
			return Decision{Outcome: OutcomeInvalidToken}
		case "AUTH_ACCOUNT_BANNED":
			return Decision{Outcome: OutcomeForbidden}
		}
	}
	return Decision{Outcome: OutcomeInternalError}
}

// userContextKey is the context key for the authenticated user.
type userContextKey struct{}

// UserFromContext returns the user a guard middleware attached to the
// request context, or nil if the request was not guarded.
func UserFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey{}).(*auth.User)
	return user
}

// withUser returns a copy of ctx carrying the authenticated user.
func withUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}
