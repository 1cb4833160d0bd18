// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/pkg/errutil"
)

// AuthService defines the authentication operations the HTTP layer
// consumes. The auth core exposes exactly these three calls.
type AuthService interface {
	// Register creates a new account and returns the user and session token.
	Register(ctx context.Context, username, password string) (*auth.User, string, error)

	// Login verifies credentials and returns the user and stored session token.
	Login(ctx context.Context, username, password string) (*auth.User, string, error)

	// Authenticate resolves a session token to a user.
	Authenticate(ctx context.Context, token string) (*auth.User, error)
}

// Handlers holds the gateway's HTTP handlers.
type Handlers struct {
	authService AuthService
	guard       *Guard
	pages       *pages
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewHandlers creates the handler set. Metrics may be nil, in which case
// no application metrics are recorded.
func NewHandlers(authService AuthService, metrics *observability.Metrics, logger *slog.Logger) (*Handlers, error) {
	if authService == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	guard, err := NewGuard(authService)
	if err != nil {
		return nil, err
	}

	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	return &Handlers{
		authService: authService,
		guard:       guard,
		pages:       p,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Routes registers all gateway routes on the mux.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", h.handleRegister)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /register", h.handleRegisterPage)
	mux.HandleFunc("GET /login", h.handleLoginPage)
	mux.Handle("GET /home", h.RequireSession(http.HandlerFunc(h.handleHome)))
	mux.HandleFunc("GET /logout", h.handleLogout)
}

// RequireSession wraps a handler with session validation. The guard's
// typed decision is translated here: missing tokens redirect to the
// login page, invalid tokens get 401, banned users get 403 with the
// cookie cleared, and store failures get 500 with no internal detail.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := h.guard.Check(r)

		switch decision.Outcome {
		case OutcomeAllow:
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), decision.User)))
		case OutcomeUnauthenticated:
			http.Redirect(w, r, "/login", http.StatusFound)
		case OutcomeInvalidToken:
			writeJSONError(w, http.StatusUnauthorized, "Invalid token")
		case OutcomeForbidden:
			clearSessionCookie(w)
			writeJSONError(w, http.StatusForbidden, "User is banned")
		default:
			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		}
	})
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Malformed form data")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	_, token, err := h.authService.Register(r.Context(), username, password)
	if err != nil {
		switch errorCode(err) {
		case "AUTH_INVALID_USERNAME":
			writeJSONError(w, http.StatusBadRequest, "Invalid username format")
		case "AUTH_EMPTY_PASSWORD":
			writeJSONError(w, http.StatusBadRequest, "Password must not be empty")
		case "AUTH_USERNAME_TAKEN":
			writeJSONError(w, http.StatusConflict, "Username already exists.")
		default:
			errutil.LogError(h.logger, "registration failed", err)
			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RegistrationsTotal.Inc()
	}
	setSessionCookie(w, token)
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Malformed form data")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	_, token, err := h.authService.Login(r.Context(), username, password)
	if err != nil {
		h.recordLogin("failure")
		switch errorCode(err) {
		case "AUTH_INVALID_CREDENTIALS":
			// Uniform message: never reveals whether the username exists.
			writeJSONError(w, http.StatusUnauthorized, "Authentication failed")
		case "AUTH_TOKEN_MISSING":
			writeJSONError(w, http.StatusUnauthorized, "Token not found")
		default:
			errutil.LogError(h.logger, "login failed", err)
			writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.recordLogin("success")
	setSessionCookie(w, token)
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

func (h *Handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/home", http.StatusFound)
}

func (h *Handlers) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.render(w, h.pages.register, nil); err != nil {
		errutil.LogError(h.logger, "render register page", err)
	}
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if err := h.pages.render(w, h.pages.login, nil); err != nil {
		errutil.LogError(h.logger, "render login page", err)
	}
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		// RequireSession attaches the user; reaching here without one is a wiring bug.
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.pages.render(w, h.pages.home, user); err != nil {
		errutil.LogError(h.logger, "render home page", err)
	}
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) recordLogin(result string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(result).Inc()
	}
}

// setSessionCookie transports the session token as an http-only cookie.
func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// writeJSONError writes the gateway's uniform JSON error body.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // error response write failure is not recoverable
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}

// errorCode extracts the oops code from an error, or "" for plain errors.
func errorCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

// clientKey identifies the client for rate limiting. Deployments behind a
// reverse proxy set X-Real-IP; otherwise the connection's remote address
// is used.
func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
