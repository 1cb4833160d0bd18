// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/web"
)

// memRepo is an in-memory auth.UserRepository for end-to-end handler tests.
type memRepo struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[string]*auth.User)}
}

func (r *memRepo) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Username]; exists {
		return auth.ErrUsernameTaken
	}
	clone := *user
	r.users[user.Username] = &clone
	return nil
}

func (r *memRepo) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, exists := r.users[username]
	if !exists {
		return nil, auth.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *memRepo) GetByToken(_ context.Context, token string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Token == token {
			clone := *user
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *memRepo) SetBanned(_ context.Context, externalID ulid.ULID, banned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ExternalID == externalID {
			user.Banned = banned
			return nil
		}
	}
	return auth.ErrNotFound
}

func (r *memRepo) ClearToken(_ context.Context, externalID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ExternalID == externalID {
			user.Token = ""
			return nil
		}
	}
	return auth.ErrNotFound
}

var _ auth.UserRepository = (*memRepo)(nil)

// TestGatewayFlow walks one account through the whole surface: register,
// reach the guarded page, log in again and receive the identical token,
// get rejected with bad credentials, then get locked out by a ban.
func TestGatewayFlow(t *testing.T) {
	repo := newMemRepo()
	svc, err := auth.NewService(repo, auth.NewBcryptHasherWithCost(bcrypt.MinCost))
	require.NoError(t, err)

	handler := newTestHandlers(t, svc)

	// Register alice
	w := postForm(t, handler, "/api/register", url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	registered := sessionCookie(w)
	require.NotNil(t, registered)
	require.NotEmpty(t, registered.Value)

	// The token admits alice to the guarded page
	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(registered)
	home := httptest.NewRecorder()
	handler.ServeHTTP(home, req)
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Contains(t, home.Body.String(), "alice")

	// A second registration under the same name collides
	w = postForm(t, handler, "/api/register", url.Values{
		"username": {"alice"},
		"password": {"other"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Registration with an empty password is refused outright
	w = postForm(t, handler, "/api/register", url.Values{
		"username": {"bob"},
		"password": {""},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Login reissues the identical token
	w = postForm(t, handler, "/api/login", url.Values{
		"username": {"alice"},
		"password": {"s3cret"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	loggedIn := sessionCookie(w)
	require.NotNil(t, loggedIn)
	assert.Equal(t, registered.Value, loggedIn.Value)

	// Wrong password and unknown user read identically
	w = postForm(t, handler, "/api/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	wrongPass := decodeErrorBody(t, w)

	w = postForm(t, handler, "/api/login", url.Values{
		"username": {"nobody"},
		"password": {"s3cret"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, wrongPass, decodeErrorBody(t, w))

	// A garbage token is rejected outright
	req = httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(&http.Cookie{Name: web.SessionCookieName, Value: "garbage"})
	garbage := httptest.NewRecorder()
	handler.ServeHTTP(garbage, req)
	assert.Equal(t, http.StatusUnauthorized, garbage.Code)

	// Ban alice; her still-valid token now yields forbidden and the
	// cookie is cleared
	stored, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, repo.SetBanned(context.Background(), stored.ExternalID, true))

	req = httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(registered)
	banned := httptest.NewRecorder()
	handler.ServeHTTP(banned, req)
	assert.Equal(t, http.StatusForbidden, banned.Code)

	cleared := sessionCookie(banned)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	// Unbanning restores access with the same token
	require.NoError(t, repo.SetBanned(context.Background(), stored.ExternalID, false))

	req = httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(registered)
	restored := httptest.NewRecorder()
	handler.ServeHTTP(restored, req)
	assert.Equal(t, http.StatusOK, restored.Code)
}
