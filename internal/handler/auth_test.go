package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/userauth/internal/apperror"
	"github.com/sakif/userauth/internal/auth"
	"github.com/sakif/userauth/internal/handler"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/service"
)

// MockAuthenticator records every call so tests can assert the core was
// (or was not) reached.
type MockAuthenticator struct {
	RegisterCalls int
	ValidateCalls int
	ResolveCalls  int
	LoginCalls    int

	CapturedRegister service.RegisterInput
	CapturedIdentity model.OAuthIdentity

	RegisterErr error
	ValidateErr error
	ResolveErr  error
	LoginErr    error

	User *model.User
}

func newMockAuthenticator() *MockAuthenticator {
	return &MockAuthenticator{User: &model.User{
		ID:           "user-1",
		Email:        "a@x.com",
		Name:         "A",
		AuthProvider: model.ProviderLocal,
		IsActive:     true,
	}}
}

func (m *MockAuthenticator) result() *service.AuthResult {
	return &service.AuthResult{User: m.User.Public(), AccessToken: "token-for-" + m.User.ID}
}

func (m *MockAuthenticator) Register(_ context.Context, in service.RegisterInput) (*service.AuthResult, error) {
	m.RegisterCalls++
	m.CapturedRegister = in
	if m.RegisterErr != nil {
		return nil, m.RegisterErr
	}
	return m.result(), nil
}

func (m *MockAuthenticator) ValidateCredentials(_ context.Context, _, _ string) (*model.User, error) {
	m.ValidateCalls++
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	return m.User, nil
}

func (m *MockAuthenticator) ResolveOAuthIdentity(_ context.Context, id model.OAuthIdentity) (*model.User, error) {
	m.ResolveCalls++
	m.CapturedIdentity = id
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}
	return m.User, nil
}

func (m *MockAuthenticator) Login(_ context.Context, _ *model.User) (*service.AuthResult, error) {
	m.LoginCalls++
	if m.LoginErr != nil {
		return nil, m.LoginErr
	}
	return m.result(), nil
}

// MockGoogle is a canned OAuthProvider.
type MockGoogle struct {
	User        *auth.GoogleUser
	ExchangeErr error
	Codes       []string
}

func (m *MockGoogle) AuthURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (m *MockGoogle) Exchange(_ context.Context, code string) (*auth.GoogleUser, error) {
	m.Codes = append(m.Codes, code)
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.User, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body: %s", rr.Body.String())
	return body
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

// =========================================================================
// REGISTER
// =========================================================================

func TestAuthHandler_HandleRegister(t *testing.T) {
	t.Run("valid registration", func(t *testing.T) {
		m := newMockAuthenticator()
		h := handler.NewAuthHandler(m, nil, handler.AuthOptions{TokenTTL: time.Hour}, quietLogger())

		rr := post(h.HandleRegister, "/auth/register",
			`{"email":"  a@x.com ","password":"longenough1","name":" A ","profilePicture":"https://example.com/a.png"}`)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, 1, m.RegisterCalls)
		assert.Equal(t, "a@x.com", m.CapturedRegister.Email, "email is trimmed")
		assert.Equal(t, "A", m.CapturedRegister.Name)
		require.NotNil(t, m.CapturedRegister.ProfilePicture)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "token-for-user-1", body["access_token"])
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "a@x.com", user["email"])
		assert.NotContains(t, rr.Body.String(), "password")

		cookie := findCookie(rr, auth.TokenCookieName)
		require.NotNil(t, cookie)
		assert.Equal(t, "token-for-user-1", cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, 3600, cookie.MaxAge)
	})

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"short password", `{"email":"a@x.com","password":"short1","name":"A"}`, "password"},
		{"seven chars", `{"email":"a@x.com","password":"1234567","name":"A"}`, "password"},
		{"missing password", `{"email":"a@x.com","name":"A"}`, "password"},
		{"bad email", `{"email":"not-an-email","password":"longenough1","name":"A"}`, "email"},
		{"missing name", `{"email":"a@x.com","password":"longenough1"}`, "name"},
		{"blank name", `{"email":"a@x.com","password":"longenough1","name":"   "}`, "name"},
		{"name too long", `{"email":"a@x.com","password":"longenough1","name":"` + strings.Repeat("n", 101) + `"}`, "name"},
		{"bad picture", `{"email":"a@x.com","password":"longenough1","name":"A","profilePicture":"not a url"}`, "profilePicture"},
		{"password over 72 bytes", `{"email":"a@x.com","password":"` + strings.Repeat("é", 40) + `","name":"A"}`, "password"},
		{"malformed json", `{"email":`, ""},
		{"empty body", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockAuthenticator()
			h := handler.NewAuthHandler(m, nil, handler.AuthOptions{}, quietLogger())

			rr := post(h.HandleRegister, "/auth/register", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			body := decodeError(t, rr)
			assert.Equal(t, "validation_error", body.Error)
			assert.Equal(t, tt.wantField, body.Field)
			assert.Equal(t, 0, m.RegisterCalls, "invalid input must never reach the core")
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		m := newMockAuthenticator()
		m.RegisterErr = apperror.Conflict("user", "an account with this email already exists")
		h := handler.NewAuthHandler(m, nil, handler.AuthOptions{}, quietLogger())

		rr := post(h.HandleRegister, "/auth/register", `{"email":"a@x.com","password":"longenough1","name":"A"}`)

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "conflict", decodeError(t, rr).Error)
		assert.Nil(t, findCookie(rr, auth.TokenCookieName))
	})

	t.Run("internal error is hidden", func(t *testing.T) {
		m := newMockAuthenticator()
		m.RegisterErr = errors.New("sqlite: disk I/O error at /var/lib/secret.db")
		h := handler.NewAuthHandler(m, nil, handler.AuthOptions{}, quietLogger())

		rr := post(h.HandleRegister, "/auth/register", `{"email":"a@x.com","password":"longenough1","name":"A"}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "internal_error", decodeError(t, rr).Error)
		assert.NotContains(t, rr.Body.String(), "secret.db")
	})
}

// =========================================================================
// LOGIN / LOGOUT
// =========================================================================

func TestAuthHandler_HandleLogin(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		validateErr error
		wantStatus  int
		wantError   string
		wantLogin   int
	}{
		{
			name:       "success",
			body:       `{"email":"a@x.com","password":"longenough1"}`,
			wantStatus: http.StatusOK,
			wantLogin:  1,
		},
		{
			name:        "invalid credentials",
			body:        `{"email":"a@x.com","password":"wrong-password"}`,
			validateErr: apperror.InvalidCredentials(),
			wantStatus:  http.StatusUnauthorized,
			wantError:   "invalid_credentials",
		},
		{
			name:        "deactivated",
			body:        `{"email":"a@x.com","password":"longenough1"}`,
			validateErr: apperror.AccountDeactivated(),
			wantStatus:  http.StatusForbidden,
			wantError:   "account_deactivated",
		},
		{
			name:       "missing password",
			body:       `{"email":"a@x.com"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockAuthenticator()
			m.ValidateErr = tt.validateErr
			h := handler.NewAuthHandler(m, nil, handler.AuthOptions{}, quietLogger())

			rr := post(h.HandleLogin, "/auth/login", tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantLogin, m.LoginCalls)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decodeError(t, rr).Error)
				return
			}
			assert.Contains(t, rr.Body.String(), `"access_token":"token-for-user-1"`)
			assert.NotNil(t, findCookie(rr, auth.TokenCookieName))
		})
	}
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	h := handler.NewAuthHandler(newMockAuthenticator(), nil, handler.AuthOptions{}, quietLogger())

	rr := post(h.HandleLogout, "/auth/logout", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	cookie := findCookie(rr, auth.TokenCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

// =========================================================================
// GOOGLE SIGN-IN
// =========================================================================

func TestAuthHandler_HandleGoogleLogin(t *testing.T) {
	h := handler.NewAuthHandler(newMockAuthenticator(), &MockGoogle{}, handler.AuthOptions{}, quietLogger())

	rr := httptest.NewRecorder()
	h.HandleGoogleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := findCookie(rr, "oauth_state")
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func callback(h *handler.AuthHandler, query, stateCookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: stateCookie})
	}
	rr := httptest.NewRecorder()
	h.HandleGoogleCallback(rr, req)
	return rr
}

func TestAuthHandler_HandleGoogleCallback(t *testing.T) {
	gUser := &auth.GoogleUser{Sub: "sub-1", Email: "g@x.com", EmailVerified: true, Name: "G"}

	t.Run("success returns JSON", func(t *testing.T) {
		m := newMockAuthenticator()
		g := &MockGoogle{User: gUser}
		h := handler.NewAuthHandler(m, g, handler.AuthOptions{}, quietLogger())

		rr := callback(h, "state=s1&code=c1", "s1")

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, []string{"c1"}, g.Codes)
		assert.Equal(t, model.ProviderGoogle, m.CapturedIdentity.Provider)
		assert.Equal(t, "sub-1", m.CapturedIdentity.ProviderID)
		assert.Equal(t, 1, m.LoginCalls)
		assert.Contains(t, rr.Body.String(), "access_token")
		assert.NotNil(t, findCookie(rr, auth.TokenCookieName))
	})

	t.Run("success redirects to frontend", func(t *testing.T) {
		m := newMockAuthenticator()
		h := handler.NewAuthHandler(m, &MockGoogle{User: gUser},
			handler.AuthOptions{FrontendURL: "https://app.example.com/welcome"}, quietLogger())

		rr := callback(h, "state=s1&code=c1", "s1")

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "https://app.example.com/welcome#access_token=token-for-user-1", rr.Header().Get("Location"))
	})

	t.Run("state mismatch", func(t *testing.T) {
		m := newMockAuthenticator()
		g := &MockGoogle{User: gUser}
		h := handler.NewAuthHandler(m, g, handler.AuthOptions{}, quietLogger())

		for _, rr := range []*httptest.ResponseRecorder{
			callback(h, "state=s1&code=c1", "other"),
			callback(h, "state=s1&code=c1", ""),
		} {
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		}
		assert.Empty(t, g.Codes, "code must not be exchanged")
		assert.Equal(t, 0, m.ResolveCalls)
	})

	t.Run("missing code", func(t *testing.T) {
		h := handler.NewAuthHandler(newMockAuthenticator(), &MockGoogle{User: gUser}, handler.AuthOptions{}, quietLogger())

		rr := callback(h, "state=s1", "s1")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "code", decodeError(t, rr).Field)
	})

	t.Run("user denied consent", func(t *testing.T) {
		h := handler.NewAuthHandler(newMockAuthenticator(), &MockGoogle{User: gUser}, handler.AuthOptions{}, quietLogger())

		rr := callback(h, "state=s1&error=access_denied", "s1")

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unverified email", func(t *testing.T) {
		m := newMockAuthenticator()
		h := handler.NewAuthHandler(m, &MockGoogle{ExchangeErr: auth.ErrEmailNotVerified}, handler.AuthOptions{}, quietLogger())

		rr := callback(h, "state=s1&code=c1", "s1")

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, 0, m.ResolveCalls)
	})

	t.Run("email collision is a conflict", func(t *testing.T) {
		m := newMockAuthenticator()
		m.ResolveErr = apperror.Conflict("user", "an account with this email already exists")
		h := handler.NewAuthHandler(m, &MockGoogle{User: gUser}, handler.AuthOptions{}, quietLogger())

		rr := callback(h, "state=s1&code=c1", "s1")

		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, 0, m.LoginCalls)
		assert.Nil(t, findCookie(rr, auth.TokenCookieName))
	})

	t.Run("failure redirects to frontend with code", func(t *testing.T) {
		m := newMockAuthenticator()
		m.ResolveErr = apperror.Conflict("user", "exists")
		h := handler.NewAuthHandler(m, &MockGoogle{User: gUser},
			handler.AuthOptions{FrontendURL: "https://app.example.com"}, quietLogger())

		rr := callback(h, "state=s1&code=c1", "s1")

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "https://app.example.com?error=conflict", rr.Header().Get("Location"))
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := handler.NewAuthHandler(newMockAuthenticator(), &MockGoogle{ExchangeErr: errors.New("token endpoint down")},
			handler.AuthOptions{}, quietLogger())

		rr := callback(h, "state=s1&code=c1", "s1")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "token endpoint")
	})
}
