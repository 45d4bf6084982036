package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/userauth/internal/apperror"
	"github.com/sakif/userauth/internal/auth"
	"github.com/sakif/userauth/internal/middleware"
	"github.com/sakif/userauth/internal/model"
	"github.com/sakif/userauth/internal/service"
)

const stateCookieName = "oauth_state"

// Authenticator is the slice of service.AuthService the auth handlers use.
// Tests substitute a fake to prove invalid requests never reach it.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	ValidateCredentials(ctx context.Context, email, password string) (*model.User, error)
	ResolveOAuthIdentity(ctx context.Context, id model.OAuthIdentity) (*model.User, error)
	Login(ctx context.Context, user *model.User) (*service.AuthResult, error)
}

// OAuthProvider performs the redirect half and the code exchange of an
// OAuth flow. *auth.GoogleProvider implements it.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

// AuthOptions are the transport settings of the auth endpoints.
type AuthOptions struct {
	TokenTTL     time.Duration // cookie lifetime, matches the JWT lifetime
	SecureCookie bool
	// FrontendURL, when set, is where the Google callback sends the browser
	// with the token in the URL fragment. Empty means answer with JSON.
	FrontendURL string
}

// AuthHandler serves registration, password login, logout and Google sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → POST /auth/register
//   - HandleLogin          → POST /auth/login
//   - HandleLogout         → POST /auth/logout
//   - HandleGoogleLogin    → GET  /auth/google/login
//   - HandleGoogleCallback → GET  /auth/google/callback
//
// Request bodies are decoded and validated here; the Authenticator only ever
// sees well-formed input.
type AuthHandler struct {
	auth   Authenticator
	google OAuthProvider // nil when Google sign-in is not configured
	opts   AuthOptions
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil.
func NewAuthHandler(authn Authenticator, google OAuthProvider, opts AuthOptions, logger *slog.Logger) *AuthHandler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{
		auth:   authn,
		google: google,
		opts:   opts,
		logger: logger,
	}
}

type registerRequest struct {
	Email          string  `json:"email"          validate:"required,email"`
	Password       string  `json:"password"       validate:"required,min=8,max=72"`
	Name           string  `json:"name"           validate:"required,max=100"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,url"`
}

func (r *registerRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.ProfilePicture != nil {
		if pic := strings.TrimSpace(*r.ProfilePicture); pic == "" {
			r.ProfilePicture = nil
		} else {
			r.ProfilePicture = &pic
		}
	}
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

// HandleRegister creates a local account.
//
// HTTP: POST /auth/register
// Body: {"email": "...", "password": "...", "name": "...", "profilePicture": "..."}
// 201:  {"user": {...}, "access_token": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.RecordAuthAttempt("register", resultLabel(err))
		writeError(w, err)
		return
	}
	// validator counts characters; bcrypt's limit is in bytes
	if len(req.Password) > auth.MaxPasswordBytes {
		err := apperror.ValidationFailed("password", "password must be at most 72 bytes")
		middleware.RecordAuthAttempt("register", resultLabel(err))
		writeError(w, err)
		return
	}

	result, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		Name:           req.Name,
		ProfilePicture: req.ProfilePicture,
	})
	middleware.RecordAuthAttempt("register", resultLabel(err))
	if err != nil {
		logIfInternal(h.logger, r, "registration failed", err)
		writeError(w, err)
		return
	}

	h.logger.Info("user registered", slog.String("userID", result.User.ID))
	h.setTokenCookie(w, result.AccessToken)
	writeJSON(w, http.StatusCreated, result)
}

// HandleLogin authenticates with email and password.
//
// HTTP: POST /auth/login
// 200:  {"user": {...}, "access_token": "..."}
// 401:  invalid_credentials (wrong password and unknown email look the same)
// 403:  account_deactivated
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.RecordAuthAttempt("password", resultLabel(err))
		writeError(w, err)
		return
	}

	result, err := h.login(r.Context(), req)
	middleware.RecordAuthAttempt("password", resultLabel(err))
	if err != nil {
		logIfInternal(h.logger, r, "login failed", err)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.AccessToken)
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) login(ctx context.Context, req loginRequest) (*service.AuthResult, error) {
	user, err := h.auth.ValidateCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return h.auth.Login(ctx, user)
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so there is nothing to revoke server-side; a token
// held elsewhere stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, auth.TokenCookieName)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes both into a short-lived HttpOnly cookie and into
// the authorization URL. The callback only proceeds when the two match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes Google sign-in.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code and fetch the verified Google profile
//  3. Resolve the identity to a user (never merged into an existing email)
//  4. Record the login and issue a token
//  5. Redirect to the frontend with the token, or answer with JSON
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("google callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	h.clearCookie(w, stateCookieName) // single use

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("google callback: authorization denied", slog.String("error", errParam))
		middleware.RecordAuthAttempt("google", "denied")
		h.fail(w, r, apperror.Forbidden("Google sign-in was cancelled"))
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	// --- Step 2: Exchange code for the Google profile ---
	gUser, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, auth.ErrEmailNotVerified) {
			middleware.RecordAuthAttempt("google", "email_not_verified")
			h.fail(w, r, apperror.Forbidden("your Google email address is not verified"))
			return
		}
		h.logger.Error("google callback: exchange failed", slog.String("error", err.Error()))
		middleware.RecordAuthAttempt("google", "exchange_failed")
		h.fail(w, r, err)
		return
	}

	// --- Steps 3 and 4: resolve and log in ---
	result, err := h.resolveAndLogin(r.Context(), gUser.Identity())
	middleware.RecordAuthAttempt("google", resultLabel(err))
	if err != nil {
		logIfInternal(h.logger, r, "google sign-in failed", err)
		h.fail(w, r, err)
		return
	}

	h.logger.Info("user authenticated via Google", slog.String("userID", result.User.ID))
	h.setTokenCookie(w, result.AccessToken)

	// --- Step 5: hand the token to the client ---
	if h.opts.FrontendURL != "" {
		frag := url.Values{"access_token": {result.AccessToken}}
		http.Redirect(w, r, h.opts.FrontendURL+"#"+frag.Encode(), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) resolveAndLogin(ctx context.Context, id model.OAuthIdentity) (*service.AuthResult, error) {
	user, err := h.auth.ResolveOAuthIdentity(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.auth.Login(ctx, user)
}

// fail reports a callback failure. With a frontend configured the browser is
// sent back there with ?error=<code>; otherwise the usual JSON error.
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.opts.FrontendURL == "" {
		writeError(w, err)
		return
	}
	_, code := statusFor(err)
	http.Redirect(w, r, h.opts.FrontendURL+"?"+url.Values{"error": {code}}.Encode(), http.StatusSeeOther)
}

// setTokenCookie stores the JWT in an HttpOnly cookie so browser clients can
// rely on the cookie while API clients use the bearer token from the body.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.opts.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
