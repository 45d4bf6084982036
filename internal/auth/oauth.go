package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/userauth/internal/model"
)

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// ErrEmailNotVerified is returned when Google reports the account email as
// unverified. Such an identity is not trusted for account creation.
var ErrEmailNotVerified = errors.New("auth: google account email is not verified")

// GoogleUser is the portion of the userinfo response we use.
// Google docs: https://developers.google.com/identity/openid-connect/openid-connect#obtainuserinfo
type GoogleUser struct {
	Sub           string `json:"sub"` // stable account ID, never reused
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Identity converts the userinfo payload into the provider-neutral shape the
// service layer resolves. An empty name falls back to the email address.
func (g *GoogleUser) Identity() model.OAuthIdentity {
	id := model.OAuthIdentity{
		Email:      g.Email,
		Name:       g.Name,
		Provider:   model.ProviderGoogle,
		ProviderID: g.Sub,
	}
	if id.Name == "" {
		id.Name = g.Email
	}
	if g.Picture != "" {
		pic := g.Picture
		id.ProfilePicture = &pic
	}
	return id
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The server redirects the browser to Google with ClientID, scopes, and a state value.
//  2. The user consents on Google.
//  3. Google redirects back to CallbackURL with a short-lived code.
//  4. The server exchanges the code for an access token (server-to-server, uses ClientSecret).
//  5. The server calls the userinfo endpoint with that token.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider with the given credentials.
//
// Scopes requested: "openid", "email", "profile".
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: GoogleUserInfoURL,
	}
}

// WithEndpoints points the provider at different token/auth/userinfo URLs.
// Used by tests to talk to an httptest server.
func (p *GoogleProvider) WithEndpoints(endpoint oauth2.Endpoint, userInfoURL string) *GoogleProvider {
	p.config.Endpoint = endpoint
	p.userInfoURL = userInfoURL
	return p
}

// AuthURL returns the URL to redirect the user to for consent.
// state must be echoed back by Google and checked by the callback handler.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for the
// Google user profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// Client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth: Google userinfo returned status %d: %s", resp.StatusCode, body)
	}

	var gUser GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&gUser); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}

	if gUser.Sub == "" || gUser.Email == "" {
		return nil, errors.New("auth: Google returned an incomplete profile (missing sub or email)")
	}
	if !gUser.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return &gUser, nil
}
