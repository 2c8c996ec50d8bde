package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Scopes requested at sign-in: read-only mail access plus identity.
var Scopes = []string{gmail.GmailReadonlyScope, "email", "profile"}

// GoogleUser is the subset of the userinfo response we keep.
type GoogleUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleOAuth runs the authorization code flow against Google.
type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
}

type GoogleOption func(*GoogleOAuth)

// WithEndpoint overrides the Google OAuth endpoints.
func WithEndpoint(ep oauth2.Endpoint) GoogleOption {
	return func(g *GoogleOAuth) { g.config.Endpoint = ep }
}

// WithUserInfoURL overrides the userinfo endpoint.
func WithUserInfoURL(u string) GoogleOption {
	return func(g *GoogleOAuth) { g.userInfoURL = u }
}

func NewGoogleOAuth(clientID, clientSecret, redirectURL string, opts ...GoogleOption) *GoogleOAuth {
	g := &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		userInfoURL: defaultUserInfoURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthCodeURL asks for offline access with a forced consent screen so
// Google returns a refresh token for background syncs.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

// UserInfo fetches the signed-in user's email and name.
func (g *GoogleOAuth) UserInfo(ctx context.Context, tok *oauth2.Token) (GoogleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return GoogleUser{}, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := g.config.Client(ctx, tok).Do(req)
	if err != nil {
		return GoogleUser{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return GoogleUser{}, fmt.Errorf("fetch userinfo: status %d: %s", resp.StatusCode, body)
	}

	var u GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return GoogleUser{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if u.Email == "" {
		return GoogleUser{}, fmt.Errorf("userinfo has no email")
	}
	return u, nil
}

// TokenSource returns a source that refreshes access tokens from a stored
// refresh token.
func (g *GoogleOAuth) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}
