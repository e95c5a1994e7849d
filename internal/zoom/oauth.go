package zoom

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultTokenURL = "https://zoom.us/oauth/token"

// OAuthConfig holds the app credentials granted by the provider marketplace.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// AuthURL and TokenURL default to the provider endpoints; tests override.
	AuthURL  string
	TokenURL string
}

func (c OAuthConfig) oauth2Config() *oauth2.Config {
	authURL := c.AuthURL
	if authURL == "" {
		authURL = "https://zoom.us/oauth/authorize"
	}
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// AuthCodeURL returns the provider consent page URL for the given CSRF state.
func (c OAuthConfig) AuthCodeURL(state string) string {
	return c.oauth2Config().AuthCodeURL(state)
}

// Exchange trades an authorization code for the initial credential pair.
func (c OAuthConfig) Exchange(ctx context.Context, code string) (Credential, error) {
	tok, err := c.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return Credential{}, &AuthError{Op: "exchange", Err: err}
	}
	return Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// AuthError marks a credential grant rejected by the provider's auth server.
type AuthError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("zoom: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("zoom: %s rejected with status %d: %s", e.Op, e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RefreshGrant redeems a refresh token for a fresh credential pair. The
// request authenticates with HTTP Basic over the app client id and secret
// and carries a form-encoded refresh_token grant. When the provider omits a
// rotated refresh token the previous one is carried forward, so callers can
// always persist the returned credential as-is.
//
// Done by hand rather than through an oauth2.TokenSource because the token
// store, not the process, is the source of truth for the current refresh
// token, and rotation must be observable to persist it.
func (c OAuthConfig) RefreshGrant(ctx context.Context, hc *http.Client, refreshToken string) (Credential, error) {
	if c.ClientID == "" || c.ClientSecret == "" {
		return Credential{}, fmt.Errorf("zoom: refresh grant: client credentials not configured")
	}
	if refreshToken == "" {
		return Credential{}, fmt.Errorf("zoom: refresh grant: empty refresh token")
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Op: "refresh", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return Credential{}, &AuthError{Op: "refresh", Status: resp.StatusCode, Body: string(data)}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Credential{}, &AuthError{Op: "refresh", Err: err}
	}
	if payload.AccessToken == "" {
		return Credential{}, &AuthError{Op: "refresh", Err: fmt.Errorf("response missing access_token")}
	}

	cred := Credential{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}
