package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// RevokeURL is Google's token revocation endpoint.
const RevokeURL = "https://oauth2.googleapis.com/revoke"

// OAuthConfig builds the OAuth2 client configuration for tenant grants.
// A zero endpoint selects Google's production endpoints.
func OAuthConfig(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint) *oauth2.Config {
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = googleoauth.Endpoint
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirectURL,
		Scopes:       slices.Clone(GmailScopes),
	}
}

// Revoker revokes refresh or access tokens at the provider.
type Revoker struct {
	URL        string
	HTTPClient *http.Client
}

// Revoke asks the provider to invalidate token. Revoking a token the provider
// no longer knows is reported as success.
func (r *Revoker) Revoke(ctx context.Context, token string) error {
	endpoint := r.URL
	if endpoint == "" {
		endpoint = RevokeURL
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		// invalid_token: already revoked or expired
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token revocation failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
