package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleoauth2 "golang.org/x/oauth2/google"
)

// googleUserInfoEndpoint is a var so tests can point it at a stub server.
var googleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider implements Provider for Google.
type GoogleProvider struct {
	baseProvider
}

// NewGoogleProvider creates a GoogleProvider. The openid, profile and
// email scopes are always requested on top of any configured extras.
func NewGoogleProvider(cfg Config) (*GoogleProvider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}

	scopes := append([]string{"openid", "profile", "email"}, cfg.Scopes...)
	return &GoogleProvider{
		baseProvider: baseProvider{
			name:     "google",
			cfg:      cfg,
			scopes:   dedupe(scopes),
			endpoint: googleoauth2.Endpoint,
		},
	}, nil
}

// FetchUserInfo retrieves the OIDC userinfo document from Google.
func (g *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	resp, err := client.Get(googleUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info from google: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google userinfo returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw struct {
		Sub           string `json:"sub"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode google user info: %w", err)
	}

	return &ExternalUserInfo{
		ProviderUserID: raw.Sub,
		Email:          raw.Email,
		EmailVerified:  raw.EmailVerified,
		FirstName:      raw.GivenName,
		LastName:       raw.FamilyName,
		Username:       raw.Email, // Google has no distinct username
		PictureURL:     raw.Picture,
	}, nil
}

func dedupe(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := scopes[:0]
	for _, s := range scopes {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var _ Provider = (*GoogleProvider)(nil)
