// Package federation talks to external identity providers on behalf of
// the authorization server: it exchanges callback codes for provider
// tokens and normalizes the resulting profiles.
package federation

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

var (
	ErrProviderNotFound      = errors.New("identity provider not found")
	ErrProviderMisconfigured = errors.New("identity provider misconfigured")
)

// ExternalUserInfo holds standardized user information retrieved from
// an external OAuth2 provider.
type ExternalUserInfo struct {
	ProviderUserID string // Unique ID of the user within the provider (e.g. Google's sub)
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	Username       string
	PictureURL     string
}

// Provider is one external OAuth2 identity provider.
type Provider interface {
	// Name returns the unique identifier for the provider (e.g. "google").
	Name() string

	// AuthCodeURL builds the authorization URL the browser is redirected
	// to, carrying the given CSRF state.
	AuthCodeURL(state, redirectURL string) string

	// Exchange trades the callback code for the provider's token.
	Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error)

	// FetchUserInfo retrieves and normalizes the external profile.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error)
}

// Config is the static registration of this server at one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Registry maps provider names to initialized providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the named provider or ErrProviderNotFound.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

func (p *baseProvider) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       p.scopes,
		Endpoint:     p.endpoint,
	}
}

// baseProvider carries the pieces shared by the concrete providers.
type baseProvider struct {
	name     string
	cfg      Config
	scopes   []string
	endpoint oauth2.Endpoint
}

func (p *baseProvider) Name() string { return p.name }

func (p *baseProvider) AuthCodeURL(state, redirectURL string) string {
	return p.oauthConfig(redirectURL).AuthCodeURL(state)
}

func (p *baseProvider) Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	return p.oauthConfig(redirectURL).Exchange(ctx, code)
}
