package domain

import "time"

// ClientType represents the type of OAuth2 client.
type ClientType string

const (
	// ClientConfidential clients can securely store secrets.
	ClientConfidential ClientType = "confidential"
	// ClientPublic clients cannot securely store secrets (mobile apps, SPAs).
	ClientPublic ClientType = "public"
)

// Client represents a registered OAuth2 client application. Registration
// is managed elsewhere in the backend; this core only reads it.
//
//nolint:tagliatelle
type Client struct {
	ID                string     `bson:"client_id"                  json:"client_id"`
	SecretHash        string     `bson:"client_secret_hash,omitempty" json:"-"` // bcrypt hash
	Type              ClientType `bson:"client_type"                json:"type"`
	Name              string     `bson:"client_name"                json:"name"`
	RedirectURIs      []string   `bson:"redirect_uris"              json:"redirect_uris"`
	AllowedScopes     []string   `bson:"allowed_scopes"             json:"allowed_scopes"`
	AllowedGrantTypes []string   `bson:"allowed_grant_types"        json:"allowed_grant_types"`
	TokenEndpointAuth string     `bson:"token_endpoint_auth_method" json:"token_endpoint_auth"`
	RequirePKCE       bool       `bson:"require_pkce"               json:"require_pkce"`
	IsActive          bool       `bson:"is_active"                  json:"is_active"`
	CreatedAt         time.Time  `bson:"created_at"                 json:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"                 json:"updated_at"`
}

// HasRedirectURI reports whether uri exactly matches one of the client's
// registered redirect URIs. No prefix or wildcard matching.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HasScope reports whether the named scope is registered for the client.
func (c *Client) HasScope(scope string) bool {
	for _, allowed := range c.AllowedScopes {
		if allowed == scope {
			return true
		}
	}
	return false
}

// IsConfidential reports whether the client is expected to authenticate
// with a secret at the token endpoint.
func (c *Client) IsConfidential() bool {
	return c.Type == ClientConfidential
}
