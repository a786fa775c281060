package domain

import "time"

// AuthCode represents an OAuth 2.0 authorization code: a single grant
// in flight between the authorize and token endpoints.
type AuthCode struct {
	Code        string    `bson:"code"         json:"code"`         // Unique authorization code
	ClientID    string    `bson:"client_id"    json:"client_id"`    // Client application ID
	UserID      string    `bson:"user_id"      json:"user_id"`      // User who authorized the request
	RedirectURI string    `bson:"redirect_uri" json:"redirect_uri"` // Client's callback URL, bound at issuance
	Scope       string    `bson:"scope"        json:"scope"`        // Resolved scopes, space separated
	Nonce       string    `bson:"nonce,omitempty" json:"nonce,omitempty"`
	ExpiresAt   time.Time `bson:"expires_at"   json:"expires_at"`
	Used        bool      `bson:"used"         json:"used"` // Whether code has been exchanged
	CreatedAt   time.Time `bson:"created_at"   json:"created_at"`

	// AuthTime is when the end user actually authenticated, carried into
	// the ID token's auth_time claim when set.
	AuthTime *time.Time `bson:"auth_time,omitempty" json:"auth_time,omitempty"`

	CodeChallenge       string `bson:"code_challenge,omitempty"        json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
}

// HasPKCE reports whether the code was bound to a PKCE challenge at issuance.
func (c *AuthCode) HasPKCE() bool {
	return c.CodeChallenge != ""
}
