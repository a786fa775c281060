package domain

import "time"

// User is the slice of the backend's user record this core needs:
// identity resolution for token subjects and external-login matching.
type User struct {
	ID            string    `bson:"_id,omitempty"  json:"id"`
	Email         string    `bson:"email"          json:"email"`
	EmailVerified bool      `bson:"email_verified" json:"email_verified"`
	FirstName     string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName      string    `bson:"last_name,omitempty"  json:"last_name,omitempty"`
	PictureURL    string    `bson:"picture_url,omitempty" json:"picture_url,omitempty"`
	CreatedAt     time.Time `bson:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"     json:"updated_at"`
}

// FederatedIdentity links a local user account to an external identity
// provider (the social-account record).
type FederatedIdentity struct {
	ID             string    `bson:"_id,omitempty"    json:"id,omitempty"`
	UserID         string    `bson:"user_id"          json:"user_id"`
	Provider       string    `bson:"provider"         json:"provider"`         // e.g. "google", "github"
	ProviderUserID string    `bson:"provider_user_id" json:"provider_user_id"` // User's unique ID at the provider
	ProviderEmail  string    `bson:"provider_email,omitempty" json:"provider_email,omitempty"`
	CreatedAt      time.Time `bson:"created_at"       json:"created_at"`
}
