package domain

import (
	"context"
	"time"
)

// AuthCodeRepository persists authorization codes. The store must keep
// the code value unique and support the conditional consume below.
type AuthCodeRepository interface {
	SaveAuthCode(ctx context.Context, code *AuthCode) error
	GetAuthCode(ctx context.Context, codeValue string) (*AuthCode, error)
	// ConsumeAuthCode flips used from false to true as a single
	// conditional update and reports whether this call won. Two
	// concurrent calls for the same code see exactly one true.
	ConsumeAuthCode(ctx context.Context, codeValue string) (bool, error)
	DeleteExpiredAuthCodes(ctx context.Context) error
}

// TokenRepository persists issued tokens and their revocation state.
type TokenRepository interface {
	StoreToken(ctx context.Context, token *Token) error
	GetAccessToken(ctx context.Context, tokenValue string) (*Token, error)
	GetRefreshToken(ctx context.Context, tokenValue string) (*Token, error)
	RevokeToken(ctx context.Context, tokenValue string) error
	RevokeTokensByUser(ctx context.Context, userID string) error
	GetTokenInfo(ctx context.Context, tokenValue string) (*TokenInfo, error)
}

// SecurityEventRepository is the durable, append-only audit log.
type SecurityEventRepository interface {
	InsertEvent(ctx context.Context, event *SecurityEvent) error
	// CountEvents counts events for a user of the given type and success
	// flag created at or after the given instant.
	CountEvents(ctx context.Context, userID string, eventType SecurityEventType, success bool, createdAfter time.Time) (int64, error)
	ListEventsByUser(ctx context.Context, userID string, limit int64) ([]SecurityEvent, error)
}

// ClientRepository resolves registered OAuth clients. Read-only here;
// registration lives elsewhere in the backend.
type ClientRepository interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// UserRepository resolves and creates local users.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
}

// FederatedIdentityRepository links local users to external providers.
type FederatedIdentityRepository interface {
	GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*FederatedIdentity, error)
	SaveIdentity(ctx context.Context, identity *FederatedIdentity) error
}
