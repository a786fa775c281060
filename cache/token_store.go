// Package cache provides a fast validation path for access tokens so
// the hot userinfo/resource checks avoid a round trip to the durable
// store. Entries are keyed by a hash of the token value.
package cache

import (
	"context"
	"time"
)

// TokenEntry is the cached projection of an issued access token.
type TokenEntry struct {
	ID         string
	TokenValue string
	UserID     string
	ClientID   string
	Scope      string
	ExpiresAt  time.Time
	IsRevoked  bool
	LastUsedAt time.Time
}

// TokenStore caches access tokens for validation. Implementations must
// be safe for concurrent use.
type TokenStore interface {
	Set(ctx context.Context, token *TokenEntry) error
	Get(ctx context.Context, tokenValue string) (*TokenEntry, error)
	Delete(ctx context.Context, tokenValue string) error
	Clear(ctx context.Context) error
	Close() error
}
