// Package security holds the in-process security primitives of the
// authorization server: single-use state tokens for external-IdP
// redirects and sliding-window lockout counters.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultStateTTL is how long a state token stays redeemable.
	DefaultStateTTL = 10 * time.Minute

	stateTokenBytes = 32
)

type stateEntry struct {
	Provider string
	SourceIP string
	IssuedAt time.Time
}

// StateTokenService issues and validates the opaque state values that
// bind an external-IdP redirect to the browser that initiated it.
// Tokens are single use: Validate consumes the entry whatever the
// outcome of the provider check.
type StateTokenService struct {
	cache *ttlcache.Cache[string, stateEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewStateTokenService creates a state token service with the given TTL.
// A non-positive ttl falls back to DefaultStateTTL.
func NewStateTokenService(ttl time.Duration) *StateTokenService {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, stateEntry](ttl),
		ttlcache.WithDisableTouchOnHit[string, stateEntry](),
	)
	go cache.Start()

	return &StateTokenService{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Generate creates a fresh state token bound to the provider and the
// caller's source address, and stores it under the service TTL.
func (s *StateTokenService) Generate(provider, sourceIP string) (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	s.cache.Set(state, stateEntry{
		Provider: provider,
		SourceIP: sourceIP,
		IssuedAt: s.now(),
	}, s.ttl)

	return state, nil
}

// Validate consumes the state token and reports whether it is valid for
// the given provider. Unknown, expired, or provider-mismatched tokens
// fail. A source address mismatch is logged but allowed: browsers can
// legitimately change apparent address across the redirect round-trip.
func (s *StateTokenService) Validate(state, provider, sourceIP string) bool {
	item := s.cache.Get(state)
	if item == nil {
		return false
	}
	// Single use regardless of what the checks below decide.
	s.cache.Delete(state)

	entry := item.Value()
	if s.now().Sub(entry.IssuedAt) > s.ttl {
		log.Debug().Str("provider", provider).Msg("state token expired")
		return false
	}
	if entry.Provider != provider {
		log.Warn().
			Str("expected_provider", entry.Provider).
			Str("got_provider", provider).
			Msg("state token presented for wrong provider")
		return false
	}
	if entry.SourceIP != sourceIP {
		log.Warn().
			Str("issued_to", entry.SourceIP).
			Str("presented_from", sourceIP).
			Msg("state token presented from a different source address")
	}

	return true
}

// Close stops the cache's cleanup goroutine.
func (s *StateTokenService) Close() {
	s.cache.Stop()
}
