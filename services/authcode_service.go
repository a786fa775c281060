package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/internal/metrics"
	"go.pulseplan.io/auth/internal/pkce"
)

const (
	// DefaultAuthCodeTTL is how long an issued authorization code stays
	// redeemable.
	DefaultAuthCodeTTL = 10 * time.Minute

	authCodeBytes = 32
)

// AuthorizeRequest carries the parameters of an authorization request
// after the transport layer has parsed them.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	// AuthTime is when the end user authenticated, if the session layer
	// knows it.
	AuthTime *time.Time
}

// AuthCodeService validates authorization requests against the client
// registration, mints bound single-use codes, and later atomically
// validates and consumes them.
type AuthCodeService struct {
	codes   domain.AuthCodeRepository
	clients domain.ClientRepository
	events  *SecurityEventService
	ttl     time.Duration
	now     func() time.Time
}

// NewAuthCodeService creates an AuthCodeService. A non-positive ttl
// falls back to DefaultAuthCodeTTL.
func NewAuthCodeService(
	codes domain.AuthCodeRepository,
	clients domain.ClientRepository,
	events *SecurityEventService,
	ttl time.Duration,
) *AuthCodeService {
	if ttl <= 0 {
		ttl = DefaultAuthCodeTTL
	}
	return &AuthCodeService{
		codes:   codes,
		clients: clients,
		events:  events,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue validates the authorization request and mints a bound,
// single-use, time-limited code for the authenticated user. Validation
// fails fast with a distinct error per failure so the transport layer
// can translate each into the right OAuth2 response.
func (s *AuthCodeService) Issue(ctx context.Context, req AuthorizeRequest, userID string, meta domain.RequestMeta) (string, error) {
	cli, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil || cli == nil {
		return "", fmt.Errorf("%w: %s", serrors.ErrUnknownClient, req.ClientID)
	}

	if req.RedirectURI == "" || !cli.HasRedirectURI(req.RedirectURI) {
		return "", serrors.ErrInvalidRedirectURI
	}

	if req.ResponseType != "code" {
		return "", serrors.ErrUnsupportedResponseType
	}

	scopes := resolveScopes(req.Scope)
	for _, scope := range scopes {
		if !cli.HasScope(scope) {
			return "", &serrors.ScopeError{Scope: scope}
		}
	}

	if req.CodeChallenge != "" || req.CodeChallengeMethod != "" {
		if req.CodeChallenge == "" {
			return "", serrors.ErrMissingPKCEChallenge
		}
		if !pkce.Supported(req.CodeChallengeMethod) {
			return "", serrors.ErrUnsupportedPKCETransform
		}
	}

	code, err := generateAuthCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := s.now().UTC()
	authCode := &domain.AuthCode{
		Code:                code,
		ClientID:            cli.ID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               strings.Join(scopes, " "),
		Nonce:               req.Nonce,
		ExpiresAt:           now.Add(s.ttl),
		CreatedAt:           now,
		AuthTime:            req.AuthTime,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}

	if err := s.codes.SaveAuthCode(ctx, authCode); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.events.Record(ctx, RecordOptions{
		EventType: domain.EventAuthCodeIssued,
		UserID:    userID,
		ClientID:  cli.ID,
		Success:   true,
		Metadata:  map[string]any{"scope": authCode.Scope},
		Meta:      meta,
	})
	metrics.AuthCodesIssuedTotal.Inc()

	return code, nil
}

// ValidateAndConsume redeems an authorization code. It returns the code
// record only when every binding holds: the code exists, is unused and
// unexpired, the presenting client and redirect URI match the ones the
// code was bound to, and a PKCE-bound code is accompanied by a correct
// verifier. The used flag is flipped by a conditional update in the
// store, so two concurrent redemptions of the same code yield exactly
// one success.
func (s *AuthCodeService) ValidateAndConsume(ctx context.Context, code, clientID, redirectURI, codeVerifier string, meta domain.RequestMeta) (*domain.AuthCode, error) {
	authCode, err := s.codes.GetAuthCode(ctx, code)
	if err != nil || authCode == nil {
		// Unknown codes are not attributable to a user; no event.
		return nil, serrors.NewInvalidGrant("invalid authorization code")
	}

	if authCode.Used || s.now().After(authCode.ExpiresAt) {
		s.events.Record(ctx, RecordOptions{
			EventType:        domain.EventAuthCodeExpired,
			UserID:           authCode.UserID,
			ClientID:         authCode.ClientID,
			Success:          false,
			ErrorCode:        serrors.InvalidGrant,
			ErrorDescription: "authorization code expired or already used",
			Meta:             meta,
		})
		return nil, serrors.NewInvalidGrant("authorization code expired or already used")
	}

	// Both bindings must match exactly; no partial credit.
	if authCode.ClientID != clientID || authCode.RedirectURI != redirectURI {
		return nil, serrors.NewInvalidGrant("client or redirect URI mismatch")
	}

	if authCode.HasPKCE() {
		if codeVerifier == "" {
			return nil, serrors.NewInvalidGrant("code_verifier is required")
		}
		if !pkce.Verify(codeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			return nil, serrors.NewInvalidGrant("invalid code_verifier")
		}
	}

	consumed, err := s.codes.ConsumeAuthCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	if !consumed {
		// Lost the race against a concurrent redemption.
		log.Warn().Str("client_id", clientID).Msg("authorization code consumed concurrently")
		return nil, serrors.NewInvalidGrant("authorization code already used")
	}
	authCode.Used = true

	s.events.Record(ctx, RecordOptions{
		EventType: domain.EventAuthCodeUsed,
		UserID:    authCode.UserID,
		ClientID:  authCode.ClientID,
		Success:   true,
		Meta:      meta,
	})
	metrics.AuthCodesConsumedTotal.Inc()

	return authCode, nil
}

// resolveScopes splits a requested scope string, defaulting to openid
// when the request omits it or it is blank.
func resolveScopes(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return []string{"openid"}
	}
	return fields
}

func generateAuthCode() (string, error) {
	b := make([]byte, authCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
