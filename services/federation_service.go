package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/internal/federation"
	"go.pulseplan.io/auth/internal/security"
)

// FederationService normalizes a third-party OAuth callback into a
// local user plus local tokens. It owns no provider logic itself: the
// registry's providers do the wire work, the state token service does
// the CSRF check, and the token service mints the result.
type FederationService struct {
	providers  *federation.Registry
	states     *security.StateTokenService
	users      domain.UserRepository
	identities domain.FederatedIdentityRepository
	tokens     *TokenService
	events     *SecurityEventService

	// callbackBaseURL is this server's federation callback prefix,
	// e.g. "https://auth.pulseplan.io/auth/federation".
	callbackBaseURL string
	// defaultClientID is the first-party client external logins are
	// attributed to.
	defaultClientID string
	// defaultScope is granted on a successful external login.
	defaultScope string
}

// NewFederationService creates a FederationService.
func NewFederationService(
	providers *federation.Registry,
	states *security.StateTokenService,
	users domain.UserRepository,
	identities domain.FederatedIdentityRepository,
	tokens *TokenService,
	events *SecurityEventService,
	callbackBaseURL, defaultClientID string,
) *FederationService {
	return &FederationService{
		providers:       providers,
		states:          states,
		users:           users,
		identities:      identities,
		tokens:          tokens,
		events:          events,
		callbackBaseURL: callbackBaseURL,
		defaultClientID: defaultClientID,
		defaultScope:    "openid profile email",
	}
}

func (s *FederationService) callbackURL(provider string) string {
	return fmt.Sprintf("%s/%s/callback", s.callbackBaseURL, provider)
}

// AuthURL starts an external login: it issues a state token bound to
// the provider and the caller's address and returns the provider URL to
// redirect the browser to.
func (s *FederationService) AuthURL(ctx context.Context, providerName string, meta domain.RequestMeta) (string, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return "", err
	}

	state, err := s.states.Generate(providerName, meta.IPAddress)
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	return provider.AuthCodeURL(state, s.callbackURL(providerName)), nil
}

// HandleCallback completes an external login. The state is consumed
// whatever the outcome; any step failing yields ErrExternalAuthFailed
// with the upstream description attached.
func (s *FederationService) HandleCallback(ctx context.Context, providerName, code, state string, meta domain.RequestMeta) (*TokenResponse, error) {
	if s.events.IsIPAddressLocked(meta.IPAddress) {
		return nil, serrors.NewAccessDenied("too many failed attempts from this address")
	}

	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, s.fail(ctx, providerName, "", meta, "unknown provider")
	}

	if !s.states.Validate(state, providerName, meta.IPAddress) {
		return nil, s.fail(ctx, providerName, "", meta, "invalid or expired state")
	}

	token, err := provider.Exchange(ctx, s.callbackURL(providerName), code)
	if err != nil {
		return nil, s.fail(ctx, providerName, "", meta, fmt.Sprintf("code exchange failed: %v", err))
	}

	info, err := provider.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, s.fail(ctx, providerName, "", meta, fmt.Sprintf("profile fetch failed: %v", err))
	}

	user, err := s.resolveUser(ctx, providerName, info)
	if err != nil {
		return nil, s.fail(ctx, providerName, "", meta, fmt.Sprintf("user resolution failed: %v", err))
	}

	if s.events.IsAccountLocked(ctx, user.ID) {
		return nil, s.fail(ctx, providerName, user.ID, meta, "account is locked")
	}

	resp, err := s.tokens.MintForUser(ctx, s.defaultClientID, user.ID, s.defaultScope)
	if err != nil {
		return nil, s.fail(ctx, providerName, user.ID, meta, "token issuance failed")
	}

	s.events.ClearFailedAttempts(meta.IPAddress)
	s.events.Record(ctx, RecordOptions{
		EventType: domain.EventLoginSuccess,
		UserID:    user.ID,
		ClientID:  s.defaultClientID,
		Success:   true,
		Metadata:  map[string]any{"provider": providerName},
		Meta:      meta,
	})

	return resp, nil
}

// resolveUser matches the external profile to a local account: an
// existing linked identity wins, then a verified email match, then a
// new user is created. The identity link is persisted in the latter two
// cases.
func (s *FederationService) resolveUser(ctx context.Context, providerName string, info *federation.ExternalUserInfo) (*domain.User, error) {
	if identity, err := s.identities.GetByProviderUserID(ctx, providerName, info.ProviderUserID); err == nil && identity != nil {
		return s.users.GetUserByID(ctx, identity.UserID)
	}

	var user *domain.User
	if info.Email != "" && info.EmailVerified {
		if existing, err := s.users.GetUserByEmail(ctx, info.Email); err == nil && existing != nil {
			user = existing
		}
	}

	if user == nil {
		now := time.Now().UTC()
		user = &domain.User{
			ID:            uuid.NewString(),
			Email:         info.Email,
			EmailVerified: info.EmailVerified,
			FirstName:     info.FirstName,
			LastName:      info.LastName,
			PictureURL:    info.PictureURL,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}

	identity := &domain.FederatedIdentity{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Provider:       providerName,
		ProviderUserID: info.ProviderUserID,
		ProviderEmail:  info.Email,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.identities.SaveIdentity(ctx, identity); err != nil {
		// The login still succeeds; linking can be retried next time.
		log.Warn().Err(err).Str("provider", providerName).Msg("failed to persist federated identity link")
	}

	return user, nil
}

func (s *FederationService) fail(ctx context.Context, providerName, userID string, meta domain.RequestMeta, description string) error {
	s.events.TrackFailedLoginAttempt(meta.IPAddress)
	s.events.Record(ctx, RecordOptions{
		EventType:        domain.EventExternalLoginFailure,
		UserID:           userID,
		Success:          false,
		ErrorCode:        serrors.AccessDenied,
		ErrorDescription: description,
		Metadata:         map[string]any{"provider": providerName},
		Meta:             meta,
	})
	return fmt.Errorf("%w: %s", serrors.ErrExternalAuthFailed, description)
}
