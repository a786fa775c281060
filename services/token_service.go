package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"go.pulseplan.io/auth/cache"
	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/internal/metrics"
)

// Grant types supported by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenConfig holds the fixed token lifetimes.
type TokenConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IDTokenTTL      time.Duration
}

// DefaultTokenConfig returns the lifetimes used when the deployment
// does not override them.
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		IDTokenTTL:      time.Hour,
	}
}

// TokenResponse is the token endpoint's success body.
//
//nolint:tagliatelle
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ExchangeRequest carries one parsed token-endpoint request. Client
// credentials may have arrived via Basic auth or form parameters; the
// transport layer normalizes both into these fields.
type ExchangeRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	ClientID     string
	ClientSecret string
	Meta         domain.RequestMeta
}

// TokenService turns consumed authorization codes and valid refresh
// tokens into signed tokens, and revokes tokens on request.
type TokenService struct {
	tokens     domain.TokenRepository
	clients    domain.ClientRepository
	users      domain.UserRepository
	authCodes  *AuthCodeService
	events     *SecurityEventService
	tokenCache cache.TokenStore
	signer     *TokenSigner
	issuer     string
	cfg        TokenConfig
	now        func() time.Time
}

// NewTokenService creates a TokenService.
func NewTokenService(
	tokens domain.TokenRepository,
	clients domain.ClientRepository,
	users domain.UserRepository,
	authCodes *AuthCodeService,
	events *SecurityEventService,
	tokenCache cache.TokenStore,
	signer *TokenSigner,
	issuer string,
	cfg TokenConfig,
) *TokenService {
	if cfg.AccessTokenTTL <= 0 {
		cfg = DefaultTokenConfig()
	}
	return &TokenService{
		tokens:     tokens,
		clients:    clients,
		users:      users,
		authCodes:  authCodes,
		events:     events,
		tokenCache: tokenCache,
		signer:     signer,
		issuer:     issuer,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Exchange handles a token-endpoint request for any supported grant.
func (s *TokenService) Exchange(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.exchangeAuthorizationCode(ctx, req)
	case GrantTypeRefreshToken:
		return s.refreshToken(ctx, req)
	default:
		return nil, serrors.NewUnsupportedGrantType()
	}
}

func (s *TokenService) exchangeAuthorizationCode(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" {
		return nil, serrors.NewInvalidRequest("code, redirect_uri and client_id are required")
	}

	cli, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, serrors.NewInvalidClient("invalid client credentials")
	}

	authCode, err := s.authCodes.ValidateAndConsume(ctx, req.Code, cli.ID, req.RedirectURI, req.CodeVerifier, req.Meta)
	if err != nil {
		return nil, err
	}

	return s.mintTokenPair(ctx, cli.ID, authCode.UserID, authCode.Scope, authCode.Nonce, authCode.AuthTime)
}

func (s *TokenService) refreshToken(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, serrors.NewInvalidRequest("refresh_token is required")
	}
	if req.ClientID != "" {
		if _, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
			return nil, serrors.NewInvalidClient("invalid client credentials")
		}
	}

	stored, err := s.tokens.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil || stored == nil {
		return nil, serrors.NewInvalidGrant("invalid refresh token")
	}
	if stored.IsRevoked || s.now().After(stored.ExpiresAt) {
		return nil, serrors.NewInvalidGrant("refresh token expired or revoked")
	}
	if req.ClientID != "" && stored.ClientID != req.ClientID {
		return nil, serrors.NewInvalidGrant("refresh token was issued to a different client")
	}

	// Rotation: the presented refresh token is spent whatever happens next.
	if err := s.tokens.RevokeToken(ctx, req.RefreshToken); err != nil {
		return nil, serrors.NewServerError("failed to rotate refresh token")
	}

	resp, err := s.mintTokenPair(ctx, stored.ClientID, stored.UserID, stored.Scope, "", nil)
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, RecordOptions{
		EventType: domain.EventTokenRefresh,
		UserID:    stored.UserID,
		ClientID:  stored.ClientID,
		Success:   true,
		Meta:      req.Meta,
	})
	metrics.TokensRefreshedTotal.Inc()

	return resp, nil
}

// Revoke implements RFC 7009 semantics: it is idempotent and never
// reveals whether the token existed. Only a storage fault surfaces as
// an error.
func (s *TokenService) Revoke(ctx context.Context, tokenValue, tokenTypeHint, clientID string, meta domain.RequestMeta) error {
	info, err := s.tokens.GetTokenInfo(ctx, tokenValue)
	if err != nil || info == nil {
		// Unknown token: success by definition.
		return nil
	}
	if clientID != "" && info.ClientID != clientID {
		// Foreign token: pretend it worked, reveal nothing.
		return nil
	}

	if err := s.tokens.RevokeToken(ctx, tokenValue); err != nil {
		log.Error().Err(err).Str("token_type_hint", tokenTypeHint).Msg("failed to revoke token")
		return serrors.NewServerError("failed to revoke token")
	}
	if err := s.tokenCache.Delete(ctx, tokenValue); err != nil {
		log.Warn().Err(err).Msg("failed to drop revoked token from cache")
	}

	s.events.Record(ctx, RecordOptions{
		EventType: domain.EventTokenRevoked,
		UserID:    info.UserID,
		ClientID:  info.ClientID,
		Success:   true,
		Metadata:  map[string]any{"token_type": info.TokenType},
		Meta:      meta,
	})
	metrics.TokensRevokedTotal.Inc()

	return nil
}

// ValidateAccessToken checks an access token against the cache first
// and falls back to the durable store, caching on the way back.
func (s *TokenService) ValidateAccessToken(ctx context.Context, tokenValue string) (*domain.Token, error) {
	if entry, err := s.tokenCache.Get(ctx, tokenValue); err == nil {
		if entry.IsRevoked || s.now().After(entry.ExpiresAt) {
			_ = s.tokenCache.Delete(ctx, tokenValue)
			return nil, serrors.ErrTokenExpiredOrRevoked
		}
		return &domain.Token{
			ID:         entry.ID,
			TokenType:  domain.TokenTypeAccess,
			TokenValue: tokenValue,
			ClientID:   entry.ClientID,
			UserID:     entry.UserID,
			Scope:      entry.Scope,
			ExpiresAt:  entry.ExpiresAt,
		}, nil
	}

	token, err := s.tokens.GetAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("token not found or invalid: %w", err)
	}
	if token.IsRevoked || s.now().After(token.ExpiresAt) {
		return nil, serrors.ErrTokenExpiredOrRevoked
	}

	if cacheErr := s.tokenCache.Set(ctx, toCacheEntry(token)); cacheErr != nil {
		log.Warn().Err(cacheErr).Msg("failed to cache access token")
	}
	return token, nil
}

// UserInfo returns the scoped OIDC claims for the bearer of a valid
// access token.
func (s *TokenService) UserInfo(ctx context.Context, tokenValue string) (map[string]any, error) {
	token, err := s.ValidateAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if token.UserID == "" {
		return nil, serrors.NewInvalidGrant("token has no user subject")
	}

	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve user information: %w", err)
	}

	claims := map[string]any{"sub": user.ID}
	addScopedClaims(claims, user, strings.Fields(token.Scope))
	return claims, nil
}

// MintForUser issues a token pair outside the authorization-code grant,
// used by the external-identity exchange as a direct trusted issuance.
func (s *TokenService) MintForUser(ctx context.Context, clientID, userID, scope string) (*TokenResponse, error) {
	return s.mintTokenPair(ctx, clientID, userID, scope, "", nil)
}

// authenticateClient resolves the client and, for confidential clients,
// verifies the presented secret against its stored hash. Public clients
// carry no secret and rely on PKCE.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (*domain.Client, error) {
	cli, err := s.clients.GetClient(ctx, clientID)
	if err != nil || cli == nil {
		return nil, fmt.Errorf("%w: %s", serrors.ErrUnknownClient, clientID)
	}

	if cli.IsConfidential() {
		if err := bcrypt.CompareHashAndPassword([]byte(cli.SecretHash), []byte(clientSecret)); err != nil {
			return nil, serrors.ErrInvalidClientCredentials
		}
	}

	return cli, nil
}

func (s *TokenService) mintTokenPair(ctx context.Context, clientID, userID, scope, nonce string, authTime *time.Time) (*TokenResponse, error) {
	now := s.now()
	scopes := strings.Fields(scope)

	accessID := uuid.NewString()
	accessClaims := jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   userID,
		"aud":   jwt.ClaimStrings{clientID},
		"exp":   jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)).Unix(),
		"iat":   jwt.NewNumericDate(now).Unix(),
		"nbf":   jwt.NewNumericDate(now).Unix(),
		"jti":   accessID,
		"scope": scope,
	}
	signedAccess, err := s.signer.Sign(accessClaims, "")
	if err != nil {
		return nil, serrors.NewServerError("failed to sign access token")
	}

	var idToken string
	if containsScope(scopes, "openid") {
		idToken, err = s.buildIDToken(ctx, clientID, userID, scopes, nonce, authTime, now)
		if err != nil {
			return nil, serrors.NewServerError("failed to sign id token")
		}
	}

	refreshValue, err := generateOpaqueToken()
	if err != nil {
		return nil, serrors.NewServerError("failed to generate refresh token")
	}

	accessToken := &domain.Token{
		ID:         accessID,
		TokenType:  domain.TokenTypeAccess,
		TokenValue: signedAccess,
		ClientID:   clientID,
		UserID:     userID,
		Scope:      scope,
		ExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	refreshToken := &domain.Token{
		ID:         uuid.NewString(),
		TokenType:  domain.TokenTypeRefresh,
		TokenValue: refreshValue,
		ClientID:   clientID,
		UserID:     userID,
		Scope:      scope,
		ExpiresAt:  now.Add(s.cfg.RefreshTokenTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}

	if err := s.tokens.StoreToken(ctx, accessToken); err != nil {
		return nil, serrors.NewServerError("failed to store access token")
	}
	if err := s.tokens.StoreToken(ctx, refreshToken); err != nil {
		return nil, serrors.NewServerError("failed to store refresh token")
	}
	metrics.TokensCreatedTotal.Add(2)

	if err := s.tokenCache.Set(ctx, toCacheEntry(accessToken)); err != nil {
		log.Warn().Err(err).Msg("failed to cache access token")
	}

	return &TokenResponse{
		AccessToken:  signedAccess,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		IDToken:      idToken,
		RefreshToken: refreshValue,
		Scope:        scope,
	}, nil
}

func (s *TokenService) buildIDToken(ctx context.Context, clientID, userID string, scopes []string, nonce string, authTime *time.Time, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": userID,
		"aud": jwt.ClaimStrings{clientID},
		"exp": jwt.NewNumericDate(now.Add(s.cfg.IDTokenTTL)).Unix(),
		"iat": jwt.NewNumericDate(now).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if authTime != nil {
		claims["auth_time"] = authTime.Unix()
	}

	if user, err := s.users.GetUserByID(ctx, userID); err == nil && user != nil {
		addScopedClaims(claims, user, scopes)
	} else if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("could not load user for id token claims")
	}

	return s.signer.Sign(claims, "")
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// addScopedClaims copies the user claims each granted scope unlocks.
func addScopedClaims(claims map[string]any, user *domain.User, scopes []string) {
	for _, scope := range scopes {
		switch scope {
		case "email":
			claims["email"] = user.Email
			claims["email_verified"] = user.EmailVerified
		case "profile":
			if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
				claims["name"] = name
			}
			if user.FirstName != "" {
				claims["given_name"] = user.FirstName
			}
			if user.LastName != "" {
				claims["family_name"] = user.LastName
			}
			if user.PictureURL != "" {
				claims["picture"] = user.PictureURL
			}
		}
	}
}

func toCacheEntry(t *domain.Token) *cache.TokenEntry {
	return &cache.TokenEntry{
		ID:         t.ID,
		TokenValue: t.TokenValue,
		UserID:     t.UserID,
		ClientID:   t.ClientID,
		Scope:      t.Scope,
		ExpiresAt:  t.ExpiresAt,
		IsRevoked:  t.IsRevoked,
	}
}

func generateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
