package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go.pulseplan.io/auth/cache"
	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/internal/security"
)

const testSigningSecret = "test-signing-secret"

type tokenFixture struct {
	svc       *TokenService
	authCodes *AuthCodeService
	tokens    *fakeTokenRepo
	clients   *MockClientRepository
	users     *MockUserRepository
	events    *fakeEventRepo
	client    *domain.Client
	user      *domain.User
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	tokens := newFakeTokenRepo()
	codes := newFakeAuthCodeRepo()
	clients := new(MockClientRepository)
	users := new(MockUserRepository)
	events := newFakeEventRepo()

	tracker := security.NewLockoutTracker(0, 0)
	t.Cleanup(tracker.Close)
	eventSvc := NewSecurityEventService(events, tracker, 0, 0)

	authCodes := NewAuthCodeService(codes, clients, eventSvc, 0)

	tokenCache := cache.NewMemoryTokenStore(time.Hour)
	t.Cleanup(func() { _ = tokenCache.Close() })

	signer := NewTokenSigner()
	signer.AddHMACSigner("test", testSigningSecret)

	svc := NewTokenService(
		tokens, clients, users, authCodes, eventSvc,
		tokenCache, signer, "https://auth.pulseplan.test",
		DefaultTokenConfig(),
	)

	client := &domain.Client{
		ID:            "todo-web",
		Type:          domain.ClientPublic,
		RedirectURIs:  []string{"https://app.example.com/cb"},
		AllowedScopes: []string{"openid", "profile", "email"},
		IsActive:      true,
	}
	user := &domain.User{
		ID:            "user-1",
		Email:         "ada@example.com",
		EmailVerified: true,
		FirstName:     "Ada",
		LastName:      "Lovelace",
	}
	clients.On("GetClient", mock.Anything, client.ID).Return(client, nil)
	users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)

	return &tokenFixture{
		svc:       svc,
		authCodes: authCodes,
		tokens:    tokens,
		clients:   clients,
		users:     users,
		events:    events,
		client:    client,
		user:      user,
	}
}

// issueCode mints an authorization code the way the authorize endpoint
// would, bound to the fixture client and user.
func (f *tokenFixture) issueCode(t *testing.T, scope string) string {
	t.Helper()
	code, err := f.authCodes.Issue(context.Background(), AuthorizeRequest{
		ClientID:     f.client.ID,
		RedirectURI:  "https://app.example.com/cb",
		ResponseType: "code",
		Scope:        scope,
		Nonce:        "n-0S6_WzA2Mj",
	}, f.user.ID, domain.RequestMeta{})
	require.NoError(t, err)
	return code
}

func (f *tokenFixture) exchangeCode(t *testing.T, code string) *TokenResponse {
	t.Helper()
	resp, err := f.svc.Exchange(context.Background(), ExchangeRequest{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/cb",
		ClientID:    f.client.ID,
	})
	require.NoError(t, err)
	return resp
}

func parseJWT(t *testing.T, raw string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(testSigningSecret), nil
	})
	require.NoError(t, err)
	return claims
}

func TestExchangeAuthorizationCode(t *testing.T) {
	f := newTokenFixture(t)

	code := f.issueCode(t, "openid email")
	resp := f.exchangeCode(t, code)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "openid email", resp.Scope)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)

	access := parseJWT(t, resp.AccessToken)
	assert.Equal(t, "https://auth.pulseplan.test", access["iss"])
	assert.Equal(t, "user-1", access["sub"])
	assert.Equal(t, "openid email", access["scope"])

	idToken := parseJWT(t, resp.IDToken)
	assert.Equal(t, "user-1", idToken["sub"])
	assert.Equal(t, "n-0S6_WzA2Mj", idToken["nonce"])
	assert.Equal(t, "ada@example.com", idToken["email"])
	assert.Equal(t, true, idToken["email_verified"])
}

func TestExchangeCodeOnlyOnce(t *testing.T) {
	f := newTokenFixture(t)

	code := f.issueCode(t, "openid")
	f.exchangeCode(t, code)

	_, err := f.svc.Exchange(context.Background(), ExchangeRequest{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/cb",
		ClientID:    f.client.ID,
	})
	requireInvalidGrant(t, err)
}

func TestExchangeNoIDTokenWithoutOpenID(t *testing.T) {
	f := newTokenFixture(t)

	code := f.issueCode(t, "profile")
	resp := f.exchangeCode(t, code)
	assert.Empty(t, resp.IDToken)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestExchangeMissingParameters(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.Exchange(context.Background(), ExchangeRequest{
		GrantType: GrantTypeAuthorizationCode,
		ClientID:  f.client.ID,
	})
	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.InvalidRequest, oauthErr.Code)
}

func TestExchangeUnsupportedGrantType(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.Exchange(context.Background(), ExchangeRequest{GrantType: "client_credentials"})
	var oauthErr *serrors.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, serrors.UnsupportedGrantType, oauthErr.Code)
}

func TestExchangeConfidentialClientSecret(t *testing.T) {
	f := newTokenFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	confidential := &domain.Client{
		ID:            "backend-batch",
		Type:          domain.ClientConfidential,
		SecretHash:    string(hash),
		RedirectURIs:  []string{"https://app.example.com/cb"},
		AllowedScopes: []string{"openid"},
		IsActive:      true,
	}
	f.clients.On("GetClient", mock.Anything, confidential.ID).Return(confidential, nil)

	code, err := f.authCodes.Issue(context.Background(), AuthorizeRequest{
		ClientID:     confidential.ID,
		RedirectURI:  "https://app.example.com/cb",
		ResponseType: "code",
		Scope:        "openid",
	}, f.user.ID, domain.RequestMeta{})
	require.NoError(t, err)

	t.Run("wrong secret rejected", func(t *testing.T) {
		_, err := f.svc.Exchange(context.Background(), ExchangeRequest{
			GrantType:    GrantTypeAuthorizationCode,
			Code:         code,
			RedirectURI:  "https://app.example.com/cb",
			ClientID:     confidential.ID,
			ClientSecret: "wrong",
		})
		var oauthErr *serrors.OAuth2Error
		require.ErrorAs(t, err, &oauthErr)
		assert.Equal(t, serrors.InvalidClient, oauthErr.Code)
	})

	t.Run("correct secret accepted", func(t *testing.T) {
		resp, err := f.svc.Exchange(context.Background(), ExchangeRequest{
			GrantType:    GrantTypeAuthorizationCode,
			Code:         code,
			RedirectURI:  "https://app.example.com/cb",
			ClientID:     confidential.ID,
			ClientSecret: "correct horse",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
	})
}

func TestRefreshTokenRotation(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	first := f.exchangeCode(t, f.issueCode(t, "openid email"))

	second, err := f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, second.AccessToken)
	assert.NotEmpty(t, second.RefreshToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.Scope, second.Scope)

	// The presented refresh token is spent.
	_, err = f.svc.Exchange(ctx, ExchangeRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
	})
	requireInvalidGrant(t, err)

	require.Len(t, f.events.byType(domain.EventTokenRefresh), 1)
}

func TestRefreshTokenUnknown(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.Exchange(context.Background(), ExchangeRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: "never-issued",
	})
	requireInvalidGrant(t, err)
}

func TestRefreshTokenClientBinding(t *testing.T) {
	f := newTokenFixture(t)

	other := &domain.Client{
		ID:            "other-app",
		Type:          domain.ClientPublic,
		RedirectURIs:  []string{"https://other.example.com/cb"},
		AllowedScopes: []string{"openid"},
		IsActive:      true,
	}
	f.clients.On("GetClient", mock.Anything, other.ID).Return(other, nil)

	first := f.exchangeCode(t, f.issueCode(t, "openid"))

	_, err := f.svc.Exchange(context.Background(), ExchangeRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: first.RefreshToken,
		ClientID:     other.ID,
	})
	requireInvalidGrant(t, err)
}

func TestRevokeIdempotent(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	// Unknown tokens revoke "successfully" and leave no trace.
	require.NoError(t, f.svc.Revoke(ctx, "never-issued", "", "", domain.RequestMeta{}))
	assert.Empty(t, f.events.byType(domain.EventTokenRevoked))

	resp := f.exchangeCode(t, f.issueCode(t, "openid"))

	require.NoError(t, f.svc.Revoke(ctx, resp.AccessToken, "access_token", f.client.ID, domain.RequestMeta{}))
	_, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken)
	require.Error(t, err)

	// Revoking again is still a success.
	require.NoError(t, f.svc.Revoke(ctx, resp.AccessToken, "access_token", f.client.ID, domain.RequestMeta{}))
}

func TestRevokeForeignTokenRevealsNothing(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	resp := f.exchangeCode(t, f.issueCode(t, "openid"))

	require.NoError(t, f.svc.Revoke(ctx, resp.AccessToken, "", "some-other-client", domain.RequestMeta{}))

	// The token survives a foreign revocation attempt.
	token, err := f.svc.ValidateAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", token.UserID)
}

func TestUserInfo(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	resp := f.exchangeCode(t, f.issueCode(t, "openid profile email"))

	claims, err := f.svc.UserInfo(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "ada@example.com", claims["email"])
	assert.Equal(t, "Ada Lovelace", claims["name"])

	_, err = f.svc.UserInfo(ctx, "not-a-token")
	require.Error(t, err)
}
