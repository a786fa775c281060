package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pulseplan.io/auth/domain"
	serrors "go.pulseplan.io/auth/errors"
	"go.pulseplan.io/auth/internal/security"
)

type authCodeFixture struct {
	svc     *AuthCodeService
	codes   *fakeAuthCodeRepo
	clients *MockClientRepository
	events  *fakeEventRepo
	client  *domain.Client
	clock   *time.Time
}

func newAuthCodeFixture(t *testing.T) *authCodeFixture {
	t.Helper()

	codes := newFakeAuthCodeRepo()
	clients := new(MockClientRepository)
	events := newFakeEventRepo()

	tracker := security.NewLockoutTracker(0, 0)
	t.Cleanup(tracker.Close)
	eventSvc := NewSecurityEventService(events, tracker, 0, 0)

	svc := NewAuthCodeService(codes, clients, eventSvc, 0)
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	client := &domain.Client{
		ID:            "todo-web",
		Type:          domain.ClientPublic,
		RedirectURIs:  []string{"https://app.example.com/cb", "https://app.example.com/alt"},
		AllowedScopes: []string{"openid", "profile", "email", "tasks:read"},
		RequirePKCE:   false,
		IsActive:      true,
	}
	clients.On("GetClient", mock.Anything, client.ID).Return(client, nil)
	clients.On("GetClient", mock.Anything, "missing").Return(nil, serrors.ErrUnknownClient)

	return &authCodeFixture{
		svc:     svc,
		codes:   codes,
		clients: clients,
		events:  events,
		client:  client,
		clock:   &clock,
	}
}

func (f *authCodeFixture) request() AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:     f.client.ID,
		RedirectURI:  "https://app.example.com/cb",
		ResponseType: "code",
		Scope:        "openid profile",
		State:        "xyz",
	}
}

func TestIssueAuthCode(t *testing.T) {
	f := newAuthCodeFixture(t)

	code, err := f.svc.Issue(context.Background(), f.request(), "user-1", domain.RequestMeta{IPAddress: "203.0.113.7"})
	require.NoError(t, err)
	require.NotEmpty(t, code)

	stored, err := f.codes.GetAuthCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, "todo-web", stored.ClientID)
	assert.Equal(t, "openid profile", stored.Scope)
	assert.False(t, stored.Used)
	assert.Equal(t, f.clock.Add(DefaultAuthCodeTTL), stored.ExpiresAt)

	issued := f.events.byType(domain.EventAuthCodeIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, "203.0.113.7", issued[0].IPAddress)
}

func TestIssueDefaultsScopeToOpenID(t *testing.T) {
	f := newAuthCodeFixture(t)

	req := f.request()
	req.Scope = ""
	code, err := f.svc.Issue(context.Background(), req, "user-1", domain.RequestMeta{})
	require.NoError(t, err)

	stored, err := f.codes.GetAuthCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, "openid", stored.Scope)
}

func TestIssueValidationFailures(t *testing.T) {
	f := newAuthCodeFixture(t)
	ctx := context.Background()

	t.Run("unknown client", func(t *testing.T) {
		req := f.request()
		req.ClientID = "missing"
		_, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		assert.ErrorIs(t, err, serrors.ErrUnknownClient)
	})

	t.Run("unregistered redirect uri", func(t *testing.T) {
		req := f.request()
		req.RedirectURI = "https://evil.example.com/cb"
		_, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		assert.ErrorIs(t, err, serrors.ErrInvalidRedirectURI)
	})

	t.Run("unsupported response type", func(t *testing.T) {
		req := f.request()
		req.ResponseType = "token"
		_, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		assert.ErrorIs(t, err, serrors.ErrUnsupportedResponseType)
	})

	t.Run("scope outside registration", func(t *testing.T) {
		req := f.request()
		req.Scope = "openid calendar:write"
		_, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		var scopeErr *serrors.ScopeError
		require.ErrorAs(t, err, &scopeErr)
		assert.Equal(t, "calendar:write", scopeErr.Scope)
	})

	t.Run("method without challenge", func(t *testing.T) {
		req := f.request()
		req.CodeChallengeMethod = "S256"
		_, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		assert.ErrorIs(t, err, serrors.ErrMissingPKCEChallenge)
	})

	t.Run("unsupported transform", func(t *testing.T) {
		req := f.request()
		req.CodeChallenge = "abc"
		req.CodeChallengeMethod = "S512"
		_, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		assert.ErrorIs(t, err, serrors.ErrUnsupportedPKCETransform)
	})
}

func TestValidateAndConsume(t *testing.T) {
	f := newAuthCodeFixture(t)
	ctx := context.Background()

	code, err := f.svc.Issue(ctx, f.request(), "user-1", domain.RequestMeta{})
	require.NoError(t, err)

	authCode, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "user-1", authCode.UserID)
	assert.True(t, authCode.Used)

	require.Len(t, f.events.byType(domain.EventAuthCodeUsed), 1)

	// A second redemption of the same code must fail.
	_, err = f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
	requireInvalidGrant(t, err)
}

func TestValidateAndConsumeUnknownCode(t *testing.T) {
	f := newAuthCodeFixture(t)

	_, err := f.svc.ValidateAndConsume(context.Background(), "never-issued", "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
	requireInvalidGrant(t, err)
	assert.Empty(t, f.events.byType(domain.EventAuthCodeExpired))
}

func TestValidateAndConsumeExpired(t *testing.T) {
	f := newAuthCodeFixture(t)
	ctx := context.Background()

	code, err := f.svc.Issue(ctx, f.request(), "user-1", domain.RequestMeta{})
	require.NoError(t, err)

	*f.clock = f.clock.Add(DefaultAuthCodeTTL + time.Second)

	_, err = f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
	requireInvalidGrant(t, err)
	require.Len(t, f.events.byType(domain.EventAuthCodeExpired), 1)

	// The code was not consumed, but it stays unusable.
	stored, err := f.codes.GetAuthCode(ctx, code)
	require.NoError(t, err)
	assert.False(t, stored.Used)
}

func TestValidateAndConsumeBindings(t *testing.T) {
	f := newAuthCodeFixture(t)
	ctx := context.Background()

	code, err := f.svc.Issue(ctx, f.request(), "user-1", domain.RequestMeta{})
	require.NoError(t, err)

	t.Run("wrong client", func(t *testing.T) {
		_, err := f.svc.ValidateAndConsume(ctx, code, "other-client", "https://app.example.com/cb", "", domain.RequestMeta{})
		requireInvalidGrant(t, err)
	})

	t.Run("wrong redirect uri", func(t *testing.T) {
		// Registered for the client, but not the one the code is bound to.
		_, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/alt", "", domain.RequestMeta{})
		requireInvalidGrant(t, err)
	})

	t.Run("exact match still redeems", func(t *testing.T) {
		_, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
		assert.NoError(t, err)
	})
}

func TestValidateAndConsumePKCE(t *testing.T) {
	f := newAuthCodeFixture(t)
	ctx := context.Background()

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	issue := func(t *testing.T) string {
		t.Helper()
		req := f.request()
		req.CodeChallenge = challenge
		req.CodeChallengeMethod = "S256"
		code, err := f.svc.Issue(ctx, req, "user-1", domain.RequestMeta{})
		require.NoError(t, err)
		return code
	}

	t.Run("missing verifier", func(t *testing.T) {
		code := issue(t)
		_, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
		requireInvalidGrant(t, err)
	})

	t.Run("wrong verifier", func(t *testing.T) {
		code := issue(t)
		_, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "not-the-verifier-but-long-enough-anyway", domain.RequestMeta{})
		requireInvalidGrant(t, err)
	})

	t.Run("correct verifier", func(t *testing.T) {
		code := issue(t)
		authCode, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", verifier, domain.RequestMeta{})
		require.NoError(t, err)
		assert.True(t, authCode.Used)
	})
}

func TestValidateAndConsumeExactlyOnce(t *testing.T) {
	f := newAuthCodeFixture(t)
	ctx := context.Background()

	code, err := f.svc.Issue(ctx, f.request(), "user-1", domain.RequestMeta{})
	require.NoError(t, err)

	const goroutines = 16
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ValidateAndConsume(ctx, code, "todo-web", "https://app.example.com/cb", "", domain.RequestMeta{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent redemption may win")
}

func requireInvalidGrant(t *testing.T, err error) {
	t.Helper()
	var oauthErr *serrors.OAuth2Error
	require.True(t, errors.As(err, &oauthErr), "expected an OAuth2 wire error, got %v", err)
	assert.Equal(t, serrors.InvalidGrant, oauthErr.Code)
}
