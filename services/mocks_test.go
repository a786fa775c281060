package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"go.pulseplan.io/auth/domain"
)

// --- Mock Implementations ---

type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type MockFederatedIdentityRepository struct {
	mock.Mock
}

func (m *MockFederatedIdentityRepository) GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*domain.FederatedIdentity, error) {
	args := m.Called(ctx, provider, providerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FederatedIdentity), args.Error(1)
}

func (m *MockFederatedIdentityRepository) SaveIdentity(ctx context.Context, identity *domain.FederatedIdentity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

// --- In-memory fakes ---
//
// The auth code, token and event repositories are faked with real maps
// rather than mocks: the interesting behavior under test (conditional
// consumption, rotation, window counting) lives in the interplay of
// several calls, which canned mock returns cannot express.

type fakeAuthCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*domain.AuthCode
}

func newFakeAuthCodeRepo() *fakeAuthCodeRepo {
	return &fakeAuthCodeRepo{codes: make(map[string]*domain.AuthCode)}
}

func (f *fakeAuthCodeRepo) SaveAuthCode(_ context.Context, code *domain.AuthCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.codes[code.Code]; exists {
		return errors.New("duplicate code")
	}
	cp := *code
	f.codes[code.Code] = &cp
	return nil
}

func (f *fakeAuthCodeRepo) GetAuthCode(_ context.Context, codeValue string) (*domain.AuthCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.codes[codeValue]
	if !ok {
		return nil, errors.New("authorization code not found")
	}
	cp := *code
	return &cp, nil
}

func (f *fakeAuthCodeRepo) ConsumeAuthCode(_ context.Context, codeValue string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.codes[codeValue]
	if !ok || code.Used {
		return false, nil
	}
	code.Used = true
	return true, nil
}

func (f *fakeAuthCodeRepo) DeleteExpiredAuthCodes(_ context.Context) error {
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.Token)}
}

func (f *fakeTokenRepo) StoreToken(_ context.Context, token *domain.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *token
	f.tokens[token.TokenValue] = &cp
	return nil
}

func (f *fakeTokenRepo) getByType(tokenValue, tokenType string) (*domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenValue]
	if !ok || token.TokenType != tokenType || token.IsRevoked || time.Now().After(token.ExpiresAt) {
		return nil, errors.New("token not found or invalid")
	}
	cp := *token
	return &cp, nil
}

func (f *fakeTokenRepo) GetAccessToken(_ context.Context, tokenValue string) (*domain.Token, error) {
	return f.getByType(tokenValue, domain.TokenTypeAccess)
}

func (f *fakeTokenRepo) GetRefreshToken(_ context.Context, tokenValue string) (*domain.Token, error) {
	return f.getByType(tokenValue, domain.TokenTypeRefresh)
}

func (f *fakeTokenRepo) RevokeToken(_ context.Context, tokenValue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := f.tokens[tokenValue]; ok {
		token.IsRevoked = true
	}
	return nil
}

func (f *fakeTokenRepo) RevokeTokensByUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens {
		if token.UserID == userID {
			token.IsRevoked = true
		}
	}
	return nil
}

func (f *fakeTokenRepo) GetTokenInfo(_ context.Context, tokenValue string) (*domain.TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenValue]
	if !ok {
		return nil, errors.New("token not found")
	}
	return &domain.TokenInfo{
		ID:        token.ID,
		TokenType: token.TokenType,
		ClientID:  token.ClientID,
		UserID:    token.UserID,
		Scope:     token.Scope,
		IssuedAt:  token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
		IsRevoked: token.IsRevoked,
	}, nil
}

type fakeEventRepo struct {
	mu        sync.Mutex
	events    []domain.SecurityEvent
	insertErr error
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (f *fakeEventRepo) InsertEvent(_ context.Context, event *domain.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeEventRepo) CountEvents(_ context.Context, userID string, eventType domain.SecurityEventType, success bool, createdAfter time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, e := range f.events {
		if e.UserID == userID && e.EventType == eventType && e.Success == success && !e.CreatedAt.Before(createdAfter) {
			count++
		}
	}
	return count, nil
}

func (f *fakeEventRepo) ListEventsByUser(_ context.Context, userID string, limit int64) ([]domain.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecurityEvent
	for i := len(f.events) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if f.events[i].UserID == userID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

func (f *fakeEventRepo) byType(eventType domain.SecurityEventType) []domain.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecurityEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
