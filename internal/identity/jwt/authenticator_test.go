package jwt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-characters"

type memoryStore struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	tokens map[string]*domain.RefreshToken
}

func newMemoryStore(users ...*domain.User) *memoryStore {
	s := &memoryStore{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]*domain.RefreshToken),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (s *memoryStore) SaveRefreshToken(_ context.Context, token *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.TokenHash] = token
	return nil
}

func (s *memoryStore) GetRefreshToken(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok {
		return t, nil
	}
	return nil, identity.ErrInvalidToken
}

func (s *memoryStore) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tokenHash]; !ok {
		return identity.ErrInvalidToken
	}
	delete(s.tokens, tokenHash)
	return nil
}

func newTestAuthenticator(store TokenStore, now time.Time) *Authenticator {
	a := NewAuthenticator(Config{
		SecretKey:            testSecret,
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	}, store)
	a.now = func() time.Time { return now }
	return a
}

var testUser = &domain.User{ID: "0d9f3c59-9a61-4e4b-bb0e-2b8f7f1f3a10", Email: "dba@incident.com", Role: domain.RoleResponder}

func TestGenerateAndValidate(t *testing.T) {
	now := time.Now()
	store := newMemoryStore(testUser)
	auth := newTestAuthenticator(store, now)

	tokens, err := auth.GenerateTokens(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, now.Add(15*time.Minute), tokens.ExpiresAt)
	assert.Len(t, store.tokens, 1)
	assert.NotContains(t, store.tokens, tokens.RefreshToken)
	assert.Contains(t, store.tokens, HashToken(tokens.RefreshToken))

	userID, role, err := auth.ValidateAccessToken(context.Background(), tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUser.ID, userID)
	assert.Equal(t, domain.RoleResponder, role)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	now := time.Now()
	auth := newTestAuthenticator(newMemoryStore(testUser), now)

	tokens, err := auth.GenerateTokens(context.Background(), testUser)
	require.NoError(t, err)

	expired := newTestAuthenticator(newMemoryStore(), now.Add(time.Hour))

	otherKey := NewAuthenticator(Config{SecretKey: "another-secret-key-at-least-32-chars!!"}, newMemoryStore())

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testUser.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		auth  *Authenticator
		token string
	}{
		{name: "expired", auth: expired, token: tokens.AccessToken},
		{name: "wrong key", auth: otherKey, token: tokens.AccessToken},
		{name: "alg none", auth: auth, token: noneToken},
		{name: "garbage", auth: auth, token: "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.auth.ValidateAccessToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, identity.ErrInvalidToken)
		})
	}
}

func TestRefreshTokens_Rotates(t *testing.T) {
	store := newMemoryStore(testUser)
	auth := newTestAuthenticator(store, time.Now())

	first, err := auth.GenerateTokens(context.Background(), testUser)
	require.NoError(t, err)

	second, err := auth.RefreshTokens(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = auth.RefreshTokens(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	require.NoError(t, auth.RevokeRefreshToken(context.Background(), second.RefreshToken))
	_, err = auth.RefreshTokens(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestRefreshTokens_Expired(t *testing.T) {
	now := time.Now()
	store := newMemoryStore(testUser)
	auth := newTestAuthenticator(store, now)

	tokens, err := auth.GenerateTokens(context.Background(), testUser)
	require.NoError(t, err)

	later := newTestAuthenticator(store, now.Add(25*time.Hour))
	_, err = later.RefreshTokens(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
	assert.Empty(t, store.tokens)
}
