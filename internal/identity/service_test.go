package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	mu             sync.Mutex
	users          map[string]*domain.User
	nextID         int
	createUserErr  error
	getUserByEmail func(email string) (*domain.User, error)
	deletedFor     []string
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createUserErr != nil {
		return m.createUserErr
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	m.users[user.Email] = user
	return nil
}

func (m *mockRepository) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.getUserByEmail != nil {
		return m.getUserByEmail(email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockRepository) UpdateUser(_ context.Context, _ *domain.User) error {
	return nil
}

func (m *mockRepository) SaveRefreshToken(_ context.Context, _ *domain.RefreshToken) error {
	return nil
}

func (m *mockRepository) GetRefreshToken(_ context.Context, _ string) (*domain.RefreshToken, error) {
	return nil, ErrInvalidToken
}

func (m *mockRepository) DeleteRefreshToken(_ context.Context, _ string) error {
	return nil
}

func (m *mockRepository) DeleteUserRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedFor = append(m.deletedFor, userID)
	return nil
}

// mockAuthenticator implements Authenticator for testing.
type mockAuthenticator struct {
	revoked    []string
	refreshErr error
}

func (m *mockAuthenticator) GenerateTokens(_ context.Context, user *domain.User) (*TokenPair, error) {
	return &TokenPair{AccessToken: "access-" + user.ID, RefreshToken: "refresh", TokenType: "Bearer"}, nil
}

func (m *mockAuthenticator) ValidateAccessToken(_ context.Context, token string) (string, domain.Role, error) {
	if token != "good" {
		return "", "", errors.New("signature is invalid")
	}
	return "user-1", domain.RoleResponder, nil
}

func (m *mockAuthenticator) RefreshTokens(_ context.Context, _ string) (*TokenPair, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthenticator) RevokeRefreshToken(_ context.Context, token string) error {
	m.revoked = append(m.revoked, token)
	return nil
}

func (m *mockAuthenticator) Type() string {
	return "mock"
}

func newTestService() (*Service, *mockRepository, *mockAuthenticator) {
	repo := newMockRepository()
	auth := &mockAuthenticator{}
	service := NewService(repo, auth)
	service.hashCost = bcrypt.MinCost
	return service, repo, auth
}

func TestSignUp(t *testing.T) {
	service, _, _ := newTestService()

	user, err := service.SignUp(context.Background(), SignUpInput{
		Email:       "  Test@Example.com ",
		Password:    "password123",
		DisplayName: "Tester",
	})

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, domain.RoleViewer, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestSignUp_EmailAlreadyExists(t *testing.T) {
	service, repo, _ := newTestService()
	repo.users["existing@example.com"] = &domain.User{Email: "existing@example.com"}

	user, err := service.SignUp(context.Background(), SignUpInput{
		Email:    "existing@example.com",
		Password: "password123",
	})

	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestSignUp_CreateUserFails(t *testing.T) {
	service, repo, _ := newTestService()
	repo.createUserErr = errors.New("database error")

	user, err := service.SignUp(context.Background(), SignUpInput{
		Email:    "test@example.com",
		Password: "password123",
	})

	assert.Nil(t, user)
	assert.Error(t, err)
}

func TestSignUp_LookupFails(t *testing.T) {
	service, repo, _ := newTestService()
	repo.getUserByEmail = func(string) (*domain.User, error) {
		return nil, errors.New("connection reset")
	}

	_, err := service.SignUp(context.Background(), SignUpInput{
		Email:    "test@example.com",
		Password: "password123",
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailExists)
}

func TestSignIn(t *testing.T) {
	service, _, _ := newTestService()
	created, err := service.SignUp(context.Background(), SignUpInput{
		Email:    "test@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	var changes []AuthStateChange
	unsubscribe := service.OnAuthStateChanged(func(_ context.Context, c AuthStateChange) {
		changes = append(changes, c)
	})
	defer unsubscribe()

	user, tokens, err := service.SignIn(context.Background(), SignInInput{
		Email:    "TEST@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Equal(t, "access-"+created.ID, tokens.AccessToken)
	require.Len(t, changes, 1)
	assert.Equal(t, AuthStateChange{Event: AuthSignedIn, UserID: created.ID}, changes[0])
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	service, _, _ := newTestService()
	_, err := service.SignUp(context.Background(), SignUpInput{
		Email:    "test@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input SignInInput
	}{
		{name: "wrong password", input: SignInInput{Email: "test@example.com", Password: "nope"}},
		{name: "unknown email", input: SignInInput{Email: "ghost@example.com", Password: "password123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := service.SignIn(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestSignOut(t *testing.T) {
	service, repo, auth := newTestService()

	var changes []AuthStateChange
	unsubscribe := service.OnAuthStateChanged(func(_ context.Context, c AuthStateChange) {
		changes = append(changes, c)
	})

	require.NoError(t, service.SignOut(context.Background(), "user-1", "refresh-token"))
	assert.Equal(t, []string{"refresh-token"}, auth.revoked)
	assert.Empty(t, repo.deletedFor)

	require.NoError(t, service.SignOut(context.Background(), "user-1", ""))
	assert.Equal(t, []string{"user-1"}, repo.deletedFor)

	require.Len(t, changes, 2)
	assert.Equal(t, AuthSignedOut, changes[1].Event)

	unsubscribe()
	unsubscribe()
	require.NoError(t, service.SignOut(context.Background(), "user-1", ""))
	assert.Len(t, changes, 2)
}

func TestRefresh(t *testing.T) {
	service, _, auth := newTestService()

	tokens, err := service.Refresh(context.Background(), "refresh")
	require.NoError(t, err)
	assert.Equal(t, "access", tokens.AccessToken)

	auth.refreshErr = ErrInvalidToken
	_, err = service.Refresh(context.Background(), "refresh")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken(t *testing.T) {
	service, _, _ := newTestService()

	userID, role, err := service.ValidateToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, domain.RoleResponder, role)

	_, _, err = service.ValidateToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSeedUsers(t *testing.T) {
	service, repo, _ := newTestService()
	repo.users["admin@incident.com"] = &domain.User{ID: "existing", Email: "admin@incident.com", Role: domain.RoleAdmin}

	err := service.SeedUsers(context.Background(), []SeedAccount{
		{Email: "admin@incident.com", Password: "admin123", Role: domain.RoleAdmin},
		{Email: "engineer@incident.com", Password: "engineer123", Role: domain.RoleResponder},
	})
	require.NoError(t, err)

	assert.Equal(t, "existing", repo.users["admin@incident.com"].ID)
	require.Contains(t, repo.users, "engineer@incident.com")
	assert.Equal(t, domain.RoleResponder, repo.users["engineer@incident.com"].Role)

	err = service.SeedUsers(context.Background(), []SeedAccount{
		{Email: "x@incident.com", Password: "password", Role: "superuser"},
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCurrentUser(t *testing.T) {
	service, _, _ := newTestService()

	_, err := service.CurrentUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrUserNotFound)

	created, err := service.SignUp(context.Background(), SignUpInput{Email: "me@example.com", Password: "password123"})
	require.NoError(t, err)

	user, err := service.CurrentUser(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", user.Email)
}
