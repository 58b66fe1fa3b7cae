// Package identity implements accounts, token based authentication and auth state notifications.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
)

// AuthEvent is the kind of auth state change.
type AuthEvent string

// Auth events.
const (
	AuthSignedIn  AuthEvent = "signed_in"
	AuthSignedOut AuthEvent = "signed_out"
)

// AuthStateChange describes a sign-in or sign-out of one user.
type AuthStateChange struct {
	Event  AuthEvent
	UserID string
}

// AuthStateListener receives auth state changes. It is called synchronously
// and must not block.
type AuthStateListener func(ctx context.Context, change AuthStateChange)

// Service implements identity business logic.
type Service struct {
	repo     Repository
	auth     Authenticator
	hashCost int

	mu        sync.RWMutex
	listeners map[int]AuthStateListener
	nextID    int
}

// NewService creates a new identity service.
func NewService(repo Repository, auth Authenticator) *Service {
	return &Service{
		repo:      repo,
		auth:      auth,
		hashCost:  bcrypt.DefaultCost,
		listeners: make(map[int]AuthStateListener),
	}
}

// SignUpInput holds data for account creation.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
}

// SignInInput holds credentials.
type SignInInput struct {
	Email    string
	Password string
}

// SeedAccount is an account created at startup when its email is not taken.
type SeedAccount struct {
	Email       string
	Password    string
	DisplayName string
	Role        domain.Role
}

// SignUp creates a viewer account.
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (*domain.User, error) {
	return s.createUser(ctx, input, domain.RoleViewer)
}

func (s *Service) createUser(ctx context.Context, input SignUpInput, role domain.Role) (*domain.User, error) {
	email := normalizeEmail(input.Email)

	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Role:         role,
		PasswordHash: string(hash),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	ctxlog.FromContext(ctx).Info("user created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// SignIn checks credentials and issues a token pair.
func (s *Service) SignIn(ctx context.Context, input SignInInput) (*domain.User, *TokenPair, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.auth.GenerateTokens(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.notify(ctx, AuthStateChange{Event: AuthSignedIn, UserID: user.ID})
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	tokens, err := s.auth.RefreshTokens(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}
	return tokens, nil
}

// SignOut revokes refreshToken, or every refresh token of the user when it is empty,
// and notifies listeners.
func (s *Service) SignOut(ctx context.Context, userID, refreshToken string) error {
	var err error
	if refreshToken != "" {
		err = s.auth.RevokeRefreshToken(ctx, refreshToken)
	} else {
		err = s.repo.DeleteUserRefreshTokens(ctx, userID)
	}
	if err != nil && !errors.Is(err, ErrInvalidToken) {
		return fmt.Errorf("revoke tokens: %w", err)
	}

	s.notify(ctx, AuthStateChange{Event: AuthSignedOut, UserID: userID})
	return nil
}

// CurrentUser returns the user behind an authenticated request.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	return s.repo.GetUserByID(ctx, userID)
}

// ValidateToken validates an access token. Implements httputil.TokenValidator.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, domain.Role, error) {
	userID, role, err := s.auth.ValidateAccessToken(ctx, token)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	return userID, role, nil
}

// OnAuthStateChanged registers a listener and returns a func that removes it.
// The returned func is safe to call more than once.
func (s *Service) OnAuthStateChanged(listener AuthStateListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SeedUsers creates the given accounts unless their email is already registered.
func (s *Service) SeedUsers(ctx context.Context, accounts []SeedAccount) error {
	for _, acc := range accounts {
		if !acc.Role.IsValid() {
			return fmt.Errorf("seed %s: %w", acc.Email, ErrInvalidRole)
		}

		_, err := s.createUser(ctx, SignUpInput{
			Email:       acc.Email,
			Password:    acc.Password,
			DisplayName: acc.DisplayName,
		}, acc.Role)
		if errors.Is(err, ErrEmailExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", acc.Email, err)
		}
	}

	slog.Info("seed users ensured", "count", len(accounts))
	return nil
}

func (s *Service) notify(ctx context.Context, change AuthStateChange) {
	s.mu.RLock()
	listeners := make([]AuthStateListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, change)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
