package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors the handlers translate into 4xx responses. Anything else coming out
// of the service is treated as a 500.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("account is disabled")
	ErrSetupComplete      = errors.New("setup is already complete")
	ErrInvalidToken       = errors.New("token invalid or expired")
	ErrUserNotFound       = errors.New("no such user")
)

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"` // Seconds until the access token expires.
}

// Service is the account and session logic between the HTTP handlers and the
// stores.
type Service struct {
	users  *UserStore
	tokens *TokenService
	logger *zap.Logger
}

// NewService wires the account and session logic to its stores.
func NewService(users *UserStore, tokens *TokenService, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Tokens exposes the token service so the server can build its middleware
// from the same instance that signs the tokens.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Login verifies the credentials and opens a session. Unknown usernames and
// wrong passwords return the same error.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if u.Disabled {
		return nil, ErrUserDisabled
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}

	// Best effort; a failed timestamp write must not fail the login.
	_ = s.users.UpdateLastLogin(ctx, u.ID)

	s.logger.Info("session opened",
		zap.String("username", username),
		zap.String("user_id", u.ID),
	)
	return pair, nil
}

// Setup creates the very first account with the admin role. Once any account
// exists the operation is permanently closed.
func (s *Service) Setup(ctx context.Context, username, email, password string) (*User, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	if n > 0 {
		return nil, ErrSetupComplete
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	pwHash, err := HashPassword(password, 0)
	if err != nil {
		return nil, err
	}
	admin := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Role:         RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, admin); err != nil {
		return nil, fmt.Errorf("store first admin: %w", err)
	}

	s.logger.Info("first admin created", zap.String("username", username))
	return admin, nil
}

// Refresh trades a live refresh token for a new pair. The old token is spent
// in the process; replaying it fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rt, err := s.users.GetRefreshToken(ctx, HashToken(refreshToken))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrInvalidToken
	case err != nil:
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if rt.Revoked || time.Now().After(rt.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	_ = s.users.RevokeRefreshToken(ctx, rt.ID)

	u, err := s.users.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("load account behind refresh token: %w", err)
	}
	if u.Disabled {
		return nil, ErrUserDisabled
	}
	return s.issueTokens(ctx, u)
}

// Logout revokes the presented refresh token. A token that is already gone
// counts as logged out, so a double click never errors.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	rt, err := s.users.GetRefreshToken(ctx, HashToken(refreshToken))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("load refresh token: %w", err)
	}
	return s.users.RevokeRefreshToken(ctx, rt.ID)
}

// NeedsSetup reports whether no accounts exist yet.
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.ListUsers(ctx)
}

// GetUser returns one account by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.userByID(ctx, id)
}

// UpdateUser rewrites the mutable account fields. Disabling an account also
// revokes its refresh tokens, so open sessions end with it.
func (s *Service) UpdateUser(ctx context.Context, id, email string, role Role, disabled bool) (*User, error) {
	u, err := s.userByID(ctx, id)
	if err != nil {
		return nil, err
	}

	u.Email = email
	u.Role = role
	u.Disabled = disabled
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	if disabled {
		_ = s.users.RevokeUserRefreshTokens(ctx, id)
	}
	return u, nil
}

// DeleteUser removes an account by ID.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	switch err := s.users.DeleteUser(ctx, id); {
	case errors.Is(err, sql.ErrNoRows):
		return ErrUserNotFound
	default:
		return err
	}
}

// userByID maps the store's row-level miss onto ErrUserNotFound.
func (s *Service) userByID(ctx context.Context, id string) (*User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, err
	}
	return u, nil
}

// issueTokens mints the pair for a session: a signed access token plus a
// stored, rotating refresh token.
func (s *Service) issueTokens(ctx context.Context, u *User) (*TokenPair, error) {
	signed, err := s.tokens.IssueAccessToken(u)
	if err != nil {
		return nil, err
	}

	refresh, digest, expiresAt, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.users.SaveRefreshToken(ctx, uuid.New().String(), u.ID, digest, expiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  signed,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}
