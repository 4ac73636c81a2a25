package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/driftwatch/driftwatch/pkg/plugin"
)

// UserStore persists accounts and refresh tokens in the auth_* tables of the
// shared database.
type UserStore struct {
	db *sql.DB
}

// NewUserStore runs the auth migrations and returns the store.
func NewUserStore(ctx context.Context, backend plugin.Store) (*UserStore, error) {
	if err := backend.Migrate(ctx, "auth", migrations); err != nil {
		return nil, fmt.Errorf("auth migrations: %w", err)
	}
	return &UserStore{db: backend.DB()}, nil
}

const selectUser = `
	SELECT id, username, email, password_hash, role, created_at, last_login, disabled
	FROM auth_users`

// userScan is the scan destination for one auth_users row. password_hash and
// last_login are nullable, so they land in sql.Null* fields first.
type userScan struct {
	u     User
	hash  sql.NullString
	role  string
	login sql.NullTime
}

func (c *userScan) dest() []any {
	return []any{&c.u.ID, &c.u.Username, &c.u.Email, &c.hash, &c.role, &c.u.CreatedAt, &c.login, &c.u.Disabled}
}

func (c *userScan) user() *User {
	c.u.PasswordHash = c.hash.String
	c.u.Role = Role(c.role)
	c.u.LastLogin = c.login.Time
	return &c.u
}

// userRow runs a single-user query. Misses surface as sql.ErrNoRows.
func (s *UserStore) userRow(ctx context.Context, where string, arg any) (*User, error) {
	var c userScan
	if err := s.db.QueryRowContext(ctx, selectUser+" WHERE "+where, arg).Scan(c.dest()...); err != nil {
		return nil, err
	}
	return c.user(), nil
}

// GetUserByID returns the account with the given ID.
func (s *UserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.userRow(ctx, "id = ?", id)
}

// GetUserByUsername returns the account with the given username.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.userRow(ctx, "username = ?", username)
}

// ListUsers returns every account, oldest first.
func (s *UserStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+" ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var c userScan
		if err := rows.Scan(c.dest()...); err != nil {
			return nil, err
		}
		out = append(out, *c.user())
	}
	return out, rows.Err()
}

// CreateUser inserts a new account.
func (s *UserStore) CreateUser(ctx context.Context, u *User) error {
	const q = `INSERT INTO auth_users (id, username, email, password_hash, role, created_at, disabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.Disabled)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateUser writes the mutable account fields: email, role, disabled.
func (s *UserStore) UpdateUser(ctx context.Context, u *User) error {
	const q = "UPDATE auth_users SET email = ?, role = ?, disabled = ? WHERE id = ?"
	if _, err := s.db.ExecContext(ctx, q, u.Email, string(u.Role), u.Disabled, u.ID); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps last_login with the current time.
func (s *UserStore) UpdateLastLogin(ctx context.Context, userID string) error {
	const q = "UPDATE auth_users SET last_login = ? WHERE id = ?"
	_, err := s.db.ExecContext(ctx, q, time.Now().UTC(), userID)
	return err
}

// DeleteUser removes an account. A miss comes back as sql.ErrNoRows so the
// service can turn it into a 404 rather than a silent no-op.
func (s *UserStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM auth_users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUsers returns how many accounts exist.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM auth_users").Scan(&n)
	return n, err
}

// RefreshToken is a stored session token. TokenHash is the SHA-256 of the
// raw token; the raw form never reaches the database.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// SaveRefreshToken persists a hashed refresh token for a user.
func (s *UserStore) SaveRefreshToken(ctx context.Context, id, userID, tokenHash string, expiresAt time.Time) error {
	const q = `INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, id, userID, tokenHash, expiresAt, time.Now().UTC())
	return err
}

// GetRefreshToken resolves a token by its hash.
func (s *UserStore) GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	const q = `SELECT id, user_id, token_hash, expires_at, created_at, revoked
		FROM auth_refresh_tokens WHERE token_hash = ?`
	var tok RefreshToken
	err := s.db.QueryRowContext(ctx, q, tokenHash).
		Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// RevokeRefreshToken invalidates one token by ID.
func (s *UserStore) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE auth_refresh_tokens SET revoked = 1 WHERE id = ?", id)
	return err
}

// RevokeUserRefreshTokens invalidates every token a user holds, ending all of
// their sessions at once.
func (s *UserStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const q = "UPDATE auth_refresh_tokens SET revoked = 1 WHERE user_id = ?"
	_, err := s.db.ExecContext(ctx, q, userID)
	return err
}

// CleanExpiredTokens drops tokens that can never be used again. The server
// runs it once per boot; between boots dead rows just accumulate.
func (s *UserStore) CleanExpiredTokens(ctx context.Context) error {
	const q = "DELETE FROM auth_refresh_tokens WHERE expires_at < ? OR revoked = 1"
	_, err := s.db.ExecContext(ctx, q, time.Now().UTC())
	return err
}

var migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create auth_users table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE auth_users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT,
				role TEXT NOT NULL DEFAULT 'viewer',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_login DATETIME,
				disabled INTEGER NOT NULL DEFAULT 0
			)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "create auth_refresh_tokens table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE auth_refresh_tokens (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES auth_users(id) ON DELETE CASCADE,
				token_hash TEXT NOT NULL UNIQUE,
				expires_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				revoked INTEGER NOT NULL DEFAULT 0
			)`)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`CREATE INDEX idx_refresh_tokens_user ON auth_refresh_tokens(user_id)`)
			return err
		},
	},
}
