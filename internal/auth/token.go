package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload. The custom fields ride alongside the
// registered ones so the middleware can authorize a request without touching
// the database.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	Username string `json:"usr"`
	Role     string `json:"role"`
}

// refreshTokenBytes is the entropy drawn per refresh token. Clients see it
// hex-encoded, so the raw token is twice as many characters.
const refreshTokenBytes = 32

// TokenService mints and checks both halves of a session: stateless HS256
// access JWTs, and random refresh tokens of which only the SHA-256 hash is
// ever persisted.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService builds a TokenService around one HS256 signing secret.
func NewTokenService(secret []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// IssueAccessToken signs a JWT carrying the user's identity and role.
func (s *TokenService) IssueAccessToken(u *User) (string, error) {
	now := time.Now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    "driftwatch",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		UserID:   u.ID,
		Username: u.Username,
		Role:     string(u.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign JWT: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken checks the signature and expiry and returns the claims.
// Only HS256 is accepted, so a token declaring alg=none or an RSA variant
// fails before any key material is consulted.
func (s *TokenService) ValidateAccessToken(raw string) (*Claims, error) {
	keyFn := func(*jwt.Token) (any, error) { return s.secret, nil }
	token, err := jwt.ParseWithClaims(raw, &Claims{}, keyFn,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

// GenerateRefreshToken draws a fresh random token. The raw hex string goes to
// the client; only the hash is handed on for storage, so a leaked database
// does not leak usable sessions.
func (s *TokenService) GenerateRefreshToken() (raw, hash string, expiresAt time.Time, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", time.Time{}, fmt.Errorf("refresh token entropy: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, HashToken(raw), time.Now().Add(s.refreshTTL), nil
}

// AccessTokenTTL returns the access token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration { return s.accessTTL }

// RefreshTokenTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// HashToken is the storage form of a refresh token: SHA-256, hex encoded.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
