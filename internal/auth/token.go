package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nexusoptimizer/nexus/internal/config"
)

// ErrTokenInvalid is returned for any token that fails verification:
// malformed, expired, or carrying a bad signature. The cases are
// deliberately collapsed so middleware can respond uniformly.
var ErrTokenInvalid = errors.New("invalid or expired token")

// TokenService issues and verifies signed bearer tokens. Tokens are
// self-contained; rotating the secret invalidates everything outstanding,
// which is the only invalidation mechanism (no revocation list).
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// Claims represents the identity claims carried by a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// AccountID returns the account id the token was issued for.
func (c *Claims) AccountID() string {
	return c.Subject
}

// NewTokenService creates a new TokenService. An empty secret is replaced
// with a random ephemeral one, which means tokens do not survive a
// restart; fine for development, logged loudly at startup by the caller.
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate ephemeral token secret: %w", err)
		}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &TokenService{
		secret: secret,
		ttl:    ttl,
		issuer: cfg.Issuer,
	}, nil
}

// Issue creates a signed token for the account with the configured TTL.
func (s *TokenService) Issue(accountID, username string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its
// claims. Every failure mode maps to ErrTokenInvalid.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// HashToken creates a SHA-256 hash of a token for secure at-rest storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// GenerateSecureToken returns length random bytes hex-encoded.
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
