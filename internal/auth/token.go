// Package auth issues and validates the bearer tokens that protect the
// controller tag API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "plcsnmp"

// MinKeyLength is the minimum length of the shared controller API key
const MinKeyLength = 32

// Service issues and validates bearer tokens for the controller tag API.
// Both sides share one HMAC key.
type Service struct {
	key         []byte
	tokenExpiry time.Duration
}

// Claims represents JWT token claims
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// NewService creates a new token service
func NewService(key string, tokenExpiry time.Duration) (*Service, error) {
	if len(key) < MinKeyLength {
		return nil, fmt.Errorf("api key must be at least %d characters", MinKeyLength)
	}
	if tokenExpiry <= 0 {
		tokenExpiry = 15 * time.Minute
	}

	return &Service{
		key:         []byte(key),
		tokenExpiry: tokenExpiry,
	}, nil
}

// IssueToken signs a short-lived token for the named client
func (s *Service) IssueToken(client string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenExpiry)
	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
