// Package auth verifies the bearer tokens that identify discovery viewers.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAccess is the only token type accepted by the discovery API.
const TokenTypeAccess = "access"

const (
	// AccessTokenExpiry is the lifetime of issued access tokens.
	AccessTokenExpiry = 15 * time.Minute

	// DefaultLeeway absorbs clock skew between issuer and verifier.
	DefaultLeeway = 30 * time.Second
)

var (
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when a token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrEmptyProfileID is returned when issuing a token without a subject.
	ErrEmptyProfileID = errors.New("profile id cannot be empty")

	// ErrMissingSecret is returned when the service has no signing secret.
	ErrMissingSecret = errors.New("jwt secret is required")
)

// Claims are the JWT claims of an access token. The subject is the
// viewer's profile id.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// ProfileID returns the subject.
func (c *Claims) ProfileID() string {
	return c.Subject
}

// JWTService issues and verifies HS256 access tokens. Tokens are signed
// with the current secret and verified against the current secret, then
// the previous one while a rotation is in progress.
type JWTService struct {
	secrets [][]byte
	leeway  time.Duration
	now     func() time.Time
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithPreviousSecret accepts tokens signed with secret during rotation.
func WithPreviousSecret(secret string) Option {
	return func(s *JWTService) {
		if secret != "" {
			s.secrets = append(s.secrets, []byte(secret))
		}
	}
}

// WithLeeway overrides DefaultLeeway.
func WithLeeway(leeway time.Duration) Option {
	return func(s *JWTService) {
		s.leeway = leeway
	}
}

// WithClock overrides time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		s.now = now
	}
}

// NewJWTService creates a service that signs with secret.
func NewJWTService(secret string, opts ...Option) (*JWTService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	s := &JWTService{
		secrets: [][]byte{[]byte(secret)},
		leeway:  DefaultLeeway,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessToken signs an access token for profileID.
func (s *JWTService) IssueAccessToken(profileID string) (string, error) {
	if strings.TrimSpace(profileID) == "" {
		return "", ErrEmptyProfileID
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenExpiry)),
		},
		Type: TokenTypeAccess,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secrets[0])
}

// ValidateAccessToken verifies tokenString and returns its claims.
// Tokens of another type or without a subject are invalid.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	var lastErr error
	for _, secret := range s.secrets {
		claims, err := s.parse(tokenString, secret)
		if err == nil {
			if claims.Type != TokenTypeAccess || claims.Subject == "" {
				return nil, ErrInvalidToken
			}
			return claims, nil
		}
		lastErr = err
	}

	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
