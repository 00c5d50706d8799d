package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"auth-service/internal/clock"
)

// TypeAccess is the fixed claim value carried by every access token.
const TypeAccess = "access"

const minSecretBytes = 32

var ErrInvalidToken = errors.New("invalid access token")

type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HMAC-SHA-256 signed access tokens. The key is
// read-only after construction; Sign and Verify are safe for concurrent use.
type Signer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

func NewSigner(secret []byte, ttl time.Duration, clk clock.Clock) (*Signer, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}

	// Expiry is checked separately via IsExpired so the gate can tell a
	// stale-but-authentic token apart from a tampered one.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	key := make([]byte, len(secret))
	copy(key, secret)

	return &Signer{secret: key, ttl: ttl, clock: clk, parser: parser}, nil
}

func (s *Signer) Sign(principal string) (string, error) {
	if principal == "" {
		return "", errors.New("principal must not be empty")
	}

	now := s.clock.Now()
	claims := Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// Verify checks the signature and shape of a token but not its expiry.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	parsed, err := s.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if claims.Type != TypeAccess || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IsExpired is fail-closed: a token that does not parse or verify counts
// as expired.
func (s *Signer) IsExpired(tokenStr string) bool {
	claims, err := s.Verify(tokenStr)
	if err != nil {
		return true
	}
	return !s.clock.Now().Before(claims.ExpiresAt.Time)
}
