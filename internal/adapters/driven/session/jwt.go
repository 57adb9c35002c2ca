package session

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/ports"
)

// JWTStore implements SessionStore using signed JWT tokens.
// Tokens are signed with RSA (RS256) and are stateless: the token itself is
// the session record. Because there is no server-side state, the store keeps
// no ticket index and cannot honor single logout; deployments that need SLO
// use the memory store.
type JWTStore struct {
	privateKey *rsa.PrivateKey
	duration   time.Duration
}

// sessionClaims defines the JWT claims structure for sessions.
type sessionClaims struct {
	jwt.RegisteredClaims
	Ticket     string         `json:"ticket,omitempty"`
	Attributes map[string]any `json:"attrs,omitempty"`
}

// NewJWTStore creates a new JWT-based session store.
func NewJWTStore(privateKey *rsa.PrivateKey, duration time.Duration) *JWTStore {
	return &JWTStore{
		privateKey: privateKey,
		duration:   duration,
	}
}

// Create generates a signed JWT token from the session.
func (s *JWTStore) Create(session *domain.Session) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
		Ticket:     session.Ticket,
		Attributes: session.Attributes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// Get validates a JWT token and returns the session.
func (s *JWTStore) Get(token string) (*domain.Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &s.privateKey.PublicKey, nil
	})
	if err != nil {
		return nil, ports.ErrSessionNotFound
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ports.ErrSessionNotFound
	}

	return &domain.Session{
		Principal:  claims.Subject,
		Attributes: domain.NormalizeAttributes(claims.Attributes),
		Ticket:     claims.Ticket,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// ClearAuth is a no-op for stateless JWT sessions.
// The authentication state lives in the cookie, which the HTTP layer clears.
func (s *JWTStore) ClearAuth(token string) error {
	return nil
}

// Destroy is a no-op for stateless JWT sessions.
// Actual cookie removal happens in the HTTP layer.
func (s *JWTStore) Destroy(token string) error {
	return nil
}

// DestroyByTicket reports that single logout is unsupported: a stateless
// token cannot be revoked by ticket.
func (s *JWTStore) DestroyByTicket(ticket string) error {
	return ports.ErrTicketLookupUnsupported
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try PKCS8 first (modern format), then PKCS1 (legacy RSA format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 format
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return rsaKey, nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}

	return rsaKey, nil
}

// Ensure JWTStore implements ports.SessionStore
var _ ports.SessionStore = (*JWTStore)(nil)
