package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims extends jwt.RegisteredClaims with the fields the retail backend issues.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
}

// Expired reports whether the token is past its expiry at now. Tokens
// without an expiry never expire.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// ParseUnverified decodes claims without checking the signature. The till
// never holds the signing key; it only inspects tokens it was handed by the
// server to decide whether a session is present.
func ParseUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Manager signs and validates tokens. The till uses it only through the
// backend simulator and tests; production tokens come from the server.
type Manager struct {
	signingKey      []byte
	issuer          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewManager(signingKey string, issuer string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		signingKey:      []byte(signingKey),
		issuer:          issuer,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

// GenerateAccessToken creates a signed JWT access token for a user.
func (m *Manager) GenerateAccessToken(subject, username string) (string, error) {
	return m.sign(subject, username, TokenTypeAccess, m.accessTokenTTL)
}

// GenerateRefreshToken creates a signed JWT refresh token.
func (m *Manager) GenerateRefreshToken(subject string) (string, error) {
	return m.sign(subject, "", TokenTypeRefresh, m.refreshTokenTTL)
}

func (m *Manager) sign(subject, username string, tokenType TokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		TokenType: tokenType,
		Username:  username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

// Validate parses and validates a token string, returning claims.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	if claims.Issuer != m.issuer {
		return nil, errors.New("invalid issuer")
	}

	return claims, nil
}
