package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("secret", "retail-backend", time.Minute, time.Hour)

	token, err := m.GenerateAccessToken("u-1", "cashier")
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "cashier", claims.Username)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestManager_RejectsForeignIssuerAndKey(t *testing.T) {
	m := NewManager("secret", "retail-backend", time.Minute, time.Hour)
	other := NewManager("other", "retail-backend", time.Minute, time.Hour)
	foreign := NewManager("secret", "someone-else", time.Minute, time.Hour)

	token, err := other.GenerateAccessToken("u-1", "cashier")
	require.NoError(t, err)
	_, err = m.Validate(token)
	assert.Error(t, err)

	token, err = foreign.GenerateRefreshToken("u-1")
	require.NoError(t, err)
	_, err = m.Validate(token)
	assert.Error(t, err)
}

func TestParseUnverified(t *testing.T) {
	m := NewManager("secret", "retail-backend", -time.Minute, time.Hour)

	token, err := m.GenerateAccessToken("u-1", "cashier")
	require.NoError(t, err)

	// expired tokens still decode; the caller decides what expiry means
	claims, err := ParseUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, "cashier", claims.Username)
	assert.True(t, claims.Expired(time.Now()))

	_, err = ParseUnverified("not-a-jwt")
	assert.Error(t, err)
}

func TestClaimsExpired_NoExpiry(t *testing.T) {
	assert.False(t, (&Claims{}).Expired(time.Now()))
}
