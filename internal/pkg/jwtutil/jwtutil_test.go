package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", time.Minute, "an@example.com", "An")
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "an@example.com", claims.Email)
	assert.Equal(t, "An", claims.Name)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", time.Minute, "an@example.com", "An")
	require.NoError(t, err)

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	token, err := GenerateToken("secret", -time.Minute, "an@example.com", "An")
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.Error(t, err)
}
