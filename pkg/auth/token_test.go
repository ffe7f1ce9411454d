package auth

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(SessionTokenBytes)
	require.NoError(t, err)
	assert.Len(t, token, SessionTokenBytes*2)

	_, err = hex.DecodeString(token)
	assert.NoError(t, err)

	other, err := GenerateToken(SessionTokenBytes)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateURLToken(t *testing.T) {
	token, err := GenerateURLToken(ResetTokenBytes)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, ResetTokenBytes)
	assert.NotContains(t, token, "=")
}

func TestHashToken(t *testing.T) {
	a := HashToken("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", a)
	assert.Equal(t, a, HashToken("abc"))
	assert.NotEqual(t, a, HashToken("abd"))
}
