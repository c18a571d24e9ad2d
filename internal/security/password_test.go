package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("pw123456")
	require.NoError(t, err)
	assert.Contains(t, string(hash), "$argon2id$v=19$")

	ok, err := VerifyPassword("pw123456", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	first, err := HashPassword("same-password")
	require.NoError(t, err)
	second, err := HashPassword("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	for _, hash := range [][]byte{first, second} {
		ok, err := VerifyPassword("same-password", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	ok, err := VerifyPassword("battery-staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	for _, stored := range []string{
		"",
		"plaintext",
		"$bcrypt$whatever",
		"$argon2id$v=19$t=3,m=65536,p=2$only-four-parts",
	} {
		_, err := VerifyPassword("pw", []byte(stored))
		assert.Error(t, err, "stored=%q", stored)
	}
}
