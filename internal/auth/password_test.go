package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotContains(t, hash, "correct horse")

	// Same password twice gives different hashes (random salt)
	hash2, err := HashPassword("correct horse battery staple", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestHashPasswordInvalidCostFallsBack(t *testing.T) {
	hash, err := HashPassword("password123", 99)
	require.NoError(t, err)
	// bcrypt encodes its cost in the hash string
	assert.True(t, strings.HasPrefix(hash, "$2a$12$"), "expected default cost 12, got %s", hash)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-passw0rd", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPassword("s3cret-passw0rd", hash))
	assert.False(t, CheckPassword("wrong-password", hash))
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("s3cret-passw0rd", "not-a-bcrypt-hash"))
	assert.False(t, CheckPassword("s3cret-passw0rd", ""))
}
