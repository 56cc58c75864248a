package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice"))
	assert.NoError(t, ValidateUsername("bob_42"))
	assert.NoError(t, ValidateUsername("ABC"))
	assert.NoError(t, ValidateUsername(strings.Repeat("a", 50)))

	assert.Error(t, ValidateUsername(""))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername(strings.Repeat("a", 51)))
	assert.Error(t, ValidateUsername("with space"))
	assert.Error(t, ValidateUsername("with-dash"))
	assert.Error(t, ValidateUsername("émile"))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("12345678", 8))
	assert.Error(t, ValidatePassword("1234567", 8))

	// Zero min length falls back to 8
	assert.NoError(t, ValidatePassword("12345678", 0))
	assert.Error(t, ValidatePassword("short", 0))

	assert.NoError(t, ValidatePassword("abcd", 4))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.NoError(t, ValidateEmail("a.b+c@sub.example.org"))

	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("no-at-sign"))
	assert.Error(t, ValidateEmail("@example.com"))
	assert.Error(t, ValidateEmail("alice@"))
	assert.Error(t, ValidateEmail("alice@localhost"))
	assert.Error(t, ValidateEmail("a@b@c.com"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
	assert.Equal(t, "bob@example.com", NormalizeEmail("bob@example.com"))
}
