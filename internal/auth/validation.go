package auth

import (
	"fmt"
	"strings"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 50
)

// ValidateUsername checks that a username is 3-50 characters of
// alphanumerics and underscores.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLength {
		return fmt.Errorf("username must be at least %d characters long", usernameMinLength)
	}
	if len(username) > usernameMaxLength {
		return fmt.Errorf("username must be at most %d characters long", usernameMaxLength)
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return fmt.Errorf("username may only contain letters, digits and underscores")
		}
	}
	return nil
}

// ValidatePassword checks the password against the minimum length.
// No character class requirements (NIST 800-63B compliant).
func ValidatePassword(password string, minLength int) error {
	if minLength == 0 {
		minLength = 8
	}
	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}
	return nil
}

// ValidateEmail performs a structural check on an email address.
func ValidateEmail(email string) error {
	if len(email) < 3 || len(email) > 255 {
		return fmt.Errorf("invalid email address")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) == 0 {
		return fmt.Errorf("invalid email address")
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
