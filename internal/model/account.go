package model

import (
	"time"
)

// Account represents a dashboard user account
type Account struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	PasswordHash   string     `json:"-"` // never expose password hash
	Locked         bool       `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	FailedAttempts int        `json:"-"`
	TwoFactor      TwoFactor  `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TwoFactor holds the TOTP second-factor state for an account
type TwoFactor struct {
	// Enabled is set only after the owner has verified a live code.
	Enabled bool `json:"-"`
	// Secret is the base32 TOTP secret. Present but unverified while
	// enrollment is pending.
	Secret string `json:"-"`
}

// IsLocked reports whether the account is currently locked.
// An account whose lockedUntil has passed is logically unlocked even
// before the flag is cleared (lazy unlock on next access).
func (a *Account) IsLocked() bool {
	if !a.Locked || a.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*a.LockedUntil)
}

// LockRemaining returns how long until the lock expires, or zero if the
// account is not locked.
func (a *Account) LockRemaining() time.Duration {
	if !a.IsLocked() {
		return 0
	}
	return time.Until(*a.LockedUntil)
}
