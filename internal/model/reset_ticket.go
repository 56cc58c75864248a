package model

import "time"

// ResetTicket is a single-use, time-limited authorization for one
// password change without the old password. Only a SHA-256 hash of the
// ticket token is stored; the raw token leaves the process exclusively
// via the notification mail.
type ResetTicket struct {
	ID        string     `json:"id"`
	AccountID string     `json:"accountId"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// IsExpired checks if the ticket has expired
func (t *ResetTicket) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed checks if the ticket has already been redeemed
func (t *ResetTicket) IsUsed() bool {
	return t.UsedAt != nil
}

// Usable reports whether the ticket can still be redeemed
func (t *ResetTicket) Usable() bool {
	return !t.IsUsed() && !t.IsExpired()
}
