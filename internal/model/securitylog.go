package model

import "time"

// SecurityLogEntry is an append-only record of a security-relevant event.
// Entries are never mutated after creation.
type SecurityLogEntry struct {
	ID        string     `json:"id"`
	AccountID *string    `json:"accountId,omitempty"` // nil for unauthenticated failures
	Event     string     `json:"event"`
	Detail    string     `json:"detail,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Security event kinds
const (
	EventAccountCreated         = "account_created"
	EventLoginSuccess           = "login_success"
	EventLoginFailed            = "login_failed"
	EventAccountLocked          = "account_locked"
	EventLogout                 = "logout"
	EventTokenRefreshed         = "token_refreshed"
	EventPasswordChanged        = "password_changed"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordResetCompleted = "password_reset_completed"
	EventProfileUpdated         = "profile_updated"
	EventSettingsUpdated        = "settings_updated"
	EventTwoFactorEnabled       = "two_factor_enabled"
	EventTwoFactorDisabled      = "two_factor_disabled"
	EventTwoFactorFailed        = "two_factor_failed"
)
