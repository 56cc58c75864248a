package model

import (
	"encoding/json"
	"time"
)

// Settings holds a user's dashboard preferences. The preference document
// is opaque to the server (theme, overlay placement, toast verbosity and
// the like are rendered client-side).
type Settings struct {
	AccountID   string          `json:"accountId"`
	Preferences json.RawMessage `json:"preferences"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// DefaultSettings returns the settings document for a fresh account
func DefaultSettings(accountID string) *Settings {
	return &Settings{
		AccountID:   accountID,
		Preferences: json.RawMessage(`{}`),
		UpdatedAt:   time.Now(),
	}
}
