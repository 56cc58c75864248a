package nexus

import "time"

// Account represents an account returned by the API.
type Account struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email,omitempty"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SignupRequest contains the data for creating a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// LoginRequest contains the credentials for authentication.
type LoginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

// Session is returned on successful signup, login, and refresh.
type Session struct {
	Account   *Account `json:"account"`
	Token     string   `json:"token"`
	TokenType string   `json:"tokenType"`
	ExpiresIn int      `json:"expiresIn"`
}
