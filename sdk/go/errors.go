package nexus

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK.
var (
	// ErrNoToken is returned when no session token is found in the request.
	ErrNoToken = fmt.Errorf("nexus: no session token provided")

	// ErrTokenInvalid is returned when the session token is invalid or expired.
	ErrTokenInvalid = fmt.Errorf("nexus: token is invalid or expired")
)

// APIError represents an error response from the Nexus API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nexus: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// apiErrorWrapper matches the API error envelope.
type apiErrorWrapper struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var wrapper apiErrorWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != "" {
		return &APIError{
			StatusCode: statusCode,
			Code:       wrapper.Error.Code,
			Message:    wrapper.Error.Message,
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTwoFactorRequired reports whether a login failed because the account
// requires a TOTP code. Retry the login with LoginRequest.TwoFactorCode set.
func IsTwoFactorRequired(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == "two_factor_required"
}

// IsAccountLocked reports whether a login was rejected because the
// account is temporarily locked.
func IsAccountLocked(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == "account_locked"
}

// IsRateLimited reports whether the request was rejected by the server's
// rate limiter.
func IsRateLimited(err error) bool {
	apiErr, ok := IsAPIError(err)
	return ok && apiErr.Code == "rate_limited"
}
