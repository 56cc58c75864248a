package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nexusoptimizer/nexus/internal/auth"
	"github.com/nexusoptimizer/nexus/internal/middleware"
	"github.com/nexusoptimizer/nexus/internal/service"
)

// --- Signup Handler ---

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Signup handles account creation
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Username and password are required")
		return
	}

	resp, err := h.authSvc.Signup(r.Context(), service.SignupRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Meta:     meta(r),
	})
	if err != nil {
		h.writeAuthError(w, err, "signup failed", "Signup failed")
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// --- Login Handler ---

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

// Login handles authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Username and password are required")
		return
	}

	resp, err := h.authSvc.Login(r.Context(), service.LoginRequest{
		Username:      req.Username,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		Meta:          meta(r),
	})
	if err != nil {
		h.writeAuthError(w, err, "login failed", "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Logout Handler ---

// Logout records the logout; the client discards its token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	if err := h.authSvc.Logout(r.Context(), accountID, meta(r)); err != nil {
		h.log.Error().Err(err).Msg("logout failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Logout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
}

// --- Token Refresh Handler ---

type refreshRequest struct {
	Token string `json:"token,omitempty"`
}

// Refresh exchanges a still-valid token for a fresh one
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = readJSON(r, &req) // body is optional when the Authorization header is set

	tokenString := req.Token
	if tokenString == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Token is required")
		return
	}

	resp, err := h.authSvc.Refresh(r.Context(), tokenString, meta(r))
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeError(w, http.StatusUnauthorized, "token_invalid", "The token is invalid or expired.")
			return
		}
		h.log.Error().Err(err).Msg("token refresh failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Password Reset Request Handler ---

type passwordResetRequestPayload struct {
	Email string `json:"email"`
}

// PasswordResetRequest initiates a password reset
func (h *Handler) PasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequestPayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Email is required")
		return
	}

	resp, err := h.authSvc.RequestPasswordReset(r.Context(), req.Email, meta(r))
	if err != nil {
		h.log.Error().Err(err).Msg("password reset request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process request")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Password Reset Complete Handler ---

type passwordResetCompletePayload struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// PasswordResetComplete redeems a reset ticket
func (h *Handler) PasswordResetComplete(w http.ResponseWriter, r *http.Request) {
	var req passwordResetCompletePayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Token and new password are required")
		return
	}

	err := h.authSvc.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, meta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResetTicketInvalid):
			writeError(w, http.StatusBadRequest, "reset_token_invalid", "The reset token is invalid, expired, or already used.")
		case errors.Is(err, service.ErrValidation):
			h.writeValidationError(w, err)
		default:
			h.log.Error().Err(err).Msg("password reset completion failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to reset password")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully. Please log in with your new password."})
}

// --- Change Password Handler ---

type changePasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles authenticated password change
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req changePasswordPayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Current password and new password are required")
		return
	}

	err := h.authSvc.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword, meta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "The current password is incorrect.")
		case errors.Is(err, service.ErrValidation):
			h.writeValidationError(w, err)
		default:
			h.log.Error().Err(err).Msg("password change failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to change password")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully."})
}

// writeAuthError maps signup/login service errors to HTTP responses
func (h *Handler) writeAuthError(w http.ResponseWriter, err error, logMsg, fallback string) {
	var lockedErr *service.AccountLockedError

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "The username or password is incorrect.")
	case errors.As(err, &lockedErr):
		writeErrorWithDetails(w, http.StatusLocked, "account_locked",
			"Your account is temporarily locked due to too many failed login attempts.",
			map[string]interface{}{
				"lockedUntil": lockedErr.Until,
				"retryAfter":  int(lockedErr.RetryAfter.Seconds()),
			})
	case errors.Is(err, service.ErrTwoFactorRequired):
		writeError(w, http.StatusUnauthorized, "two_factor_required", "A two-factor code is required to log in.")
	case errors.Is(err, service.ErrInvalidTwoFactorCode):
		writeError(w, http.StatusUnauthorized, "invalid_two_factor_code", "The two-factor code is invalid.")
	case errors.Is(err, service.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "duplicate_username", "An account with this username already exists.")
	case errors.Is(err, service.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "duplicate_email", "An account with this email already exists.")
	case errors.Is(err, service.ErrValidation):
		h.writeValidationError(w, err)
	default:
		h.log.Error().Err(err).Msg(logMsg)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

// writeValidationError surfaces field-level validation detail
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		writeErrorWithDetails(w, http.StatusBadRequest, "validation_error", validationErr.Reason,
			map[string]interface{}{"field": validationErr.Field})
		return
	}
	writeError(w, http.StatusBadRequest, "validation_error", err.Error())
}
