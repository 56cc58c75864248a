package handler

import (
	"errors"
	"net/http"

	"github.com/nexusoptimizer/nexus/internal/middleware"
	"github.com/nexusoptimizer/nexus/internal/service"
)

// TwoFactorSetup starts TOTP enrollment for the authenticated account
func (h *Handler) TwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	resp, err := h.twoFactorSvc.Setup(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorAlreadyEnabled) {
			writeError(w, http.StatusConflict, "two_factor_already_enabled", "Two-factor authentication is already enabled.")
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("two-factor setup failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to start two-factor setup")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type twoFactorVerifyRequest struct {
	Code string `json:"code"`
}

// TwoFactorVerify confirms enrollment with a live code
func (h *Handler) TwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req twoFactorVerifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Code is required")
		return
	}

	err := h.twoFactorSvc.VerifyAndEnable(r.Context(), accountID, req.Code, meta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorNotPending):
			writeError(w, http.StatusConflict, "two_factor_not_pending", "No pending two-factor enrollment. Start setup first.")
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			writeError(w, http.StatusBadRequest, "invalid_two_factor_code", "The two-factor code is invalid.")
		default:
			h.log.Error().Err(err).Str("account_id", accountID).Msg("two-factor verification failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to verify two-factor code")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Two-factor authentication enabled."})
}

type twoFactorDisableRequest struct {
	Password string `json:"password"`
}

// TwoFactorDisable turns off the second factor after password re-auth
func (h *Handler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req twoFactorDisableRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Password is required")
		return
	}

	err := h.twoFactorSvc.Disable(r.Context(), accountID, req.Password, meta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorNotEnabled):
			writeError(w, http.StatusConflict, "two_factor_not_enabled", "Two-factor authentication is not enabled.")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "The password is incorrect.")
		default:
			h.log.Error().Err(err).Str("account_id", accountID).Msg("two-factor disable failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to disable two-factor authentication")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Two-factor authentication disabled."})
}
