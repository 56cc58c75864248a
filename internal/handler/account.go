package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexusoptimizer/nexus/internal/middleware"
	"github.com/nexusoptimizer/nexus/internal/model"
	"github.com/nexusoptimizer/nexus/internal/repository"
	"github.com/nexusoptimizer/nexus/internal/service"
)

// profileResponse is the account as presented to its owner
func profileResponse(account *model.Account) map[string]interface{} {
	return map[string]interface{}{
		"id":               account.ID,
		"username":         account.Username,
		"email":            account.Email,
		"twoFactorEnabled": account.TwoFactor.Enabled,
		"createdAt":        account.CreatedAt,
		"updatedAt":        account.UpdatedAt,
	}
}

// GetProfile returns the authenticated account's profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	account, err := h.authSvc.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
			return
		}
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to get account")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get profile")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(account))
}

type updateProfileRequest struct {
	Email string `json:"email"`
}

// UpdateProfile updates the mutable profile fields (currently the email)
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req updateProfileRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Email is required")
		return
	}

	account, err := h.authSvc.UpdateEmail(r.Context(), accountID, req.Email, meta(r))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Account not found")
		case errors.Is(err, service.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, "duplicate_email", "An account with this email already exists.")
		case errors.Is(err, service.ErrValidation):
			h.writeValidationError(w, err)
		default:
			h.log.Error().Err(err).Msg("profile update failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update profile")
		}
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(account))
}

// GetSettings returns the account's settings document
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	settings, err := h.authSvc.GetSettings(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to get settings")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings replaces the account's settings document
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var preferences json.RawMessage
	if err := readJSON(r, &preferences); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	settings := &model.Settings{
		AccountID:   accountID,
		Preferences: preferences,
	}
	if err := h.authSvc.UpdateSettings(r.Context(), settings, meta(r)); err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to update settings")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}
