package handler

import (
	"net/http"

	"github.com/nexusoptimizer/nexus/internal/middleware"
	"github.com/nexusoptimizer/nexus/internal/model"
)

// GetSecurityLog returns the account's security events in insertion order
func (h *Handler) GetSecurityLog(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	entries, err := h.securityLogSvc.List(r.Context(), accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to list security log")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get security log")
		return
	}

	if entries == nil {
		entries = []*model.SecurityLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ClearSecurityLog removes the account's security events
func (h *Handler) ClearSecurityLog(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	if err := h.securityLogSvc.Clear(r.Context(), accountID); err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("failed to clear security log")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to clear security log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Security log cleared."})
}
