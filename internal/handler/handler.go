package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexusoptimizer/nexus/internal/config"
	"github.com/nexusoptimizer/nexus/internal/database"
	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	db             *database.Postgres
	rdb            *database.Redis
	log            *logger.Logger
	cfg            *config.Config
	authSvc        *service.AuthService
	twoFactorSvc   *service.TwoFactorService
	securityLogSvc *service.SecurityLogService
}

// New creates a new Handler instance. db and rdb are nil when the memory
// storage driver is active.
func New(db *database.Postgres, rdb *database.Redis, log *logger.Logger, cfg *config.Config, authSvc *service.AuthService, twoFactorSvc *service.TwoFactorService, securityLogSvc *service.SecurityLogService) *Handler {
	return &Handler{
		db:             db,
		rdb:            rdb,
		log:            log,
		cfg:            cfg,
		authSvc:        authSvc,
		twoFactorSvc:   twoFactorSvc,
		securityLogSvc: securityLogSvc,
	}
}

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	errBody := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if details != nil {
		errBody["details"] = details
	}
	writeJSON(w, status, map[string]interface{}{"error": errBody})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return service.CleanIP(r.RemoteAddr)
}

// meta builds the request metadata attached to security events
func meta(r *http.Request) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
