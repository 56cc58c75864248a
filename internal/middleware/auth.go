package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nexusoptimizer/nexus/internal/auth"
)

// Context keys for authenticated account data
const (
	AccountIDKey contextKey = "account_id"
	UsernameKey  contextKey = "username"
)

// Auth creates an authentication middleware that validates bearer tokens
func (m *Middleware) Auth(tokenSvc *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
					tokenString = parts[1]
				}
			}

			if tokenString == "" {
				http.Error(w, `{"error":{"code":"unauthorized","message":"Authentication required"}}`, http.StatusUnauthorized)
				return
			}

			claims, err := tokenSvc.Verify(tokenString)
			if err != nil {
				m.log.Debug().Err(err).Msg("token validation failed")
				http.Error(w, `{"error":{"code":"token_invalid","message":"The session token is invalid or expired"}}`, http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, AccountIDKey, claims.AccountID())
			ctx = context.WithValue(ctx, UsernameKey, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID retrieves the authenticated account ID from context
func GetAccountID(ctx context.Context) string {
	if id, ok := ctx.Value(AccountIDKey).(string); ok {
		return id
	}
	return ""
}

// GetUsername retrieves the authenticated username from context
func GetUsername(ctx context.Context) string {
	if name, ok := ctx.Value(UsernameKey).(string); ok {
		return name
	}
	return ""
}
