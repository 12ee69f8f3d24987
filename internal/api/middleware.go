package api

import (
	"context"
	"net/http"
	"strconv"

	"mailmirror/internal/utils"
)

// ContextKey is a custom type for context keys
type ContextKey string

const (
	// UserIDContextKey is the key for the authenticated user id
	UserIDContextKey ContextKey = "userID"
)

// UserAuthMiddleware resolves the caller's user id from the X-User-ID
// header. Session management lives in front of this service; the
// header is what the gateway forwards.
func UserAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			http.Error(w, "X-User-ID header required", http.StatusUnauthorized)
			return
		}
		userID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || userID == 0 {
			http.Error(w, "Invalid X-User-ID header", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, uint(userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user id from the request context
func UserID(r *http.Request) uint {
	if id, ok := r.Context().Value(UserIDContextKey).(uint); ok {
		return id
	}
	return 0
}

// LoggingMiddleware logs each request with status and duration
func LoggingMiddleware(logger *utils.Logger) func(http.Handler) http.Handler {
	return utils.HTTPLoggingMiddleware(logger)
}
