package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/5kyf4ll/molly-project/internal/auth"
	"go.uber.org/zap"
)

// SessionCookieName is the HttpOnly cookie carrying the login token
const SessionCookieName = "session"

// SessionAuth rejects requests without a valid login session cookie
func SessionAuth(sessions *auth.SessionManager, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || !sessions.Validate(cookie.Value) {
				logger.Debug("unauthenticated request",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "No autenticado. Inicia sesión primero.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionToken extracts the login token from a request, or "" when absent
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
