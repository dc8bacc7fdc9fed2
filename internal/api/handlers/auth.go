package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/5kyf4ll/molly-project/internal/api/middleware"
	"github.com/5kyf4ll/molly-project/internal/auth"
	"go.uber.org/zap"
)

// loginRequest is the body of POST /api/login
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler authenticates against the configured credentials and sets the
// HttpOnly session cookie.
func LoginHandler(sessions *auth.SessionManager, username, password string, ttl time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, "Cuerpo de solicitud inválido.", http.StatusBadRequest)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(password)) == 1
		if !userOK || !passOK {
			logger.Warn("failed login attempt",
				zap.String("username", req.Username),
				zap.String("remote_addr", r.RemoteAddr))
			errorResponse(w, "Credenciales inválidas.", http.StatusUnauthorized)
			return
		}

		token := sessions.Create(req.Username)

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(ttl.Seconds()),
		})

		logger.Info("user logged in", zap.String("username", req.Username))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LogoutHandler terminates the login session bound to the request cookie
func LogoutHandler(sessions *auth.SessionManager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := middleware.SessionToken(r); token != "" {
			sessions.End(token)
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
