package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestID injects a request ID into the context of each request.
// Chi's built-in middleware is used for compatibility with its log helpers.
func RequestID() func(next http.Handler) http.Handler {
	return middleware.RequestID
}
