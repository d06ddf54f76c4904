package auth

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// RequireToken returns a middleware that checks for a valid bearer token in the
// Authorization header against the configured shared secret. An empty
// configured token disables the check (development mode). Returns 401
// Unauthorized when authentication fails.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Println("Auth: No Authorization header present")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Parse Authorization header: "Bearer <token>" (RFC 7235).
			// Bearer scheme is case-insensitive per RFC 7235.
			fields := strings.Fields(authHeader)
			if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
				log.Println("Auth: Invalid Authorization header format")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(fields[1]), []byte(token)) != 1 {
				log.Println("Auth: Token mismatch")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ValidateToken reports whether the presented token matches the configured one.
// An empty configured token accepts anything (development mode).
func ValidateToken(configured, presented string) bool {
	if configured == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
