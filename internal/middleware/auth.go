package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health": true,
}

// APIKey returns middleware that validates a static bearer token on every
// request. An empty key disables authentication entirely, which is the
// expected mode for single-team deployments on a trusted network.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// WebSocket clients cannot set headers; accept ?token= instead.
			if r.URL.Path == "/ws" {
				if tokenEqual(r.URL.Query().Get("token"), key) {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || !tokenEqual(token, key) {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// tokenEqual compares tokens in constant time.
func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"authorization required"}`))
}
