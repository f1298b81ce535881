// Package middleware provides HTTP middleware for hooktrace.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hooktrace/hooktrace/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an identifier for log correlation.
// A client-supplied X-Request-ID is honored so the hook script's own
// ID threads through; otherwise one is minted. The ID lands in the
// context and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
