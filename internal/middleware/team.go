package middleware

import (
	"context"
	"net/http"
)

const headerTeamID = "X-Team-ID"

type teamCtxKey struct{}

// TeamID is middleware that extracts the team identifier from the
// X-Team-ID header and stores it in the request context. The stored
// value is empty when the header is absent; callers resolve their own
// fallback (query parameter, configured default) so the header never
// shadows either.
func TeamID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), teamCtxKey{}, r.Header.Get(headerTeamID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TeamFromContext returns the team ID stored in ctx, or fallback when
// none was set.
func TeamFromContext(ctx context.Context, fallback string) string {
	if team, ok := ctx.Value(teamCtxKey{}).(string); ok && team != "" {
		return team
	}
	return fallback
}
