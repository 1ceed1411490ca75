package middleware

import (
	"fmt"
	"net/http"
)

// RequireRole admits only tokens whose role claim is one of allowed, such as the backend's
// "authenticated" and "service_role". Anonymous tokens are turned away.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, ok := set[claims.Role]; !ok {
				writeJSONError(w, http.StatusForbidden, fmt.Sprintf("role %q may not mount screens", claims.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
