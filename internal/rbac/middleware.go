package rbac

import (
	"encoding/json"
	"net/http"
)

// Require enforces a single permission: no identity is 401, a role without
// the permission (including INACTIVE) is 403.
func Require(perm string) func(http.Handler) http.Handler {
	return RequireAny(perm)
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if !id.Authenticated() {
				deny(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			if id.Role == RoleInactive {
				deny(w, http.StatusForbidden, "forbidden", "account inactive")
				return
			}
			if !defaultChecker.Any(id.Role, perms...) {
				deny(w, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	})
}
