package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tverlabs/timekeep/internal"
)

// RequireAnyPermission gates a route on the actor holding at least one of
// the listed permissions. Runs after BearerAuth.
func RequireAnyPermission(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := internal.ActorFromContext(r.Context())
			if !ok || actor == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !actor.HasAnyPermission(permissions...) {
				slog.Warn("access denied: actor lacks required permissions",
					"user_id", actor.UserID,
					"required_permissions", permissions,
					"actor_permissions", actor.Permissions)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
