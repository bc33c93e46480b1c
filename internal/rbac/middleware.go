package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pressroom-hq/pressroom/internal/platform/httpx"
	"github.com/pressroom-hq/pressroom/internal/shared"
)

// Checker is the cache surface the middleware authorizes against.
type Checker interface {
	Can(ctx context.Context, userID int64, resource, action string) (bool, error)
	CanAny(ctx context.Context, userID int64, checks []Check) (bool, error)
	CanAll(ctx context.Context, userID int64, checks []Check) (bool, error)
	HasRole(ctx context.Context, userID int64, roleName string) (bool, error)
}

// Middleware wires authorization checks into HTTP handlers. Authorization is
// evaluated from the cache, so decisions are at most one TTL stale.
type Middleware struct {
	Checker Checker
	Logger  *slog.Logger
}

// Require ensures the actor holds the single (resource, action) permission.
func (m Middleware) Require(resource, action string) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, userID int64) (bool, error) {
		return m.Checker.Can(r.Context(), userID, resource, action)
	})
}

// RequireAny ensures the actor holds at least one of the given checks.
func (m Middleware) RequireAny(checks ...Check) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, userID int64) (bool, error) {
		return m.Checker.CanAny(r.Context(), userID, checks)
	})
}

// RequireAll ensures the actor holds every one of the given checks.
func (m Middleware) RequireAll(checks ...Check) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, userID int64) (bool, error) {
		return m.Checker.CanAll(r.Context(), userID, checks)
	})
}

// RequireRole ensures the actor is a member of the named role.
func (m Middleware) RequireRole(roleName string) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request, userID int64) (bool, error) {
		return m.Checker.HasRole(r.Context(), userID, roleName)
	})
}

// guard evaluates check for the session actor. No actor yields 401, a denied
// check 403, and a resolution failure 500: authorization fails closed rather
// than treating an unresolvable permission set as an implicit grant.
func (m Middleware) guard(check func(*http.Request, int64) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.ActorID(r.Context())
			if !ok {
				httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			granted, err := check(r, userID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorization check failed", slog.Int64("user_id", userID), slog.Any("error", err))
				}
				httpx.Error(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if !granted {
				httpx.Error(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
