package internal

import (
	"context"
	"time"
)

// Actor is the authenticated identity behind a request. Every mutating
// operation requires one; tenant scoping flows from here.
type Actor struct {
	UserID      string
	TenantID    string
	Permissions []string
}

func (a *Actor) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (a *Actor) HasAnyPermission(permissions ...string) bool {
	for _, p := range a.Permissions {
		for _, required := range permissions {
			if p == required {
				return true
			}
		}
	}
	return false
}

func (a *Actor) IsManager() bool {
	return a.HasAnyPermission("approve_timesheets", "manage_payroll", "admin")
}

type ctxKey string

const ContextActorKey ctxKey = "actor"

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	if ctx == nil {
		return nil, false
	}
	actor, ok := ctx.Value(ContextActorKey).(*Actor)
	return actor, ok
}

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, ContextActorKey, actor)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
