package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/respond"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
)

// Resolver looks up the caller behind a session.
type Resolver interface {
	ResolveCurrentUser(ctx context.Context, sc SessionContext) (*entity.User, error)
}

// Guard allows or denies role-protected operations.
type Guard struct {
	resolver   Resolver
	cookieName string
	logger     *zap.SugaredLogger
}

func NewGuard(resolver Resolver, cookieName string, logger *zap.SugaredLogger) *Guard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Guard{resolver: resolver, cookieName: cookieName, logger: logger}
}

// Decide returns the caller when access to an operation requiring role is
// allowed. An empty role allows everyone without touching the session.
func (g *Guard) Decide(ctx context.Context, sc SessionContext, required entity.Role) (*entity.User, error) {
	if required == "" {
		return nil, nil
	}
	u, err := g.resolver.ResolveCurrentUser(ctx, sc)
	if err != nil {
		return nil, err
	}
	role, ok := entity.ParseRole(u.Role)
	if !ok {
		return nil, apperr.Permission("")
	}
	if required == entity.RoleAdmin && role != entity.RoleAdmin {
		return nil, apperr.Permission("")
	}
	return u, nil
}

// Require wraps next so it only runs for callers holding role. The caller is
// available to next through UserFromContext.
func (g *Guard) Require(role entity.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := g.Decide(r.Context(), FromRequest(r, g.cookieName), role)
		if err != nil {
			g.logger.Debugw("access denied", "path", r.URL.Path, "role", role, "err", err)
			respond.Error(w, g.logger, err)
			return
		}
		if u != nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next(w, r)
	}
}
