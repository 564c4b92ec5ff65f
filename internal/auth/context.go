package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
)

// DefaultCookieName names the session cookie when none is configured.
const DefaultCookieName = "SESSION"

// SessionContext is the caller's session handle for one request. It is
// passed explicitly to every operation that needs the session.
type SessionContext struct {
	Token string
}

// Empty reports whether the request carried no session token.
func (sc SessionContext) Empty() bool { return sc.Token == "" }

// FromRequest reads the session token from the bearer header, falling back
// to the session cookie.
func FromRequest(r *http.Request, cookieName string) SessionContext {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return SessionContext{Token: strings.TrimSpace(h[7:])}
		}
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return SessionContext{Token: c.Value}
	}
	return SessionContext{}
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying the resolved caller.
func WithUser(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the caller stored by Guard.Require.
func UserFromContext(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*entity.User)
	return u, ok && u != nil
}
