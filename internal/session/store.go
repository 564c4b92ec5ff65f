// Package session maps opaque session ids to user ids and signs those ids
// into the token clients carry between requests.
package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultTTL is the idle timeout applied when none is configured.
const DefaultTTL = 30 * time.Minute

// Store keeps sessionId → userId bindings. An absent or expired session is
// reported as ok=false, never as an error.
type Store interface {
	Create(ctx context.Context, userID int64) (string, error)
	// Resolve returns the bound user and slides the session's idle expiry.
	Resolve(ctx context.Context, sessionID string) (userID int64, ok bool, err error)
	// Invalidate removes the session. Exactly one of several concurrent
	// callers for the same id observes true.
	Invalidate(ctx context.Context, sessionID string) (bool, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// RunPurger removes expired sessions every interval until ctx is done.
func RunPurger(ctx context.Context, store Store, clock clockwork.Clock, interval time.Duration, logger *zap.SugaredLogger) {
	if interval <= 0 {
		return
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warnw("session purge failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Debugw("purged expired sessions", "count", n)
			}
		}
	}
}
