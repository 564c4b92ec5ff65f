package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

var _ session.Store = (*SessionRepo)(nil)

// SessionRepo persists sessions in the user_sessions table so they survive
// restarts and are shared between instances.
type SessionRepo struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

func NewSessionRepo(db *sqlx.DB, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &SessionRepo{db: db, ttl: ttl, now: time.Now}
}

func (r *SessionRepo) Create(ctx context.Context, userID int64) (string, error) {
	id := utilities.NewKSUID()
	now := r.now().UTC()
	query := `INSERT INTO user_sessions (id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, id, userID, now, now.Add(r.ttl)); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Resolve slides expires_at in the same statement that checks it.
func (r *SessionRepo) Resolve(ctx context.Context, sessionID string) (int64, bool, error) {
	now := r.now().UTC()
	query := `UPDATE user_sessions SET expires_at = $1 WHERE id = $2 AND expires_at > $3 RETURNING user_id`
	var userID int64
	if err := r.db.QueryRowxContext(ctx, query, now.Add(r.ttl), sessionID, now).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve session: %w", err)
	}
	return userID, true, nil
}

func (r *SessionRepo) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	query := `DELETE FROM user_sessions WHERE id = $1 AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, sessionID, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("invalidate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SessionRepo) PurgeExpired(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
