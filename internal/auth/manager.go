// Package auth registers and logs in users, resolves the caller behind a
// session token and decides role-protected access.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
)

const (
	MinAccountLen  = 4
	MinPasswordLen = 8
	// PlaceholderDisplayName is given to self-registered users.
	PlaceholderDisplayName = "anonymous"
)

// IDGenerator hands out new user ids.
type IDGenerator interface {
	NextID() int64
}

type Options struct {
	// IdempotentLogout turns logout of an absent session into a no-op.
	IdempotentLogout bool
}

// Manager orchestrates registration, login, caller resolution and logout.
type Manager struct {
	users    userrepo.Repository
	sessions session.Store
	tokens   *session.TokenCodec
	codec    *credential.Codec
	ids      IDGenerator
	logger   *zap.SugaredLogger
	opts     Options
}

func NewManager(users userrepo.Repository, sessions session.Store, tokens *session.TokenCodec, codec *credential.Codec, ids IDGenerator, logger *zap.SugaredLogger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{users: users, sessions: sessions, tokens: tokens, codec: codec, ids: ids, logger: logger, opts: opts}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func validateCredentials(account, password string) error {
	if blank(account) || blank(password) {
		return apperr.Validation("account and password are required")
	}
	if len(account) < MinAccountLen {
		return apperr.Validation("account is too short")
	}
	if len(password) < MinPasswordLen {
		return apperr.Validation("password is too short")
	}
	return nil
}

// Register creates a USER account and returns its id.
func (m *Manager) Register(ctx context.Context, account, password, confirmPassword string) (int64, error) {
	if blank(confirmPassword) {
		return 0, apperr.Validation("account and password are required")
	}
	if err := validateCredentials(account, password); err != nil {
		return 0, err
	}
	if len(confirmPassword) < MinPasswordLen {
		return 0, apperr.Validation("password is too short")
	}
	if password != confirmPassword {
		return 0, apperr.Validation("passwords do not match")
	}

	exists, err := m.users.ExistsByAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}
	if exists {
		return 0, apperr.Conflict("account already exists")
	}

	u := &entity.User{
		ID:             m.ids.NextID(),
		Account:        account,
		PasswordDigest: m.codec.Digest(password),
		DisplayName:    PlaceholderDisplayName,
		Role:           entity.RoleUser.String(),
	}
	if err := m.users.Insert(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateAccount) {
			return 0, apperr.Wrap(apperr.KindConflict, "account already exists", err)
		}
		return 0, fmt.Errorf("register: %w", err)
	}
	m.logger.Debugw("user registered", "id", u.ID, "account", u.Account)
	return u.ID, nil
}

// Login verifies credentials, opens a session and returns the caller with the
// signed session token. Unknown account and wrong password fail identically.
func (m *Manager) Login(ctx context.Context, account, password string) (*entity.Principal, string, error) {
	if err := validateCredentials(account, password); err != nil {
		return nil, "", err
	}
	u, err := m.users.FindByCredentials(ctx, account, m.codec.Digest(password))
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			m.logger.Debugw("login rejected", "account", account)
			return nil, "", apperr.Authentication("")
		}
		return nil, "", fmt.Errorf("login: %w", err)
	}

	sid, err := m.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, "", fmt.Errorf("login: %w", err)
	}
	token, err := m.tokens.Issue(sid)
	if err != nil {
		_, _ = m.sessions.Invalidate(ctx, sid)
		return nil, "", fmt.Errorf("login: %w", err)
	}
	return ToPrincipal(u), token, nil
}

// sessionID verifies the token and returns the session id it carries.
func (m *Manager) sessionID(sc SessionContext) (string, error) {
	if sc.Empty() {
		return "", apperr.NotAuthenticated("")
	}
	sid, err := m.tokens.Parse(sc.Token)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNotAuthenticated, "", err)
	}
	return sid, nil
}

// ResolveCurrentUser returns the live user bound to the session. The user is
// always re-read so deletions after login take effect immediately.
func (m *Manager) ResolveCurrentUser(ctx context.Context, sc SessionContext) (*entity.User, error) {
	sid, err := m.sessionID(sc)
	if err != nil {
		return nil, err
	}
	uid, ok, err := m.sessions.Resolve(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return nil, apperr.NotAuthenticated("")
	}
	u, err := m.users.FindByID(ctx, uid)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apperr.NotAuthenticated("")
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return u, nil
}

// Logout invalidates the session. Logging out an absent session is an
// OperationError unless Options.IdempotentLogout is set.
func (m *Manager) Logout(ctx context.Context, sc SessionContext) error {
	sid, err := m.sessionID(sc)
	if err != nil {
		if m.opts.IdempotentLogout {
			return nil
		}
		return apperr.Wrap(apperr.KindOperation, "not logged in", err)
	}
	existed, err := m.sessions.Invalidate(ctx, sid)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !existed && !m.opts.IdempotentLogout {
		return apperr.Operation("not logged in")
	}
	return nil
}

// ToPrincipal strips secrets from u. A nil user maps to nil.
func ToPrincipal(u *entity.User) *entity.Principal {
	if u == nil {
		return nil
	}
	return &entity.Principal{
		ID:          u.ID,
		Account:     u.Account,
		DisplayName: u.DisplayName,
		AvatarRef:   u.AvatarRef,
		Profile:     u.Profile,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// ToPrincipalList maps users to principals. The result is never nil.
func ToPrincipalList(users []entity.User) []entity.Principal {
	out := make([]entity.Principal, 0, len(users))
	for i := range users {
		out = append(out, *ToPrincipal(&users[i]))
	}
	return out
}
