package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/query"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// DefaultAdminPassword is assigned to users created by an admin.
	DefaultAdminPassword = "12345678"
)

// Service implements the admin user operations.
type Service struct {
	repo            userrepo.Repository
	codec           *credential.Codec
	ids             auth.IDGenerator
	defaultPassword string
	logger          *zap.SugaredLogger
}

func NewService(r userrepo.Repository, codec *credential.Codec, ids auth.IDGenerator, defaultPassword string, logger *zap.SugaredLogger) *Service {
	if defaultPassword == "" {
		defaultPassword = DefaultAdminPassword
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, codec: codec, ids: ids, defaultPassword: defaultPassword, logger: logger}
}

// AddInput is the admin supplied part of a new user.
type AddInput struct {
	Account     string
	DisplayName string
	AvatarRef   string
	Profile     string
	Role        string
}

// Page is one page of a user listing.
type Page struct {
	Records  []entity.Principal `json:"records"`
	Total    int64              `json:"total"`
	Current  int                `json:"current"`
	PageSize int                `json:"pageSize"`
}

func normalizeRole(s string) (string, error) {
	r, ok := entity.ParseRole(s)
	if !ok {
		return "", apperr.Validation("unknown role: " + s)
	}
	return r.String(), nil
}

func checkID(id int64) error {
	if id <= 0 {
		return apperr.Validation("id must be positive")
	}
	return nil
}

// Add creates a user with the default password. Role defaults to USER.
func (s *Service) Add(ctx context.Context, in AddInput) (int64, error) {
	if strings.TrimSpace(in.Account) == "" {
		return 0, apperr.Validation("account is required")
	}
	if len(in.Account) < auth.MinAccountLen {
		return 0, apperr.Validation("account is too short")
	}
	role := entity.RoleUser.String()
	if in.Role != "" {
		r, err := normalizeRole(in.Role)
		if err != nil {
			return 0, err
		}
		role = r
	}

	u := &entity.User{
		ID:             s.ids.NextID(),
		Account:        in.Account,
		PasswordDigest: s.codec.Digest(s.defaultPassword),
		DisplayName:    in.DisplayName,
		AvatarRef:      in.AvatarRef,
		Profile:        in.Profile,
		Role:           role,
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateAccount) {
			return 0, apperr.Wrap(apperr.KindConflict, "account already exists", err)
		}
		return 0, fmt.Errorf("add user: %w", err)
	}
	s.logger.Debugw("user added", "id", u.ID, "account", u.Account, "role", role)
	return u.ID, nil
}

// Get returns the full user record.
func (s *Service) Get(ctx context.Context, id int64) (*entity.User, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetVO returns the de-sensitized user.
func (s *Service) GetVO(ctx context.Context, id int64) (*entity.Principal, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return auth.ToPrincipal(u), nil
}

// Delete soft-deletes a user and reports whether one was removed.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return ok, nil
}

// Update changes only the fields set in p.
func (s *Service) Update(ctx context.Context, id int64, p entity.Patch) (bool, error) {
	if err := checkID(id); err != nil {
		return false, err
	}
	if p.Role != nil {
		r, err := normalizeRole(*p.Role)
		if err != nil {
			return false, err
		}
		p.Role = &r
	}
	ok, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	if !ok {
		return false, apperr.Operation("user not updated")
	}
	return true, nil
}

// List returns one page of principals matching req.
func (s *Service) List(ctx context.Context, req *query.Request) (*Page, error) {
	c, err := query.Build(req)
	if err != nil {
		return nil, err
	}
	current, size := c.Current(), c.PageSize()
	if current == 0 {
		current = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	total, err := s.repo.Count(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := s.repo.Page(ctx, c, current, size)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &Page{Records: auth.ToPrincipalList(users), Total: total, Current: current, PageSize: size}, nil
}
