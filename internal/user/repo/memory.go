package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/query"
)

var _ Repository = (*MemoryRepo)(nil)

// MemoryRepo keeps users in process memory. It backs STORAGE=memory for
// local runs and the service tests.
type MemoryRepo struct {
	mu    sync.Mutex
	users map[int64]*entity.User
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: map[int64]*entity.User{}, now: time.Now}
}

func (m *MemoryRepo) liveByAccount(account string) *entity.User {
	for _, u := range m.users {
		if u.DeletedAt == nil && u.Account == account {
			return u
		}
	}
	return nil
}

func (m *MemoryRepo) live(id int64) *entity.User {
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil
	}
	return u
}

func (m *MemoryRepo) ExistsByAccount(_ context.Context, account string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveByAccount(account) != nil, nil
}

func (m *MemoryRepo) FindByAccount(_ context.Context, account string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.liveByAccount(account); u != nil {
		c := *u
		return &c, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) FindByCredentials(_ context.Context, account, digest string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.liveByAccount(account); u != nil && u.PasswordDigest == digest {
		c := *u
		return &c, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) FindByID(_ context.Context, id int64) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.live(id); u != nil {
		c := *u
		return &c, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) Insert(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.liveByAccount(u.Account) != nil {
		return ErrDuplicateAccount
	}
	now := m.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	c := *u
	m.users[u.ID] = &c
	return nil
}

func (m *MemoryRepo) Update(_ context.Context, id int64, p entity.Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.live(id)
	if u == nil {
		return false, nil
	}
	p.Apply(u)
	u.UpdatedAt = m.now().UTC()
	return true, nil
}

func (m *MemoryRepo) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.live(id)
	if u == nil {
		return false, nil
	}
	now := m.now().UTC()
	u.DeletedAt = &now
	u.UpdatedAt = now
	return true, nil
}

func (m *MemoryRepo) matching(c query.Criteria) []entity.User {
	out := make([]entity.User, 0, len(m.users))
	for _, u := range m.users {
		if u.DeletedAt == nil && c.Match(*u) {
			out = append(out, *u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryRepo) Count(_ context.Context, c query.Criteria) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matching(c))), nil
}

func (m *MemoryRepo) Page(_ context.Context, c query.Criteria, current, pageSize int) ([]entity.User, error) {
	m.mu.Lock()
	users := m.matching(c)
	m.mu.Unlock()

	sort.SliceStable(users, func(i, j int) bool { return c.Less(users[i], users[j]) })
	offset, ok := pageOffset(current, pageSize)
	if !ok || offset >= len(users) {
		return []entity.User{}, nil
	}
	end := offset + pageSize
	if end > len(users) || end < offset {
		end = len(users)
	}
	return users[offset:end], nil
}
