package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/query"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrDuplicateAccount = errors.New("account already exists")
)

// Repository is the persistence contract the auth and user services consume.
// Soft-deleted users are invisible to every method.
type Repository interface {
	ExistsByAccount(ctx context.Context, account string) (bool, error)
	FindByAccount(ctx context.Context, account string) (*entity.User, error)
	FindByCredentials(ctx context.Context, account, digest string) (*entity.User, error)
	FindByID(ctx context.Context, id int64) (*entity.User, error)
	// Insert stores u; a live user with the same account yields ErrDuplicateAccount.
	Insert(ctx context.Context, u *entity.User) error
	Update(ctx context.Context, id int64, p entity.Patch) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context, c query.Criteria) (int64, error)
	// Page returns page `current` (1-based) of size pageSize.
	Page(ctx context.Context, c query.Criteria, current, pageSize int) ([]entity.User, error)
}

var _ Repository = (*UserRepo)(nil)

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db, now: time.Now} }

const userColumns = `id, account, password_digest, display_name, avatar_ref, profile, role, created_at, updated_at, deleted_at`

// ExistsByAccount reports whether a live user holds account.
func (r *UserRepo) ExistsByAccount(ctx context.Context, account string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE account=$1 AND deleted_at IS NULL)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, account); err != nil {
		return false, fmt.Errorf("exists by account: %w", err)
	}
	return exists, nil
}

// FindByAccount fetches a live user by account.
func (r *UserRepo) FindByAccount(ctx context.Context, account string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE account=$1 AND deleted_at IS NULL`
	return r.get(ctx, q, account)
}

// FindByCredentials fetches the live user matching both account and digest.
func (r *UserRepo) FindByCredentials(ctx context.Context, account, digest string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE account=$1 AND password_digest=$2 AND deleted_at IS NULL`
	return r.get(ctx, q, account, digest)
}

// FindByID fetches a live user by id.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1 AND deleted_at IS NULL`
	return r.get(ctx, q, id)
}

func (r *UserRepo) get(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Insert stores a new user row. The caller assigns u.ID; timestamps are set here.
func (r *UserRepo) Insert(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, account, password_digest, display_name, avatar_ref, profile, role, created_at, updated_at)
		  VALUES (:id, :account, :password_digest, :display_name, :avatar_ref, :profile, :role, :created_at, :updated_at)`
	now := r.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update applies the set fields of p to a live user. It reports whether a row changed.
func (r *UserRepo) Update(ctx context.Context, id int64, p entity.Patch) (bool, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if p.DisplayName != nil {
		sets = append(sets, "display_name=?")
		args = append(args, *p.DisplayName)
	}
	if p.AvatarRef != nil {
		sets = append(sets, "avatar_ref=?")
		args = append(args, *p.AvatarRef)
	}
	if p.Profile != nil {
		sets = append(sets, "profile=?")
		args = append(args, *p.Profile)
	}
	if p.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, *p.Role)
	}
	sets = append(sets, "updated_at=?")
	args = append(args, r.now().UTC(), id)

	q := r.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id=? AND deleted_at IS NULL`)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return affected(res)
}

// Delete soft-deletes a live user.
func (r *UserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE users SET deleted_at=$2, updated_at=$2 WHERE id=$1 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, id, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return affected(res)
}

// Count returns how many live users match c.
func (r *UserRepo) Count(ctx context.Context, c query.Criteria) (int64, error) {
	where, args := c.Where()
	q := r.db.Rebind(`SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND (` + where + `)`)
	var n int64
	if err := r.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// pageOffset returns the first row index of page current. ok is false when
// the page starts beyond any addressable row.
func pageOffset(current, pageSize int) (int, bool) {
	if current <= 1 || pageSize <= 0 {
		return 0, true
	}
	if current-1 > math.MaxInt/pageSize {
		return 0, false
	}
	return (current - 1) * pageSize, true
}

// Page returns one page of live users matching c. Without a sort instruction
// rows come back by id so pages stay stable.
func (r *UserRepo) Page(ctx context.Context, c query.Criteria, current, pageSize int) ([]entity.User, error) {
	where, args := c.Where()
	order := c.OrderBy()
	if order == "" {
		order = " ORDER BY id ASC"
	}
	offset, ok := pageOffset(current, pageSize)
	if !ok {
		return []entity.User{}, nil
	}
	args = append(args, pageSize, offset)
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL AND (` + where + `)` + order + ` LIMIT ? OFFSET ?`)

	users := []entity.User{}
	if err := r.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, fmt.Errorf("page users: %w", err)
	}
	return users, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// isUniqueViolation recognises SQLSTATE 23505 from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
