package entity

import (
	"strings"
	"time"
)

// Role is one of the two authorization levels.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps s onto a known role. Matching ignores case and surrounding
// whitespace; ok is false for anything else.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }

// User represents a row in the `users` table.
type User struct {
	ID             int64      `db:"id" json:"id"`
	Account        string     `db:"account" json:"account"`
	PasswordDigest string     `db:"password_digest" json:"-"`
	DisplayName    string     `db:"display_name" json:"displayName"`
	AvatarRef      string     `db:"avatar_ref" json:"avatarRef"`
	Profile        string     `db:"profile" json:"profile"`
	Role           string     `db:"role" json:"role"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}

// Principal is the de-sensitized view of a User handed out after login.
type Principal struct {
	ID          int64     `json:"id"`
	Account     string    `json:"account"`
	DisplayName string    `json:"displayName"`
	AvatarRef   string    `json:"avatarRef"`
	Profile     string    `json:"profile"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Patch carries the optional fields of an admin update. Nil means unchanged.
type Patch struct {
	DisplayName *string
	AvatarRef   *string
	Profile     *string
	Role        *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.DisplayName == nil && p.AvatarRef == nil && p.Profile == nil && p.Role == nil
}

// Apply copies the set fields of p onto u.
func (p Patch) Apply(u *User) {
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.AvatarRef != nil {
		u.AvatarRef = *p.AvatarRef
	}
	if p.Profile != nil {
		u.Profile = *p.Profile
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
}
