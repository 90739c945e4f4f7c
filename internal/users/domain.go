package users

import (
	"errors"
	"time"

	"github.com/tallybook/tallybook/internal/shared"
)

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicate indicates the username or email is already taken.
	ErrDuplicate = errors.New("users: username or email already taken")
	// ErrInvalidRole indicates an unknown role value.
	ErrInvalidRole = errors.New("users: invalid role")
	// ErrSelfDemotion indicates an admin tried to strip their own role.
	ErrSelfDemotion = errors.New("users: cannot change own role or status")
)

// User is the administrative view of an account.
type User struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      shared.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ValidRole reports whether r is a known role.
func ValidRole(r shared.Role) bool {
	return r == shared.RoleAdmin || r == shared.RoleUser
}
