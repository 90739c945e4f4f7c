package shared

// Role is the coarse permission level attached to a user account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Actor identifies the authenticated user performing an operation.
// Core services take it as an explicit parameter; there is no ambient
// current-user lookup below the HTTP layer.
type Actor struct {
	ID       int64
	Username string
	Role     Role
	// SourceAddr is the remote address the request arrived from,
	// carried along for audit records.
	SourceAddr string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
