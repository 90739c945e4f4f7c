package users

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/shared"
)

// AuditPort records account administration mutations.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry)
}

// CreateInput groups fields for provisioning a user.
type CreateInput struct {
	Username string
	Email    string
	Password string
	Role     shared.Role
}

// UpdateInput carries the mutable administrative fields.
type UpdateInput struct {
	Role     shared.Role
	IsActive bool
}

// Service handles user administration. Every operation is admin only.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds a Service instance.
func NewService(repo Repository, auditPort AuditPort) *Service {
	return &Service{repo: repo, audit: auditPort}
}

// List returns all users.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]User, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	return s.repo.List(ctx)
}

// Get returns one user by ID.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (User, error) {
	if !actor.IsAdmin() {
		return User{}, shared.ErrForbidden
	}
	return s.repo.Get(ctx, id)
}

// Create provisions a new account with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (User, error) {
	if !actor.IsAdmin() {
		return User{}, shared.ErrForbidden
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if !ValidRole(input.Role) {
		return User{}, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Insert(ctx, input.Username, input.Email, string(hash), input.Role)
	if err != nil {
		return User{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			Entity:     "user",
			EntityID:   strconv.FormatInt(user.ID, 10),
			After:      user,
			SourceAddr: actor.SourceAddr,
		})
	}
	return user, nil
}

// Update changes a user's role or active flag. Admins cannot change
// their own record, which keeps at least the acting admin usable.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (User, error) {
	if !actor.IsAdmin() {
		return User{}, shared.ErrForbidden
	}
	if actor.ID == id {
		return User{}, ErrSelfDemotion
	}
	if !ValidRole(input.Role) {
		return User{}, ErrInvalidRole
	}
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Update(ctx, id, input.Role, input.IsActive)
	if err != nil {
		return User{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			Entity:     "user",
			EntityID:   strconv.FormatInt(user.ID, 10),
			Before:     before,
			After:      user,
			SourceAddr: actor.SourceAddr,
		})
	}
	return user, nil
}
