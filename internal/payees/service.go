package payees

import (
	"context"
	"strings"

	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/shared"
)

// AuditPort records registry mutations.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry)
}

// RegisterInput groups fields for registering a payee.
type RegisterInput struct {
	Code     string
	Name     string
	Category Category
}

// UpdateInput carries the mutable payee fields.
type UpdateInput struct {
	Name     string
	Category Category
}

// Service wraps payee registry business rules. Lookups go straight to
// the store; the registry is read on every voucher write, so what a
// lookup returns is always the committed truth.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService constructs a Service.
func NewService(repo Repository, auditPort AuditPort) *Service {
	return &Service{repo: repo, audit: auditPort}
}

// Register adds a payee to the registry. Admin only.
func (s *Service) Register(ctx context.Context, actor shared.Actor, input RegisterInput) (Payee, error) {
	if !actor.IsAdmin() {
		return Payee{}, shared.ErrForbidden
	}
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Payee{}, ErrInvalidCode
	}
	if !ValidCategory(input.Category) {
		return Payee{}, ErrInvalidCode
	}
	if err := ValidateCode(input.Code); err != nil {
		return Payee{}, err
	}

	payee, err := s.repo.Insert(ctx, Payee{Code: input.Code, Name: input.Name, Category: input.Category})
	if err != nil {
		return Payee{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			Entity:     "payee",
			EntityID:   payee.Code,
			After:      payee,
			SourceAddr: actor.SourceAddr,
		})
	}
	return payee, nil
}

// Update changes a payee's name or category. The code is immutable
// since posted vouchers reference it. Admin only.
func (s *Service) Update(ctx context.Context, actor shared.Actor, code string, input UpdateInput) (Payee, error) {
	if !actor.IsAdmin() {
		return Payee{}, shared.ErrForbidden
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Payee{}, ErrInvalidCode
	}
	if !ValidCategory(input.Category) {
		return Payee{}, ErrInvalidCode
	}
	before, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Payee{}, err
	}
	payee, err := s.repo.UpdateDetails(ctx, code, input.Name, input.Category)
	if err != nil {
		return Payee{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			Entity:     "payee",
			EntityID:   payee.Code,
			Before:     before,
			After:      payee,
			SourceAddr: actor.SourceAddr,
		})
	}
	return payee, nil
}

// Deactivate retires a payee. The row is kept so historical vouchers
// stay resolvable; only new vouchers are rejected. Admin only.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, code string) (Payee, error) {
	if !actor.IsAdmin() {
		return Payee{}, shared.ErrForbidden
	}
	before, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Payee{}, err
	}
	payee, err := s.repo.SetActive(ctx, code, false)
	if err != nil {
		return Payee{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			Entity:     "payee",
			EntityID:   payee.Code,
			Before:     before,
			After:      payee,
			SourceAddr: actor.SourceAddr,
		})
	}
	return payee, nil
}

// Lookup resolves a payee code.
func (s *Service) Lookup(ctx context.Context, code string) (Payee, error) {
	return s.repo.GetByCode(ctx, code)
}

// LookupActive resolves a payee and requires it to accept new vouchers.
func (s *Service) LookupActive(ctx context.Context, code string) (Payee, error) {
	payee, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Payee{}, err
	}
	if !payee.IsActive {
		return Payee{}, ErrInactive
	}
	return payee, nil
}

// List returns registry entries matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Payee, error) {
	return s.repo.List(ctx, filter)
}
