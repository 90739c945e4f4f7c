package accounts

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

// RegisterInput groups fields for registering an account.
type RegisterInput struct {
	Code string
	Name string
	Type AccountType
}

// Service wraps account registry business rules.
type Service struct {
	repo  Repository
	cache *Cache
	audit AuditPort
}

// NewService constructs a Service.
func NewService(repo Repository, cache *Cache, auditPort AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: auditPort}
}

// Register adds a new chart-of-accounts entry. Admin only.
func (s *Service) Register(ctx context.Context, actor shared.Actor, input RegisterInput) (Account, error) {
	if !actor.IsAdmin() {
		return Account{}, shared.ErrForbidden
	}
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Account{}, ErrInvalidCode
	}
	if !ValidType(input.Type) {
		return Account{}, ErrInvalidCode
	}
	if err := ValidateCode(input.Code, input.Type); err != nil {
		return Account{}, err
	}

	account, err := s.repo.Insert(ctx, Account{Code: input.Code, Name: input.Name, Type: input.Type})
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			Entity:     "account",
			EntityID:   account.Code,
			After:      account,
			SourceAddr: actor.SourceAddr,
		})
	}
	return account, nil
}

// Deactivate retires an account. The row is kept so historical ledger
// lines stay resolvable; only new lines are rejected. Admin only.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, code string) (Account, error) {
	if !actor.IsAdmin() {
		return Account{}, shared.ErrForbidden
	}
	before, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Account{}, err
	}
	account, err := s.repo.SetActive(ctx, code, false)
	if err != nil {
		return Account{}, err
	}
	// The cache must be clean before the caller sees success, otherwise
	// a posting racing with the deactivation could read the stale
	// active flag for a full TTL.
	if err := s.cache.Invalidate(ctx, code); err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			Entity:     "account",
			EntityID:   account.Code,
			Before:     before,
			After:      account,
			SourceAddr: actor.SourceAddr,
		})
	}
	return account, nil
}

// Lookup resolves an account code, serving from cache when possible.
func (s *Service) Lookup(ctx context.Context, code string) (Account, error) {
	return s.cache.Get(ctx, code, func(ctx context.Context) (Account, error) {
		return s.repo.GetByCode(ctx, code)
	})
}

// LookupActive resolves an account and requires it to accept new lines.
func (s *Service) LookupActive(ctx context.Context, code string) (Account, error) {
	account, err := s.Lookup(ctx, code)
	if err != nil {
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, ErrInactive
	}
	return account, nil
}

// LookupActiveFresh is LookupActive straight from the store, skipping
// the cache. Posting resolves accounts through this so that a
// deactivation is seen immediately, cache state notwithstanding.
func (s *Service) LookupActiveFresh(ctx context.Context, code string) (Account, error) {
	account, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, ErrInactive
	}
	return account, nil
}

// List returns registry entries matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, filter)
}
