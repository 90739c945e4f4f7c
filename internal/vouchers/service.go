package vouchers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tallybook/tallybook/internal/accounts"
	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/payees"
	"github.com/tallybook/tallybook/internal/shared"
)

// AccountResolver resolves account codes against the registry.
// LookupActiveFresh must bypass any registry cache; the posting path
// relies on it to see a deactivation committed moments earlier.
type AccountResolver interface {
	LookupActive(ctx context.Context, code string) (accounts.Account, error)
	LookupActiveFresh(ctx context.Context, code string) (accounts.Account, error)
}

// PayeeResolver resolves payee codes against the payee registry.
type PayeeResolver interface {
	LookupActive(ctx context.Context, code string) (payees.Payee, error)
}

// AuditPort records voucher mutations and transitions.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry)
}

// IdempotencyPort guards duplicate create requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service implements voucher creation, the posting/voiding state
// machine and list/search reads. All mutations run inside one store
// transaction; the header row lock taken by GetForUpdate serializes
// concurrent transitions on the same voucher.
type Service struct {
	repo     Repository
	registry AccountResolver
	payees   PayeeResolver
	audit    AuditPort
	idem     IdempotencyPort
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, registry AccountResolver, payeeResolver PayeeResolver, auditPort AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, registry: registry, payees: payeeResolver, audit: auditPort, idem: idem, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new voucher in DRAFT. The payee must be a registered,
// active payee. Lines are optional at this point (they can be added
// while drafting) but any provided line must be well formed and
// reference an active account. A non-empty
// idempotency key makes retried creates fail with a conflict instead
// of duplicating the voucher.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput, idempotencyKey string) (Voucher, error) {
	if actor.ID == 0 {
		return Voucher{}, shared.ErrForbidden
	}
	if !ValidKind(input.Kind) {
		return Voucher{}, ErrInvalidKind
	}
	input.PayeeRef = strings.TrimSpace(input.PayeeRef)
	if input.PayeeRef == "" {
		return Voucher{}, errors.New("vouchers: payee reference required")
	}
	if _, err := s.payees.LookupActive(ctx, input.PayeeRef); err != nil {
		return Voucher{}, err
	}
	if err := ValidateLineShapes(input.Lines); err != nil {
		return Voucher{}, err
	}
	if err := s.resolveAccounts(ctx, input.Lines); err != nil {
		return Voucher{}, err
	}

	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, "vouchers"); err != nil {
			return Voucher{}, err
		}
	}

	var created Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, input.Kind, s.now().Year())
		if err != nil {
			return err
		}
		inserted, err := tx.InsertVoucher(ctx, Voucher{
			Number:      number,
			Kind:        input.Kind,
			Status:      StatusDraft,
			PayeeRef:    input.PayeeRef,
			Description: input.Description,
			TotalAmount: TotalDebit(input.Lines),
			CreatedBy:   actor.ID,
		})
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, idempotencyKey)
		}
		return Voucher{}, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionCreate,
			Entity:     "voucher",
			EntityID:   strconv.FormatInt(created.ID, 10),
			After:      statusSnapshot(created),
			SourceAddr: actor.SourceAddr,
		})
	}
	return s.repo.Get(ctx, created.ID)
}

// UpdateDraft replaces the header fields and line set of a DRAFT
// voucher. Only the owner or an admin may edit.
func (s *Service) UpdateDraft(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Voucher, error) {
	input.PayeeRef = strings.TrimSpace(input.PayeeRef)
	if input.PayeeRef == "" {
		return Voucher{}, errors.New("vouchers: payee reference required")
	}
	if _, err := s.payees.LookupActive(ctx, input.PayeeRef); err != nil {
		return Voucher{}, err
	}
	if err := ValidateLineShapes(input.Lines); err != nil {
		return Voucher{}, err
	}
	if err := s.resolveAccounts(ctx, input.Lines); err != nil {
		return Voucher{}, err
	}

	var before Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !canMutate(actor, current) {
			return shared.ErrForbidden
		}
		if current.Status != StatusDraft {
			return ErrNotEditable
		}
		before = current
		if err := tx.UpdateHeader(ctx, id, input.PayeeRef, input.Description, TotalDebit(input.Lines)); err != nil {
			return err
		}
		return tx.ReplaceLines(ctx, id, input.Lines)
	})
	if err != nil {
		return Voucher{}, err
	}

	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			ActorID:    actor.ID,
			Action:     audit.ActionUpdate,
			Entity:     "voucher",
			EntityID:   strconv.FormatInt(id, 10),
			Before:     statusSnapshot(before),
			After:      statusSnapshot(updated),
			SourceAddr: actor.SourceAddr,
		})
	}
	return updated, nil
}

// SubmitForPosting moves a DRAFT voucher to POSTED. The double-entry
// validator runs on the current line set and every referenced account
// must still be active: a deactivation between drafting and posting
// fails the post. Two concurrent submits serialize on the header lock;
// the loser observes POSTED and receives ErrInvalidTransition.
func (s *Service) SubmitForPosting(ctx context.Context, actor shared.Actor, id int64) (Voucher, error) {
	var before Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = current
		if !canMutate(actor, current) {
			return shared.ErrForbidden
		}
		if current.Status != StatusDraft {
			return ErrInvalidTransition
		}
		lines, err := tx.GetLines(ctx, id)
		if err != nil {
			return err
		}
		inputs := linesToInputs(lines)
		if err := ValidatePosting(inputs); err != nil {
			return err
		}
		// Posting must see the registry's current truth, not a cached
		// entry that predates a deactivation.
		if err := s.resolveAccountsFresh(ctx, inputs); err != nil {
			return err
		}
		// Same for the payee: deactivated between drafting and posting
		// fails the post.
		if _, err := s.payees.LookupActive(ctx, current.PayeeRef); err != nil {
			return err
		}
		return tx.MarkPosted(ctx, id, actor.ID, s.now())
	})
	if err != nil {
		s.recordTransition(ctx, actor, id, audit.ActionPost, before, err)
		return Voucher{}, err
	}

	posted, err := s.repo.Get(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	s.recordTransition(ctx, actor, id, audit.ActionPost, before, nil, posted)
	return posted, nil
}

// Void retires a voucher. A DRAFT can be voided by its owner or an
// admin; a POSTED voucher only by an admin, with a reason. Lines are
// retained for the audit trail, but a voided voucher no longer
// contributes to any balance computation. VOIDED is terminal.
func (s *Service) Void(ctx context.Context, actor shared.Actor, id int64, reason string) (Voucher, error) {
	var before Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = current
		if !CanTransition(current.Status, StatusVoided) {
			return ErrInvalidTransition
		}
		switch current.Status {
		case StatusPosted:
			if !actor.IsAdmin() {
				return shared.ErrForbidden
			}
			if strings.TrimSpace(reason) == "" {
				return ErrVoidReasonRequired
			}
		default:
			if !canMutate(actor, current) {
				return shared.ErrForbidden
			}
		}
		return tx.MarkVoided(ctx, id, actor.ID, strings.TrimSpace(reason), s.now())
	})
	if err != nil {
		s.recordTransition(ctx, actor, id, audit.ActionVoid, before, err)
		return Voucher{}, err
	}

	voided, err := s.repo.Get(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	s.recordTransition(ctx, actor, id, audit.ActionVoid, before, nil, voided)
	return voided, nil
}

// Get fetches one voucher with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	return s.repo.Get(ctx, id)
}

// List returns vouchers matching the filter. Non-admin actors only see
// their own vouchers.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Voucher, error) {
	if !actor.IsAdmin() {
		filter.OwnerID = actor.ID
	}
	return s.repo.List(ctx, filter)
}

// Search matches vouchers by number, payee or description.
func (s *Service) Search(ctx context.Context, actor shared.Actor, term string, kind Kind) ([]Voucher, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	return s.repo.Search(ctx, term, kind)
}

func (s *Service) resolveAccounts(ctx context.Context, lines []LineInput) error {
	for _, line := range lines {
		if _, err := s.registry.LookupActive(ctx, line.AccountCode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) resolveAccountsFresh(ctx context.Context, lines []LineInput) error {
	for _, line := range lines {
		if _, err := s.registry.LookupActiveFresh(ctx, line.AccountCode); err != nil {
			return err
		}
	}
	return nil
}

func canMutate(actor shared.Actor, v Voucher) bool {
	return actor.IsAdmin() || actor.ID == v.CreatedBy
}

// recordTransition reports a state transition attempt, successful or
// not, with before/after status snapshots.
func (s *Service) recordTransition(ctx context.Context, actor shared.Actor, id int64, action audit.Action, before Voucher, opErr error, after ...Voucher) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		ActorID:    actor.ID,
		Action:     action,
		Entity:     "voucher",
		EntityID:   strconv.FormatInt(id, 10),
		SourceAddr: actor.SourceAddr,
	}
	if before.ID != 0 {
		entry.Before = statusSnapshot(before)
	}
	if opErr != nil {
		entry.After = map[string]any{"error": opErr.Error(), "status": string(before.Status)}
	} else if len(after) > 0 {
		entry.After = statusSnapshot(after[0])
	}
	s.audit.Record(ctx, entry)
}

func statusSnapshot(v Voucher) map[string]any {
	return map[string]any{
		"number":       v.Number,
		"kind":         string(v.Kind),
		"status":       string(v.Status),
		"payee_ref":    v.PayeeRef,
		"total_amount": v.TotalAmount.String(),
	}
}
