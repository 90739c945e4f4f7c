package vouchers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/tallybook/internal/accounts"
	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/money"
	"github.com/tallybook/tallybook/internal/payees"
	"github.com/tallybook/tallybook/internal/shared"
)

type mockRepository struct {
	vouchers map[int64]*Voucher
	lines    map[int64][]LedgerLine
	nextID   int64
	seq      map[string]int

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		vouchers: make(map[int64]*Voucher),
		lines:    make(map[int64][]LedgerLine),
		seq:      make(map[string]int),
		nextID:   1,
	}
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	out := *v
	out.Lines = append([]LedgerLine(nil), m.lines[id]...)
	return out, nil
}

func (m *mockRepository) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	var out []Voucher
	for _, v := range m.vouchers {
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && v.Kind != filter.Kind {
			continue
		}
		if filter.OwnerID != 0 && v.CreatedBy != filter.OwnerID {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (m *mockRepository) Search(ctx context.Context, term string, kind Kind) ([]Voucher, error) {
	var out []Voucher
	for _, v := range m.vouchers {
		if kind != "" && v.Kind != kind {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{m: m})
}

type mockTxRepo struct {
	m *mockRepository
}

func (t *mockTxRepo) NextNumber(ctx context.Context, kind Kind, year int) (string, error) {
	key := fmt.Sprintf("%s-%d", kind, year)
	t.m.seq[key]++
	return fmt.Sprintf("%s-%d-%03d", kind, year, t.m.seq[key]), nil
}

func (t *mockTxRepo) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	v.ID = t.m.nextID
	t.m.nextID++
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	stored := v
	t.m.vouchers[v.ID] = &stored
	return v, nil
}

func (t *mockTxRepo) ReplaceLines(ctx context.Context, voucherID int64, lines []LineInput) error {
	stored := make([]LedgerLine, 0, len(lines))
	for i, line := range lines {
		stored = append(stored, LedgerLine{
			ID:          int64(i + 1),
			VoucherID:   voucherID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	t.m.lines[voucherID] = stored
	return nil
}

func (t *mockTxRepo) GetForUpdate(ctx context.Context, id int64) (Voucher, error) {
	v, ok := t.m.vouchers[id]
	if !ok {
		return Voucher{}, ErrNotFound
	}
	return *v, nil
}

func (t *mockTxRepo) GetLines(ctx context.Context, voucherID int64) ([]LedgerLine, error) {
	return append([]LedgerLine(nil), t.m.lines[voucherID]...), nil
}

func (t *mockTxRepo) UpdateHeader(ctx context.Context, id int64, payeeRef, description string, total money.Amount) error {
	v, ok := t.m.vouchers[id]
	if !ok {
		return ErrNotFound
	}
	v.PayeeRef = payeeRef
	v.Description = description
	v.TotalAmount = total
	v.UpdatedAt = time.Now()
	return nil
}

func (t *mockTxRepo) MarkPosted(ctx context.Context, id int64, postedBy int64, at time.Time) error {
	v, ok := t.m.vouchers[id]
	if !ok {
		return ErrNotFound
	}
	v.Status = StatusPosted
	v.PostedBy = &postedBy
	v.PostedAt = &at
	return nil
}

func (t *mockTxRepo) MarkVoided(ctx context.Context, id int64, voidedBy int64, reason string, at time.Time) error {
	v, ok := t.m.vouchers[id]
	if !ok {
		return ErrNotFound
	}
	v.Status = StatusVoided
	v.VoidedBy = &voidedBy
	v.VoidedAt = &at
	v.VoidReason = reason
	return nil
}

type mockRegistry struct {
	inactive map[string]bool
	missing  map[string]bool

	// staleActive codes look active through the cached lookup but are
	// inactive in the store, mimicking a stale registry cache.
	staleActive map[string]bool
}

func (m *mockRegistry) LookupActive(ctx context.Context, code string) (accounts.Account, error) {
	if m.missing[code] {
		return accounts.Account{}, accounts.ErrNotFound
	}
	if m.inactive[code] {
		return accounts.Account{}, accounts.ErrInactive
	}
	return accounts.Account{Code: code, IsActive: true}, nil
}

func (m *mockRegistry) LookupActiveFresh(ctx context.Context, code string) (accounts.Account, error) {
	if m.staleActive[code] {
		return accounts.Account{}, accounts.ErrInactive
	}
	return m.LookupActive(ctx, code)
}

type mockPayees struct {
	inactive map[string]bool
	missing  map[string]bool
}

func (m *mockPayees) LookupActive(ctx context.Context, code string) (payees.Payee, error) {
	if m.missing[code] {
		return payees.Payee{}, payees.ErrNotFound
	}
	if m.inactive[code] {
		return payees.Payee{}, payees.ErrInactive
	}
	return payees.Payee{Code: code, IsActive: true}, nil
}

type mockAudit struct {
	entries []audit.Entry
}

func (m *mockAudit) Record(ctx context.Context, e audit.Entry) {
	m.entries = append(m.entries, e)
}

type mockIdem struct {
	keys    map[string]bool
	deleted []string
}

func (m *mockIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *mockIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

var (
	clerk = shared.Actor{ID: 7, Username: "clerk", Role: shared.RoleUser, SourceAddr: "10.0.0.1"}
	admin = shared.Actor{ID: 1, Username: "admin", Role: shared.RoleAdmin, SourceAddr: "10.0.0.2"}
	other = shared.Actor{ID: 9, Username: "other", Role: shared.RoleUser}
)

func newTestService(t *testing.T) (*Service, *mockRepository, *mockAudit) {
	t.Helper()
	repo := newMockRepository()
	recorder := &mockAudit{}
	svc := NewService(repo, &mockRegistry{}, &mockPayees{}, recorder, &mockIdem{})
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) })
	return svc, repo, recorder
}

func balancedInput() CreateInput {
	return CreateInput{
		Kind:     KindPayable,
		PayeeRef: "VEND-ACME",
		Lines: []LineInput{
			debit("expense-RENT", 10000),
			credit("asset-CASH", 10000),
		},
	}
}

func TestCreateDraft(t *testing.T) {
	svc, _, recorder := newTestService(t)

	v, err := svc.Create(context.Background(), clerk, balancedInput(), "")
	require.NoError(t, err)

	assert.Equal(t, "VP-2026-001", v.Number)
	assert.Equal(t, StatusDraft, v.Status)
	assert.Equal(t, money.FromCents(10000), v.TotalAmount)
	assert.Equal(t, clerk.ID, v.CreatedBy)
	assert.Len(t, v.Lines, 2)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, audit.ActionCreate, entry.Action)
	assert.Equal(t, "voucher", entry.Entity)
	assert.Equal(t, clerk.ID, entry.ActorID)
	assert.Equal(t, clerk.SourceAddr, entry.SourceAddr)
}

func TestCreateNumbersArePerKindAndYear(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v1, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)
	v2, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	checkInput := balancedInput()
	checkInput.Kind = KindCheck
	v3, err := svc.Create(ctx, clerk, checkInput, "")
	require.NoError(t, err)

	assert.Equal(t, "VP-2026-001", v1.Number)
	assert.Equal(t, "VP-2026-002", v2.Number)
	assert.Equal(t, "CV-2026-001", v3.Number)
}

func TestCreateAllowsUnbalancedDraft(t *testing.T) {
	svc, _, _ := newTestService(t)

	input := balancedInput()
	input.Lines = []LineInput{debit("expense-RENT", 5000)}
	v, err := svc.Create(context.Background(), clerk, input, "")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, v.Status)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	input := balancedInput()
	input.Kind = "XX"
	_, err := svc.Create(ctx, clerk, input, "")
	assert.ErrorIs(t, err, ErrInvalidKind)

	input = balancedInput()
	input.PayeeRef = "  "
	_, err = svc.Create(ctx, clerk, input, "")
	assert.Error(t, err)

	input = balancedInput()
	input.Lines[0].Credit = input.Lines[0].Debit
	_, err = svc.Create(ctx, clerk, input, "")
	assert.ErrorIs(t, err, ErrMixedLine)
}

func TestCreateRejectsUnknownOrInactiveAccount(t *testing.T) {
	repo := newMockRepository()
	registry := &mockRegistry{
		inactive: map[string]bool{"asset-OLD": true},
		missing:  map[string]bool{"asset-NOPE": true},
	}
	svc := NewService(repo, registry, &mockPayees{}, &mockAudit{}, nil)
	ctx := context.Background()

	input := balancedInput()
	input.Lines[1] = credit("asset-NOPE", 10000)
	_, err := svc.Create(ctx, clerk, input, "")
	assert.ErrorIs(t, err, accounts.ErrNotFound)

	input = balancedInput()
	input.Lines[1] = credit("asset-OLD", 10000)
	_, err = svc.Create(ctx, clerk, input, "")
	assert.ErrorIs(t, err, accounts.ErrInactive)
}

func TestCreateRejectsUnknownOrInactivePayee(t *testing.T) {
	repo := newMockRepository()
	payeeRegistry := &mockPayees{
		inactive: map[string]bool{"VEND-GONE": true},
		missing:  map[string]bool{"VEND-NOPE": true},
	}
	svc := NewService(repo, &mockRegistry{}, payeeRegistry, &mockAudit{}, nil)
	ctx := context.Background()

	input := balancedInput()
	input.PayeeRef = "VEND-NOPE"
	_, err := svc.Create(ctx, clerk, input, "")
	assert.ErrorIs(t, err, payees.ErrNotFound)

	input = balancedInput()
	input.PayeeRef = "VEND-GONE"
	_, err = svc.Create(ctx, clerk, input, "")
	assert.ErrorIs(t, err, payees.ErrInactive)

	assert.Empty(t, repo.vouchers)
}

func TestSubmitFailsWhenPayeeDeactivatedAfterDrafting(t *testing.T) {
	repo := newMockRepository()
	payeeRegistry := &mockPayees{}
	svc := NewService(repo, &mockRegistry{}, payeeRegistry, &mockAudit{}, nil)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	payeeRegistry.inactive = map[string]bool{"VEND-ACME": true}

	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	assert.ErrorIs(t, err, payees.ErrInactive)

	current, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, current.Status)
}

func TestCreateIdempotencyKey(t *testing.T) {
	repo := newMockRepository()
	idem := &mockIdem{}
	svc := NewService(repo, &mockRegistry{}, &mockPayees{}, &mockAudit{}, idem)

	ctx := context.Background()
	_, err := svc.Create(ctx, clerk, balancedInput(), "req-1")
	require.NoError(t, err)

	_, err = svc.Create(ctx, clerk, balancedInput(), "req-1")
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, repo.vouchers, 1)
}

func TestCreateReleasesKeyOnTxFailure(t *testing.T) {
	repo := newMockRepository()
	repo.txError = fmt.Errorf("connection reset")
	idem := &mockIdem{}
	svc := NewService(repo, &mockRegistry{}, &mockPayees{}, &mockAudit{}, idem)

	_, err := svc.Create(context.Background(), clerk, balancedInput(), "req-2")
	require.Error(t, err)
	assert.Contains(t, idem.deleted, "req-2")
}

func TestUpdateDraft(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	updated, err := svc.UpdateDraft(ctx, clerk, v.ID, UpdateInput{
		PayeeRef: "VEND-GLOBEX",
		Lines: []LineInput{
			debit("expense-SUPPLIES", 2500),
			credit("asset-BANK", 2500),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "VEND-GLOBEX", updated.PayeeRef)
	assert.Equal(t, money.FromCents(2500), updated.TotalAmount)
	require.Len(t, updated.Lines, 2)
	assert.Equal(t, "expense-SUPPLIES", updated.Lines[0].AccountCode)

	// create + update
	require.Len(t, recorder.entries, 2)
	assert.Equal(t, audit.ActionUpdate, recorder.entries[1].Action)
	assert.NotNil(t, recorder.entries[1].Before)
}

func TestUpdateDraftOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	input := UpdateInput{PayeeRef: "VEND-ACME", Lines: []LineInput{debit("expense-RENT", 100), credit("asset-CASH", 100)}}

	_, err = svc.UpdateDraft(ctx, other, v.ID, input)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.UpdateDraft(ctx, admin, v.ID, input)
	assert.NoError(t, err)
}

func TestUpdateRejectedOutsideDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)
	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDraft(ctx, clerk, v.ID, UpdateInput{
		PayeeRef: "VEND-ACME",
		Lines:    []LineInput{debit("expense-RENT", 100), credit("asset-CASH", 100)},
	})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestSubmitForPosting(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	posted, err := svc.SubmitForPosting(ctx, clerk, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	assert.Equal(t, clerk.ID, *posted.PostedBy)
	assert.NotNil(t, posted.PostedAt)
	assert.Equal(t, money.FromCents(10000), posted.TotalAmount)

	// create + post transition entries
	require.Len(t, recorder.entries, 2)
	assert.Equal(t, audit.ActionPost, recorder.entries[1].Action)
}

func TestSubmitUnbalancedFails(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	input := balancedInput()
	input.Lines = []LineInput{
		debit("expense-RENT", 10000),
		credit("asset-CASH", 9000),
	}
	v, err := svc.Create(ctx, clerk, input, "")
	require.NoError(t, err)

	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	assert.ErrorIs(t, err, ErrUnbalanced)

	// The failed attempt still leaves an audit entry, and the voucher
	// stays editable.
	require.Len(t, recorder.entries, 2)
	after, ok := recorder.entries[1].After.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DRAFT", after["status"])

	current, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, current.Status)
}

func TestSubmitFailsWhenAccountDeactivatedAfterDrafting(t *testing.T) {
	repo := newMockRepository()
	registry := &mockRegistry{}
	svc := NewService(repo, registry, &mockPayees{}, &mockAudit{}, nil)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	// Deactivate between drafting and posting.
	registry.inactive = map[string]bool{"asset-CASH": true}

	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	assert.ErrorIs(t, err, accounts.ErrInactive)
}

func TestSubmitBypassesStaleRegistryCache(t *testing.T) {
	repo := newMockRepository()
	registry := &mockRegistry{}
	svc := NewService(repo, registry, &mockPayees{}, &mockAudit{}, nil)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	// The account was deactivated but the cached lookup still serves
	// the old active entry. Posting must consult the store directly
	// and refuse.
	registry.staleActive = map[string]bool{"asset-CASH": true}

	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	assert.ErrorIs(t, err, accounts.ErrInactive)

	current, err := svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, current.Status)
}

func TestDoubleSubmitFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)
	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	require.NoError(t, err)

	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestVoidDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)

	voided, err := svc.Void(ctx, clerk, v.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, voided.Status)
	// Lines stay on record after voiding.
	assert.Len(t, voided.Lines, 2)
}

func TestVoidPostedRequiresAdminAndReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)
	_, err = svc.SubmitForPosting(ctx, clerk, v.ID)
	require.NoError(t, err)

	_, err = svc.Void(ctx, clerk, v.ID, "wrong vendor")
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Void(ctx, admin, v.ID, "  ")
	assert.ErrorIs(t, err, ErrVoidReasonRequired)

	voided, err := svc.Void(ctx, admin, v.ID, "wrong vendor")
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, voided.Status)
	assert.Equal(t, "wrong vendor", voided.VoidReason)
	require.NotNil(t, voided.VoidedBy)
	assert.Equal(t, admin.ID, *voided.VoidedBy)
}

func TestDoubleVoidFails(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	v, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)
	_, err = svc.Void(ctx, clerk, v.ID, "")
	require.NoError(t, err)

	_, err = svc.Void(ctx, admin, v.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// create + void + failed void all audited
	assert.Len(t, recorder.entries, 3)
}

func TestListScopesNonAdminToOwnVouchers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, clerk, balancedInput(), "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, other, balancedInput(), "")
	require.NoError(t, err)

	mine, err := svc.List(ctx, clerk, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, clerk.ID, mine[0].CreatedBy)

	all, err := svc.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchEmptyTermReturnsNothing(t *testing.T) {
	svc, _, _ := newTestService(t)

	out, err := svc.Search(context.Background(), clerk, "   ", "")
	require.NoError(t, err)
	assert.Nil(t, out)
}
