package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/shared"
)

type mockRepo struct {
	byCode map[string]*Account
	nextID int64
	gets   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{byCode: make(map[string]*Account), nextID: 1}
}

func (m *mockRepo) Insert(ctx context.Context, a Account) (Account, error) {
	if _, ok := m.byCode[a.Code]; ok {
		return Account{}, ErrDuplicateCode
	}
	a.ID = m.nextID
	m.nextID++
	a.IsActive = true
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	stored := a
	m.byCode[a.Code] = &stored
	return a, nil
}

func (m *mockRepo) GetByCode(ctx context.Context, code string) (Account, error) {
	m.gets++
	a, ok := m.byCode[code]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

func (m *mockRepo) SetActive(ctx context.Context, code string, active bool) (Account, error) {
	a, ok := m.byCode[code]
	if !ok {
		return Account{}, ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = time.Now()
	return *a, nil
}

func (m *mockRepo) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	var out []Account
	for _, a := range m.byCode {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if !filter.IncludeInactive && !a.IsActive {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

var (
	adminActor = shared.Actor{ID: 1, Username: "admin", Role: shared.RoleAdmin}
	userActor  = shared.Actor{ID: 2, Username: "clerk", Role: shared.RoleUser}
)

func newTestService(t *testing.T) (*Service, *mockRepo, *recordingAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := newMockRepo()
	recorder := &recordingAudit{}
	return NewService(repo, NewCache(client, time.Minute), recorder), repo, recorder
}

func TestValidateCode(t *testing.T) {
	require.NoError(t, ValidateCode("asset-CASH", AccountTypeAsset))
	require.NoError(t, ValidateCode("liability-AP-VEND01", AccountTypeLiability))

	assert.ErrorIs(t, ValidateCode("asset-cash", AccountTypeAsset), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("CASH", AccountTypeAsset), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("asset-", AccountTypeAsset), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("pet-CASH", AccountTypeAsset), ErrInvalidCode)
	// Prefix must agree with the declared type.
	assert.ErrorIs(t, ValidateCode("asset-CASH", AccountTypeExpense), ErrInvalidCode)
}

func TestRegister(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	account, err := svc.Register(ctx, adminActor, RegisterInput{
		Code: "asset-CASH",
		Name: "Cash on Hand",
		Type: AccountTypeAsset,
	})
	require.NoError(t, err)
	assert.True(t, account.IsActive)
	assert.Equal(t, "asset-CASH", account.Code)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, audit.ActionCreate, recorder.entries[0].Action)
	assert.Equal(t, "account", recorder.entries[0].Entity)

	// Duplicate code rejected.
	_, err = svc.Register(ctx, adminActor, RegisterInput{
		Code: "asset-CASH",
		Name: "Cash again",
		Type: AccountTypeAsset,
	})
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestRegisterRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), userActor, RegisterInput{
		Code: "asset-CASH",
		Name: "Cash",
		Type: AccountTypeAsset,
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "  ", Type: AccountTypeAsset})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "Cash", Type: "weird"})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Register(ctx, adminActor, RegisterInput{Code: "expense-CASH", Name: "Cash", Type: AccountTypeAsset})
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestLookupServesFromCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	first, err := svc.Lookup(ctx, "asset-CASH")
	require.NoError(t, err)
	loadsAfterFirst := repo.gets

	second, err := svc.Lookup(ctx, "asset-CASH")
	require.NoError(t, err)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, loadsAfterFirst, repo.gets, "second lookup should not hit the store")
}

func TestDeactivate(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	// Warm the cache first, then deactivate: the stale entry must not
	// survive the mutation.
	_, err = svc.LookupActive(ctx, "asset-CASH")
	require.NoError(t, err)

	account, err := svc.Deactivate(ctx, adminActor, "asset-CASH")
	require.NoError(t, err)
	assert.False(t, account.IsActive)

	_, err = svc.LookupActive(ctx, "asset-CASH")
	assert.ErrorIs(t, err, ErrInactive)

	// Plain lookup still resolves the retired account.
	got, err := svc.Lookup(ctx, "asset-CASH")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// register + deactivate, with before/after snapshots.
	require.Len(t, recorder.entries, 2)
	assert.Equal(t, audit.ActionUpdate, recorder.entries[1].Action)
	assert.NotNil(t, recorder.entries[1].Before)
	assert.NotNil(t, recorder.entries[1].After)
}

func TestInvalidationOutlivesInFlightLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	stale := Account{Code: "asset-CASH", IsActive: true}
	truth := Account{Code: "asset-CASH", IsActive: false}

	// A load that began before the deactivation finishes after the
	// invalidation has run. Its write must not resurrect the stale
	// active entry.
	_, err := cache.Get(ctx, "asset-CASH", func(ctx context.Context) (Account, error) {
		require.NoError(t, cache.Invalidate(ctx, "asset-CASH"))
		return stale, nil
	})
	require.NoError(t, err)

	got, err := cache.Get(ctx, "asset-CASH", func(ctx context.Context) (Account, error) {
		return truth, nil
	})
	require.NoError(t, err)
	assert.False(t, got.IsActive, "invalidated entry must be reloaded from the store")
}

func TestLookupActiveFreshBypassesCache(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	// Warm the cache with the active entry, then flip the store behind
	// the cache's back.
	_, err = svc.LookupActive(ctx, "asset-CASH")
	require.NoError(t, err)
	repo.byCode["asset-CASH"].IsActive = false

	// The cached lookup still serves the stale entry; the fresh lookup
	// must consult the store and report the deactivation.
	_, err = svc.LookupActive(ctx, "asset-CASH")
	require.NoError(t, err)
	_, err = svc.LookupActiveFresh(ctx, "asset-CASH")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestDeactivateRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, userActor, "asset-CASH")
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestListFiltersInactive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "asset-CASH", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
	_, err = svc.Register(ctx, adminActor, RegisterInput{Code: "expense-RENT", Name: "Rent", Type: AccountTypeExpense})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, adminActor, "expense-RENT")
	require.NoError(t, err)

	active, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := svc.List(ctx, ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
