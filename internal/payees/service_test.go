package payees

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybook/tallybook/internal/audit"
	"github.com/tallybook/tallybook/internal/shared"
)

type mockRepo struct {
	byCode map[string]*Payee
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{byCode: make(map[string]*Payee), nextID: 1}
}

func (m *mockRepo) Insert(ctx context.Context, p Payee) (Payee, error) {
	if _, ok := m.byCode[p.Code]; ok {
		return Payee{}, ErrDuplicateCode
	}
	p.ID = m.nextID
	m.nextID++
	p.IsActive = true
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	stored := p
	m.byCode[p.Code] = &stored
	return p, nil
}

func (m *mockRepo) GetByCode(ctx context.Context, code string) (Payee, error) {
	p, ok := m.byCode[code]
	if !ok {
		return Payee{}, ErrNotFound
	}
	return *p, nil
}

func (m *mockRepo) UpdateDetails(ctx context.Context, code, name string, category Category) (Payee, error) {
	p, ok := m.byCode[code]
	if !ok {
		return Payee{}, ErrNotFound
	}
	p.Name = name
	p.Category = category
	p.UpdatedAt = time.Now()
	return *p, nil
}

func (m *mockRepo) SetActive(ctx context.Context, code string, active bool) (Payee, error) {
	p, ok := m.byCode[code]
	if !ok {
		return Payee{}, ErrNotFound
	}
	p.IsActive = active
	p.UpdatedAt = time.Now()
	return *p, nil
}

func (m *mockRepo) List(ctx context.Context, filter ListFilter) ([]Payee, error) {
	var out []Payee
	for _, p := range m.byCode {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if !filter.IncludeInactive && !p.IsActive {
			continue
		}
		out = append(out, *p)
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
	repo := newMockRepo()
	recorder := &recordingAudit{}
	return NewService(repo, recorder), repo, recorder
}

func TestValidateCode(t *testing.T) {
	require.NoError(t, ValidateCode("VEND-ACME"))
	require.NoError(t, ValidateCode("CUST-0042"))
	require.NoError(t, ValidateCode("X1"))

	assert.ErrorIs(t, ValidateCode("vend-acme"), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("X"), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("-ACME"), ErrInvalidCode)
	assert.ErrorIs(t, ValidateCode("VEND ACME"), ErrInvalidCode)
	// 21 characters is one past the limit.
	assert.ErrorIs(t, ValidateCode("VEND-ACME-AAAAAAAAAAA"), ErrInvalidCode)
}

func TestRegister(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	payee, err := svc.Register(ctx, adminActor, RegisterInput{
		Code:     "vend-acme",
		Name:     "ACME Corp",
		Category: CategoryBusiness,
	})
	require.NoError(t, err)
	assert.True(t, payee.IsActive)
	assert.Equal(t, "VEND-ACME", payee.Code, "codes are stored uppercase")

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "payee", recorder.entries[0].Entity)
	assert.Equal(t, audit.ActionCreate, recorder.entries[0].Action)

	_, err = svc.Register(ctx, adminActor, RegisterInput{
		Code: "VEND-ACME", Name: "Duplicate", Category: CategoryBusiness,
	})
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestRegisterRejectsNonAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Register(context.Background(), userActor, RegisterInput{
		Code: "VEND-ACME", Name: "ACME Corp", Category: CategoryBusiness,
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "VEND-ACME", Name: "  ", Category: CategoryBusiness})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Register(ctx, adminActor, RegisterInput{Code: "VEND-ACME", Name: "ACME", Category: "b2g"})
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestUpdate(t *testing.T) {
	svc, _, recorder := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "VEND-ACME", Name: "ACME Corp", Category: CategoryBusiness})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, adminActor, "VEND-ACME", UpdateInput{Name: "ACME Holdings", Category: CategoryConsumer})
	require.NoError(t, err)
	assert.Equal(t, "ACME Holdings", updated.Name)
	assert.Equal(t, CategoryConsumer, updated.Category)

	require.Len(t, recorder.entries, 2)
	assert.Equal(t, audit.ActionUpdate, recorder.entries[1].Action)

	_, err = svc.Update(ctx, userActor, "VEND-ACME", UpdateInput{Name: "X", Category: CategoryBusiness})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Update(ctx, adminActor, "VEND-NONE", UpdateInput{Name: "X", Category: CategoryBusiness})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateAndLookupActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "VEND-ACME", Name: "ACME Corp", Category: CategoryBusiness})
	require.NoError(t, err)

	got, err := svc.LookupActive(ctx, "VEND-ACME")
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = svc.Deactivate(ctx, userActor, "VEND-ACME")
	assert.ErrorIs(t, err, shared.ErrForbidden)

	deactivated, err := svc.Deactivate(ctx, adminActor, "VEND-ACME")
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = svc.LookupActive(ctx, "VEND-ACME")
	assert.ErrorIs(t, err, ErrInactive)

	// The row survives for history.
	kept, err := svc.Lookup(ctx, "VEND-ACME")
	require.NoError(t, err)
	assert.False(t, kept.IsActive)
}

func TestListFiltersInactive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, adminActor, RegisterInput{Code: "VEND-ACME", Name: "ACME Corp", Category: CategoryBusiness})
	require.NoError(t, err)
	_, err = svc.Register(ctx, adminActor, RegisterInput{Code: "CUST-0042", Name: "Walk-in Customer", Category: CategoryConsumer})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, adminActor, "CUST-0042")
	require.NoError(t, err)

	active, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "VEND-ACME", active[0].Code)

	all, err := svc.List(ctx, ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	businesses, err := svc.List(ctx, ListFilter{Category: CategoryBusiness, IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, businesses, 1)
	assert.Equal(t, "VEND-ACME", businesses[0].Code)
}
