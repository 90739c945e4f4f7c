package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tallybook/tallybook/internal/auth"
	"github.com/tallybook/tallybook/internal/shared"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByLogin(ctx context.Context, login string) (*auth.User, error) {
	if s.user == nil || (s.user.Username != login && s.user.Email != login) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = make(map[string]int64)
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func testUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		ID:           1,
		Username:     "clerk",
		Email:        "clerk@tallybook.local",
		PasswordHash: string(hash),
		Role:         shared.RoleUser,
		IsActive:     true,
	}
}

func TestAuthenticate(t *testing.T) {
	svc := auth.NewService(&stubRepo{user: testUser(t, "correct-horse")})
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, "clerk", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)

	// Email works as login too.
	_, err = svc.Authenticate(ctx, "clerk@tallybook.local", "correct-horse")
	assert.NoError(t, err)
}

func TestAuthenticateFailures(t *testing.T) {
	user := testUser(t, "correct-horse")
	svc := auth.NewService(&stubRepo{user: user})
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "clerk", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	user.IsActive = false
	_, err = svc.Authenticate(ctx, "clerk", "correct-horse")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSessionLifecycle(t *testing.T) {
	repo := &stubRepo{user: testUser(t, "pw")}
	svc := auth.NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.RegisterSession(ctx, "sess-1", 1, time.Now().Add(time.Hour), "10.0.0.1", "test-agent"))
	assert.Equal(t, int64(1), repo.sessions["sess-1"])

	require.NoError(t, svc.RemoveSession(ctx, "sess-1"))
	assert.NotContains(t, repo.sessions, "sess-1")
}
