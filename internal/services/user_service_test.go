package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliaskarov/proxypanel/internal/auth"
	repo "github.com/aliaskarov/proxypanel/internal/repository"
	"github.com/aliaskarov/proxypanel/internal/repository/memory"
)

func newUserService(t *testing.T) (*UserService, memory.Repositories) {
	t.Helper()
	repos := memory.NewRepositories(memory.NewStore())
	tm := auth.NewTokenManager("access-secret", "refresh-secret", "proxypanel-test", time.Minute, time.Hour)
	return NewUserService(repos.Users, repos.Accounts, tm), repos
}

func TestRegisterCreatesZeroBalanceAccount(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	u, acc, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "user", u.Role)
	assert.Equal(t, u.ID, acc.UserID)
	assert.True(t, acc.Balance.IsZero())

	got, err := svc.AccountFor(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "al", "alice@example.com", "correct horse")
	assert.Error(t, err)

	_, _, err = svc.Register(ctx, "alice", "not-an-email", "correct horse")
	assert.Error(t, err)

	_, _, err = svc.Register(ctx, "alice", "alice@example.com", "short")
	assert.Error(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, "alice2", "alice@example.com", "correct horse")
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)
}

func TestLoginAndRefresh(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	u, _, err := svc.Register(ctx, "alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	pair, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// Refreshing with the access token must fail; with the refresh token it
	// must mint a new pair for the same user.
	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, next.AccessToken)

	tm := auth.NewTokenManager("access-secret", "refresh-secret", "proxypanel-test", time.Minute, time.Hour)
	claims, isRefresh, err := tm.ParseAny(next.AccessToken)
	require.NoError(t, err)
	assert.False(t, isRefresh)
	assert.Equal(t, u.ID, claims.UserID)
}
