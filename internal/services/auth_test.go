package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shalteor/bplog/internal/crypto"
	"github.com/shalteor/bplog/internal/db"
	"github.com/shalteor/bplog/internal/models"
)

func TestRegister_FirstUserIsAdmin(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(t, setupTestDB(t))

	first, err := auth.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	second, err := auth.Register(ctx, "bob", "pw2")
	require.NoError(t, err)

	assert.True(t, first.IsAdmin)
	assert.False(t, second.IsAdmin)
	assert.NotEqual(t, "pw1", first.PasswordHash)
}

func TestRegister_UsernameTaken(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	auth := newAuth(t, database)

	_, err := auth.Register(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = auth.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	count, err := database.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegister_InvalidInput(t *testing.T) {
	auth := newAuth(t, setupTestDB(t))

	_, err := auth.Register(context.Background(), "   ", "pw")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = auth.Register(context.Background(), "carol", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(t, setupTestDB(t))

	registered, err := auth.Register(ctx, "alice", "correct horse")
	require.NoError(t, err)

	user, err := auth.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	for _, pw := range []string{"correct hors", "correct horse ", "Correct horse", ""} {
		_, err := auth.Login(ctx, "alice", pw)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "password %q", pw)
	}

	_, err = auth.Login(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "Alice", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "usernames are case-sensitive")
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	auth := newAuth(t, database)

	admin, err := auth.Register(ctx, "admin", "pw")
	require.NoError(t, err)
	bob, err := auth.Register(ctx, "bob", "pw")
	require.NoError(t, err)
	carol, err := auth.Register(ctx, "carol", "pw")
	require.NoError(t, err)

	reading := &models.Reading{UserID: bob.ID, Systolic: 120, Diastolic: 80, Pulse: 60}
	require.NoError(t, database.Readings().Create(ctx, reading))

	assert.ErrorIs(t, auth.DeleteUser(ctx, admin.ID, admin.ID), ErrForbiddenSelfDelete)
	assert.ErrorIs(t, auth.DeleteUser(ctx, carol.ID, bob.ID), ErrNotAuthorized)
	assert.ErrorIs(t, auth.DeleteUser(ctx, 999, bob.ID), ErrNotAuthorized)
	assert.ErrorIs(t, auth.DeleteUser(ctx, admin.ID, 999), db.ErrUserNotFound)

	require.NoError(t, auth.DeleteUser(ctx, admin.ID, bob.ID))

	_, err = auth.GetUser(ctx, bob.ID)
	assert.ErrorIs(t, err, db.ErrUserNotFound)

	readings, err := database.Readings().List(ctx, bob.ID, models.SortDesc)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	auth := newAuth(t, setupTestDB(t))

	admin, err := auth.Register(ctx, "admin", "pw")
	require.NoError(t, err)
	bob, err := auth.Register(ctx, "bob", "pw")
	require.NoError(t, err)

	users, err := auth.ListUsers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)

	_, err = auth.ListUsers(ctx, bob)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = auth.ListUsers(ctx, nil)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestRegister_ConcurrentSingleAdmin(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	auth, err := NewAuthService(database, crypto.NewPasswordHasher(crypto.AlgorithmBcrypt), nil)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	results := make(chan *models.User, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := auth.Register(ctx, fmt.Sprintf("user%02d", i), "pw")
			if err != nil {
				errs <- err
				return
			}
			results <- u
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("concurrent register failed: %v", err)
	}

	admins := 0
	for u := range results {
		if u.IsAdmin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)

	count, err := database.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}
