package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/shalteor/bplog/internal/crypto"
	"github.com/shalteor/bplog/internal/db"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newAuth(t *testing.T, database *db.DB) *AuthService {
	t.Helper()

	auth, err := NewAuthService(database, crypto.NewPasswordHasher(crypto.AlgorithmArgon2id), nil)
	require.NoError(t, err)
	return auth
}

func berlin(t *testing.T) *time.Location {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func ptr(s string) *string {
	return &s
}
