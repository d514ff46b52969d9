package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storetest"
)

func newSQLite(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store { return newSQLite(t) })
}

func TestSQLiteRepository_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	repo, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
}

func TestSQLiteRepository_CancelledContextIsUnavailable(t *testing.T) {
	repo := newSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListActiveRules(ctx, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestSQLiteRepository_SchemaRejectsInconsistentRule(t *testing.T) {
	repo := newSQLite(t)
	rule := storetest.NewRule(uuid.New())
	rule.DayOfMonth = nil

	_, err := repo.CreateRule(context.Background(), rule)
	require.Error(t, err)
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := storage.NewError("insert transaction", storage.ErrUnavailable, cause)

	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, "insert transaction: storage unavailable: disk full", err.Error())

	var se *storage.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert transaction", se.Op)

	assert.Equal(t, "get rule: not found", storage.NewError("get rule", storage.ErrNotFound, nil).Error())
}
