package store

import (
	"path/filepath"
	"testing"
)

func newTestSQLiteRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "graphengine.sqlite")
	repo, err := NewSQLiteRepository(SQLiteConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}
