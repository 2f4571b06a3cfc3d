package database

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger, _ := test.NewNullLogger()

	db, err := NewDB(Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
