package database

import (
	"testing"

	"gorm.io/gorm/logger"
)

// TestDB creates an in-memory SQLite database with the full schema.
// The connection is closed through t.Cleanup.
func TestDB(t testing.TB) *Database {
	t.Helper()

	db, err := OpenSQLite(":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}
