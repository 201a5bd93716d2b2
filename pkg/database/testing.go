package database

import (
	"testing"

	"github.com/jmoiron/sqlx"
)

// OpenTest returns a migrated in-memory SQLite database that is closed when
// the test finishes.
func OpenTest(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := Connect(Config{Driver: DriverSQLite, DSN: ":memory:", MaxConns: 1})
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
