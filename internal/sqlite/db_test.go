package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", "activity_log").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count, "table activity_log not found")
}

// TestMigrationsAreIdempotent verifies a file database can be reopened
func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	_, err = db.Exec(`INSERT INTO activity_log (project_id, activity_type, summary) VALUES ('p1', 'project_created', 'created')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM activity_log").Scan(&count))
	require.Equal(t, 1, count)
}
