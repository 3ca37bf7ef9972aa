package db

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestStore wraps a Store with test cleanup functionality.
type TestStore struct {
	*Store
	pool *pgxpool.Pool
}

// testDatabaseURL returns TEST_DATABASE_URL, or "" when DB tests should not run.
func testDatabaseURL() string {
	if os.Getenv("SKIP_DB_TESTS") != "" {
		return ""
	}
	return os.Getenv("TEST_DATABASE_URL")
}

// NewTestStore connects to TEST_DATABASE_URL, applies migrations and
// truncates the history tables. The test is skipped when no database is
// configured or reachable.
func NewTestStore(t *testing.T) *TestStore {
	t.Helper()

	dbURL := testDatabaseURL()
	if dbURL == "" {
		t.Skip("Skipping database test (TEST_DATABASE_URL is not set)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Skipf("Skipping database test: cannot connect to test database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Skipf("Skipping database test: cannot ping test database: %v", err)
	}

	if err := Migrate(dbURL); err != nil {
		pool.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	ts := &TestStore{
		Store: NewStore(pool, nil),
		pool:  pool,
	}
	ts.Cleanup(t)
	t.Cleanup(ts.Close)
	return ts
}

// Close closes the database connection pool.
func (ts *TestStore) Close() {
	ts.pool.Close()
}

// Cleanup removes all data from test tables.
func (ts *TestStore) Cleanup(t *testing.T) {
	t.Helper()

	_, err := ts.pool.Exec(context.Background(), "TRUNCATE TABLE deployments, fee_snapshots RESTART IDENTITY")
	if err != nil {
		t.Fatalf("failed to cleanup test database: %v", err)
	}
}
