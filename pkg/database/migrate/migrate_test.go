//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	tableExists := func(t *testing.T, name string) bool {
		t.Helper()
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_name = $1
			)
		`, name).Scan(&exists)
		require.NoError(t, err)
		return exists
	}

	t.Run("Run applies migrations", func(t *testing.T) {
		err := Run(db)
		require.NoError(t, err)

		for _, table := range []string{"users", "planning_sessions", "revoked_tokens"} {
			require.True(t, tableExists(t, table), "%s table should exist", table)
		}
		require.True(t, tableExists(t, migrationsTable), "bookkeeping lives in %s", migrationsTable)
		require.False(t, tableExists(t, "schema_migrations"), "default bookkeeping table must not be used")
	})

	t.Run("Version returns current version", func(t *testing.T) {
		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(3), version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		err := Run(db)
		require.NoError(t, err)

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, uint(3), version)
	})

	t.Run("email uniqueness ignores case", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO users (id, email, hashed_password) VALUES ('u1', 'Ana@example.com', 'x')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO users (id, email, hashed_password) VALUES ('u2', 'ana@EXAMPLE.com', 'x')`)
		require.Error(t, err)
	})

	t.Run("Down rolls back migrations", func(t *testing.T) {
		err := Down(db)
		require.NoError(t, err)

		require.False(t, tableExists(t, "planning_sessions"), "planning_sessions should not exist after down")
		require.False(t, tableExists(t, "users"), "users should not exist after down")
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		err := Steps(db, 1)
		require.NoError(t, err)

		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)
		require.True(t, tableExists(t, "users"))
		require.False(t, tableExists(t, "revoked_tokens"))

		err = Steps(db, 2)
		require.NoError(t, err)

		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(3), version)
	})
}
