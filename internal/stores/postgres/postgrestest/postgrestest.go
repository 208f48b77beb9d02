// Package postgrestest starts a throwaway Postgres for integration tests.
package postgrestest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"shop-service/internal/stores/postgres"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewDB returns a migrated database. The test is skipped in -short mode.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.OpenDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, postgres.Migrate(db))
	return db
}

// SeedUser inserts a user and returns its id.
func SeedUser(t *testing.T, db *sql.DB, username, role string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, $2, 'x', $3) RETURNING id`,
		username+"@example.com", username, role).Scan(&id)
	require.NoError(t, err)
	return id
}

// SeedProduct inserts a product owned by sellerID and returns its id.
func SeedProduct(t *testing.T, db *sql.DB, sellerID int64, name, price string, stock int, available bool) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`
		INSERT INTO products (seller_id, name, price, stock, is_available)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		sellerID, name, price, stock, available).Scan(&id)
	require.NoError(t, err)
	return id
}
