// Package testfixtures prepares a disposable CKAN PostgreSQL database for
// integration tests: the PostGIS extension, the package_extent table and the
// slice of the CKAN and harvest schema the spatial commands read.
package testfixtures

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckan/ckanext-spatial/pkg/storage"
)

// DatabaseURLEnv names the variable that enables the integration tests.
const DatabaseURLEnv = "CKAN_SPATIAL_TEST_DATABASE_URL"

// Pool connects to the test database, skipping the test when none is
// configured. The pool is closed when the test ends.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv(DatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping database test", DatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("failed to reach test database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// CleanPostGIS drops package_extent and the postgis extension.
func CleanPostGIS(ctx context.Context, t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	exec(ctx, t, pool, `DROP TABLE IF EXISTS package_extent`)
	exec(ctx, t, pool, `DROP EXTENSION IF EXISTS postgis CASCADE`)
}

// SpatialSetup installs postgis and creates package_extent in srid. It returns
// a store over the same pool.
func SpatialSetup(ctx context.Context, t testing.TB, pool *pgxpool.Pool, srid int) *storage.Store {
	t.Helper()
	exec(ctx, t, pool, `CREATE EXTENSION IF NOT EXISTS postgis`)

	store := storage.New(pool)
	if err := store.SetupExtentTable(ctx, srid); err != nil {
		t.Fatalf("failed to set up package_extent: %v", err)
	}
	return store
}

func exec(ctx context.Context, t testing.TB, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("fixture statement failed: %v\n%s", err, sql)
	}
}
