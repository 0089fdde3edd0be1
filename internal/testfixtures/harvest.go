package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var harvestSchema = []string{
	`CREATE TABLE IF NOT EXISTS package (
  id text PRIMARY KEY,
  name text UNIQUE NOT NULL,
  title text,
  state text NOT NULL DEFAULT 'active'
)`,
	`CREATE TABLE IF NOT EXISTS package_extra (
  id text PRIMARY KEY,
  package_id text REFERENCES package (id),
  key text NOT NULL,
  value text,
  state text NOT NULL DEFAULT 'active'
)`,
	`CREATE TABLE IF NOT EXISTS "group" (
  id text PRIMARY KEY,
  name text UNIQUE NOT NULL,
  title text
)`,
	`CREATE TABLE IF NOT EXISTS member (
  id text PRIMARY KEY,
  group_id text REFERENCES "group" (id),
  table_id text NOT NULL,
  table_name text NOT NULL,
  state text NOT NULL DEFAULT 'active'
)`,
	`CREATE TABLE IF NOT EXISTS harvest_source (
  id text PRIMARY KEY,
  url text NOT NULL,
  type text NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS harvest_object (
  id text PRIMARY KEY,
  guid text,
  current boolean NOT NULL DEFAULT false,
  package_id text REFERENCES package (id),
  harvest_source_id text REFERENCES harvest_source (id),
  fetch_finished timestamp,
  content text
)`,
	`CREATE TABLE IF NOT EXISTS harvest_object_error (
  id text PRIMARY KEY,
  harvest_object_id text REFERENCES harvest_object (id),
  message text,
  stage text
)`,
}

// HarvestSetup creates the CKAN and harvest tables the report reads and drops
// them again when the test ends.
func HarvestSetup(ctx context.Context, t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	for _, ddl := range harvestSchema {
		exec(ctx, t, pool, ddl)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS harvest_object_error, harvest_object, harvest_source, member, "group", package_extra, package CASCADE`)
	})
}

// SeedPackage inserts an active package and returns its id.
func SeedPackage(ctx context.Context, t testing.TB, pool *pgxpool.Pool, name, title string) string {
	t.Helper()
	id := uuid.NewString()
	exec(ctx, t, pool, `INSERT INTO package (id, name, title) VALUES ($1, $2, $3)`, id, name, title)
	return id
}

// SeedExtra adds an active extra to a package.
func SeedExtra(ctx context.Context, t testing.TB, pool *pgxpool.Pool, packageID, key, value string) {
	t.Helper()
	exec(ctx, t, pool, `INSERT INTO package_extra (id, package_id, key, value) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), packageID, key, value)
}

// SeedPublisher creates a group and makes the package one of its members.
func SeedPublisher(ctx context.Context, t testing.TB, pool *pgxpool.Pool, packageID, title string) {
	t.Helper()
	groupID := uuid.NewString()
	exec(ctx, t, pool, `INSERT INTO "group" (id, name, title) VALUES ($1, $2, $3)`, groupID, "group-"+groupID[:8], title)
	exec(ctx, t, pool, `INSERT INTO member (id, group_id, table_id, table_name) VALUES ($1, $2, $3, 'package')`,
		uuid.NewString(), groupID, packageID)
}

// HarvestObject describes a seeded harvest object.
type HarvestObject struct {
	GUID          string
	Current       bool
	PackageID     string
	SourceURL     string
	SourceType    string
	FetchFinished time.Time
	Content       string
	Errors        []string
}

// SeedHarvestObject inserts the object, its source and its errors, returning
// the object id.
func SeedHarvestObject(ctx context.Context, t testing.TB, pool *pgxpool.Pool, obj HarvestObject) string {
	t.Helper()

	sourceType := obj.SourceType
	if sourceType == "" {
		sourceType = "csw"
	}
	sourceID := uuid.NewString()
	exec(ctx, t, pool, `INSERT INTO harvest_source (id, url, type) VALUES ($1, $2, $3)`, sourceID, obj.SourceURL, sourceType)

	var fetched *time.Time
	if !obj.FetchFinished.IsZero() {
		fetched = &obj.FetchFinished
	}
	var packageID *string
	if obj.PackageID != "" {
		packageID = &obj.PackageID
	}

	id := uuid.NewString()
	exec(ctx, t, pool, `INSERT INTO harvest_object (id, guid, current, package_id, harvest_source_id, fetch_finished, content)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, obj.GUID, obj.Current, packageID, sourceID, fetched, obj.Content)

	for i, msg := range obj.Errors {
		exec(ctx, t, pool, `INSERT INTO harvest_object_error (id, harvest_object_id, message, stage) VALUES ($1, $2, $3, 'Import')`,
			id+"-"+string(rune('a'+i)), id, msg)
	}
	return id
}
