// Package storage reads and writes the spatial tables of a CKAN PostgreSQL
// database: package extents in PostGIS, package lookups and the harvest
// objects behind the validation report.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// ErrNoDatabase is returned when no CKAN database URL is configured.
var ErrNoDatabase = errors.New("no CKAN database configured (set database.url or CKAN_SQLALCHEMY_URL)")

// Store is the pgx-backed CKAN database.
type Store struct {
	pool *pgxpool.Pool

	mu         sync.Mutex
	extentSRID int
}

// Open connects to the CKAN database and checks it answers.
func Open(ctx context.Context, url string) (*Store, error) {
	if url == "" {
		return nil, ErrNoDatabase
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open CKAN database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to CKAN database: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases every connection.
func (s *Store) Close() {
	s.pool.Close()
}

// CheckPostGIS fails with domain.ErrPostGISUnavailable when the postgis
// extension is not installed.
func (s *Store) CheckPostGIS(ctx context.Context) error {
	var version string
	if err := s.pool.QueryRow(ctx, `SELECT postgis_lib_version()`).Scan(&version); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPostGISUnavailable, err)
	}
	return nil
}
