package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// ExtentSRID returns the SRID of package_extent.the_geom, or 0 when the table
// does not exist.
func (s *Store) ExtentSRID(ctx context.Context) (int, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('public.package_extent') IS NOT NULL`).Scan(&exists); err != nil {
		return 0, fmt.Errorf("look up package_extent: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var srid int
	err := s.pool.QueryRow(ctx, `SELECT Find_SRID('public', 'package_extent', 'the_geom')`).Scan(&srid)
	if err != nil {
		return 0, fmt.Errorf("find package_extent srid: %w", err)
	}
	return srid, nil
}

// SetupExtentTable creates package_extent with a geometry column in the given
// SRID. An existing table in another SRID is an error, not migrated.
func (s *Store) SetupExtentTable(ctx context.Context, srid int) error {
	if err := s.CheckPostGIS(ctx); err != nil {
		return err
	}

	current, err := s.ExtentSRID(ctx)
	if err != nil {
		return err
	}
	if current != 0 {
		if current != srid {
			return fmt.Errorf("%w: package_extent uses %d, requested %d", domain.ErrSRIDMismatch, current, srid)
		}
		s.rememberSRID(current)
		return nil
	}

	ddl := fmt.Sprintf(`
CREATE TABLE package_extent (
  package_id text PRIMARY KEY,
  the_geom geometry(GEOMETRY, %d)
);
CREATE INDEX idx_package_extent_the_geom ON package_extent USING GIST (the_geom);
`, srid)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create package_extent: %w", err)
	}
	s.rememberSRID(srid)
	return nil
}

func (s *Store) rememberSRID(srid int) {
	s.mu.Lock()
	s.extentSRID = srid
	s.mu.Unlock()
}

func (s *Store) tableSRID(ctx context.Context) (int, error) {
	s.mu.Lock()
	srid := s.extentSRID
	s.mu.Unlock()
	if srid != 0 {
		return srid, nil
	}

	srid, err := s.ExtentSRID(ctx)
	if err != nil {
		return 0, err
	}
	if srid == 0 {
		return 0, errors.New("package_extent does not exist, run \"spatial initdb\" first")
	}
	s.rememberSRID(srid)
	return srid, nil
}

// SpatialExtras lists the "spatial" extras of active packages.
func (s *Store) SpatialExtras(ctx context.Context) ([]domain.SpatialExtra, error) {
	rows, err := s.pool.Query(ctx, `
SELECT pe.package_id, pe.value
FROM package_extra pe
JOIN package p ON p.id = pe.package_id
WHERE pe.key = $1 AND pe.state = 'active' AND p.state = 'active'
ORDER BY pe.package_id`, domain.SpatialExtraKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extras []domain.SpatialExtra
	for rows.Next() {
		var e domain.SpatialExtra
		if err := rows.Scan(&e.PackageID, &e.Value); err != nil {
			return nil, err
		}
		extras = append(extras, e)
	}
	return extras, rows.Err()
}

// SaveExtent stores a WKT geometry in EPSG:4326 as the package extent,
// reprojected to the table SRID when that differs.
func (s *Store) SaveExtent(ctx context.Context, packageID, wkt string) error {
	srid, err := s.tableSRID(ctx)
	if err != nil {
		return err
	}

	geom := fmt.Sprintf("ST_GeomFromText($2, %d)", domain.DefaultSRID)
	if srid != domain.DefaultSRID {
		geom = fmt.Sprintf("ST_Transform(%s, %d)", geom, srid)
	}
	query := fmt.Sprintf(`
INSERT INTO package_extent (package_id, the_geom)
VALUES ($1, %s)
ON CONFLICT (package_id) DO UPDATE SET the_geom = EXCLUDED.the_geom`, geom)

	_, err = s.pool.Exec(ctx, query, packageID, wkt)
	return err
}

// DeleteExtent removes a package extent, if any.
func (s *Store) DeleteExtent(ctx context.Context, packageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM package_extent WHERE package_id = $1`, packageID)
	return err
}

// BBoxSearch returns the ids of packages whose extent intersects the box,
// given in the coordinates of crsSRID.
func (s *Store) BBoxSearch(ctx context.Context, box orb.Bound, crsSRID int) ([]string, error) {
	srid, err := s.tableSRID(ctx)
	if err != nil {
		return nil, err
	}

	envelope := "ST_MakeEnvelope($1, $2, $3, $4, $5)"
	if crsSRID != srid {
		envelope = fmt.Sprintf("ST_Transform(%s, %d)", envelope, srid)
	}
	query := fmt.Sprintf(`
SELECT package_id FROM package_extent
WHERE ST_Intersects(the_geom, %s)
ORDER BY package_id`, envelope)

	rows, err := s.pool.Query(ctx, query, box.Min[0], box.Min[1], box.Max[0], box.Max[1], crsSRID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}
