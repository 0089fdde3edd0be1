package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// GetPackage resolves a package by id, then by name.
func (s *Store) GetPackage(ctx context.Context, ref string) (*domain.Package, error) {
	if _, err := uuid.Parse(ref); err == nil {
		pkg, err := s.packageBy(ctx, "id", ref)
		if err == nil || !errors.Is(err, pgx.ErrNoRows) {
			return pkg, err
		}
	}

	pkg, err := s.packageBy(ctx, "name", ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.PackageNotFound(ref)
	}
	return pkg, err
}

func (s *Store) packageBy(ctx context.Context, column, value string) (*domain.Package, error) {
	var p domain.Package
	query := fmt.Sprintf(`SELECT id, name, coalesce(title, '') FROM package WHERE %s = $1`, column)
	if err := s.pool.QueryRow(ctx, query, value).Scan(&p.ID, &p.Name, &p.Title); err != nil {
		return nil, err
	}
	return &p, nil
}

const harvestReportQuery = `
SELECT
  ho.id,
  coalesce(ho.guid, ''),
  ho.fetch_finished,
  coalesce(p.name, ''),
  coalesce((
    SELECT g.title FROM member m
    JOIN "group" g ON g.id = m.group_id
    WHERE m.table_id = p.id AND m.table_name = 'package' AND m.state = 'active'
    ORDER BY g.title
    LIMIT 1
  ), ''),
  coalesce(hs.url, ''),
  coalesce((
    SELECT array_agg(e.message ORDER BY e.id)
    FROM harvest_object_error e
    WHERE e.harvest_object_id = ho.id
  ), '{}'::text[])
FROM harvest_object ho
LEFT JOIN package p ON p.id = ho.package_id
LEFT JOIN harvest_source hs ON hs.id = ho.harvest_source_id
WHERE ho.current = true AND ($1::text = '' OR ho.package_id = $1::text)
ORDER BY ho.fetch_finished DESC NULLS LAST, ho.id`

// HarvestReport lists current harvest objects, newest fetch first, with all
// of their error messages. packageID restricts the rows to one package.
func (s *Store) HarvestReport(ctx context.Context, packageID string) ([]domain.HarvestReportRow, error) {
	rows, err := s.pool.Query(ctx, harvestReportQuery, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HarvestReportRow
	for rows.Next() {
		var r domain.HarvestReportRow
		if err := rows.Scan(&r.HarvestObjectID, &r.GUID, &r.FetchFinished, &r.DatasetName, &r.Publisher, &r.SourceURL, &r.Errors); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
