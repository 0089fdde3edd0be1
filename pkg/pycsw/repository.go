package pycsw

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// Repository is the pycsw records table, in PostgreSQL or SQLite.
type Repository struct {
	db       *sql.DB
	table    string
	postgres bool
}

// OpenRepository opens the SQLAlchemy style database URL from the pycsw
// config: postgresql://... or sqlite:///path.
func OpenRepository(database, table string) (*Repository, error) {
	driver, dsn, err := parseDatabaseURL(database)
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = DefaultTable
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pycsw repository: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	return &Repository{db: db, table: table, postgres: driver == "postgres"}, nil
}

func parseDatabaseURL(database string) (driver, dsn string, err error) {
	scheme, rest, ok := strings.Cut(database, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported repository database %q", domain.ErrConfigInvalid, database)
	}
	// SQLAlchemy allows a driver suffix such as postgresql+psycopg2.
	scheme, _, _ = strings.Cut(scheme, "+")

	switch scheme {
	case "postgresql", "postgres":
		return "postgres", "postgres://" + rest, nil
	case "sqlite":
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return "", "", fmt.Errorf("%w: sqlite repository needs a file path", domain.ErrConfigInvalid)
		}
		return "sqlite", path, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported repository database %q", domain.ErrConfigInvalid, database)
	}
}

// Close closes the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (r *Repository) bind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) quotedTable() string {
	return pq.QuoteIdentifier(r.table)
}

// Setup creates the records table with the CKAN columns, if absent.
func (r *Repository) Setup(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  identifier text PRIMARY KEY,
  typename text NOT NULL DEFAULT 'csw:Record',
  schema text NOT NULL DEFAULT 'http://www.opengis.net/cat/csw/2.0.2',
  mdsource text NOT NULL DEFAULT 'local',
  insert_date text NOT NULL,
  xml text NOT NULL,
  anytext text NOT NULL,
  title text,
  abstract text,
  keywords text,
  date_modified text,
  wkt_geometry text,
  ckan_id text,
  ckan_modified text
)`, r.quotedTable())
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (ckan_id)`,
		pq.QuoteIdentifier("ix_"+r.table+"_ckan_id"), r.quotedTable())
	if _, err := r.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create ckan_id index: %w", err)
	}
	return nil
}

// Clear deletes every record.
func (r *Repository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+r.quotedTable())
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", r.table, err)
	}
	return res.RowsAffected()
}

// Existing maps the CKAN id of every synced record to its ckan_modified.
func (r *Repository) Existing(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ckan_id, coalesce(ckan_modified, '') FROM `+r.quotedTable()+` WHERE ckan_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := map[string]string{}
	for rows.Next() {
		var id, modified string
		if err := rows.Scan(&id, &modified); err != nil {
			return nil, err
		}
		existing[id] = modified
	}
	return existing, rows.Err()
}

var recordColumns = []string{
	"identifier", "typename", "schema", "mdsource", "insert_date", "xml", "anytext",
	"title", "abstract", "keywords", "date_modified", "wkt_geometry", "ckan_id", "ckan_modified",
}

func recordValues(rec *domain.Record) []any {
	return []any{
		rec.Identifier, rec.Typename, rec.Schema, rec.MDSource, rec.InsertDate, rec.XML, rec.AnyText,
		rec.Title, rec.Abstract, rec.Keywords, rec.DateModified, rec.WKTGeometry, rec.CKANID, rec.CKANModified,
	}
}

// Insert adds a record.
func (r *Repository) Insert(ctx context.Context, rec *domain.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.quotedTable(),
		strings.Join(recordColumns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", "))
	_, err := r.db.ExecContext(ctx, r.bind(query), recordValues(rec)...)
	return err
}

// Update replaces the record synced from rec.CKANID.
func (r *Repository) Update(ctx context.Context, rec *domain.Record) error {
	sets := make([]string, 0, len(recordColumns)-1)
	for _, c := range recordColumns {
		if c == "ckan_id" {
			continue
		}
		sets = append(sets, c+" = ?")
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE ckan_id = ?`, r.quotedTable(), strings.Join(sets, ", "))

	values := recordValues(rec)
	args := make([]any, 0, len(values))
	for i, c := range recordColumns {
		if c != "ckan_id" {
			args = append(args, values[i])
		}
	}
	args = append(args, rec.CKANID)

	res, err := r.db.ExecContext(ctx, r.bind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no record with ckan_id %s", rec.CKANID)
	}
	return nil
}

// Delete removes the records synced from the given CKAN ids.
func (r *Repository) Delete(ctx context.Context, ckanIDs []string) error {
	if len(ckanIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.bind(`DELETE FROM `+r.quotedTable()+` WHERE ckan_id = ?`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ckanIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM `+r.quotedTable()).Scan(&n)
	return n, err
}
