package validation

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// ReportColumns are the columns of the validation report, in order.
var ReportColumns = []string{
	"Harvest Object id",
	"GEMINI2 id",
	"Date fetched",
	"Dataset name",
	"Publisher",
	"Source URL",
	"Errors",
}

const fetchedLayout = "2006-01-02 15:04:05"

// ReportSource reads what the report needs from the CKAN database.
type ReportSource interface {
	// GetPackage resolves a package id or name.
	GetPackage(ctx context.Context, ref string) (*domain.Package, error)
	// HarvestReport lists current harvest objects, newest fetch first,
	// restricted to packageID when it is not empty.
	HarvestReport(ctx context.Context, packageID string) ([]domain.HarvestReportRow, error)
}

// ReportTable holds the rendered report cells.
type ReportTable struct {
	Columns []string
	Rows    [][]string
}

// IsValidationError reports whether a harvest object error was recorded by
// metadata validation rather than by another harvesting stage.
func IsValidationError(message string) bool {
	return strings.Contains(message, "not a valid Gemini") || strings.Contains(message, "Validating against")
}

// BuildReport produces the validation report for every current harvest object,
// or only for the package named by pkgRef.
func BuildReport(ctx context.Context, src ReportSource, pkgRef string) (*ReportTable, error) {
	packageID := ""
	if pkgRef != "" {
		pkg, err := src.GetPackage(ctx, pkgRef)
		if err != nil {
			return nil, err
		}
		packageID = pkg.ID
	}

	rows, err := src.HarvestReport(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("query harvest objects: %w", err)
	}

	table := &ReportTable{Columns: ReportColumns}
	for _, row := range rows {
		var validationErrors []string
		for _, msg := range row.Errors {
			if IsValidationError(msg) {
				validationErrors = append(validationErrors, msg)
			}
		}

		fetched := ""
		if row.FetchFinished != nil {
			fetched = row.FetchFinished.Format(fetchedLayout)
		}
		publisher := row.Publisher
		if publisher == "" {
			publisher = "(none)"
		}

		table.Rows = append(table.Rows, []string{
			row.HarvestObjectID,
			row.GUID,
			fetched,
			row.DatasetName,
			publisher,
			row.SourceURL,
			strings.Join(validationErrors, "; "),
		})
	}
	return table, nil
}

// WriteText prints one indented block per row.
func (t *ReportTable) WriteText(w io.Writer) error {
	var b strings.Builder
	for _, row := range t.Rows {
		b.WriteString("\n")
		for i, col := range t.Columns {
			fmt.Fprintf(&b, "  %s: %s\n", col, row[i])
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCSV writes a header row followed by every report row.
func (t *ReportTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSVFile writes the report as CSV to path, replacing any existing file.
func (t *ReportTable) WriteCSVFile(path string) (err error) {
	//nolint:gosec // Report path is given by the operator
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report file: %w", cerr)
		}
	}()
	return t.WriteCSV(f)
}
