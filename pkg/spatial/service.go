package spatial

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ckan/ckanext-spatial/pkg/domain"
	"github.com/ckan/ckanext-spatial/pkg/telemetry"
)

// ExtentStore is the PostGIS side of the extent commands.
type ExtentStore interface {
	// SetupExtentTable creates the package_extent table with the given SRID, or
	// checks that the existing one uses it.
	SetupExtentTable(ctx context.Context, srid int) error
	// SpatialExtras lists the "spatial" extras of active packages.
	SpatialExtras(ctx context.Context) ([]domain.SpatialExtra, error)
	// SaveExtent stores a WKT geometry given in EPSG:4326 as the package extent.
	SaveExtent(ctx context.Context, packageID, wkt string) error
	// DeleteExtent removes a package extent, if any.
	DeleteExtent(ctx context.Context, packageID string) error
}

// Service runs the spatial commands.
type Service struct {
	store  ExtentStore
	srid   int
	logger *slog.Logger
	out    io.Writer
}

// NewService builds a Service. srid is the configured default for initdb.
func NewService(store ExtentStore, srid int, logger *slog.Logger, out io.Writer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	if srid <= 0 {
		srid = domain.DefaultSRID
	}
	return &Service{store: store, srid: srid, logger: logger, out: out}
}

// ParseSRID reads the optional initdb argument; empty means the configured default.
func (s *Service) ParseSRID(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return s.srid, nil
	}
	srid, err := strconv.Atoi(arg)
	if err != nil || srid <= 0 {
		return 0, fmt.Errorf("%w: srid must be a positive integer, got %q", domain.ErrConfigInvalid, arg)
	}
	return srid, nil
}

// InitDB creates the extent table.
func (s *Service) InitDB(ctx context.Context, srid int) error {
	if srid <= 0 {
		srid = s.srid
	}
	s.logger.Debug("Setting up extent table", "srid", srid)
	if err := s.store.SetupExtentTable(ctx, srid); err != nil {
		return err
	}
	_, err := fmt.Fprintln(s.out, "DB tables created")
	return err
}

// ExtentsResult summarises an UpdateExtents run.
type ExtentsResult struct {
	Total     int
	Generated int
	Errors    []string
}

// UpdateExtents recomputes the extent of every package with a spatial extra.
// Values that are not valid GeoJSON are reported and their extent is removed.
func (s *Service) UpdateExtents(ctx context.Context) (*ExtentsResult, error) {
	extras, err := s.store.SpatialExtras(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spatial extras: %w", err)
	}

	res := &ExtentsResult{Total: len(extras)}
	for _, extra := range extras {
		s.logger.Debug("Received spatial extra", "package_id", extra.PackageID, "value", extra.Value)

		geom, perr := ParseGeoJSON(extra.Value)
		if perr != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Package %s - Error decoding JSON object: %v", extra.PackageID, perr))
			if err := s.store.DeleteExtent(ctx, extra.PackageID); err != nil {
				return nil, fmt.Errorf("delete extent of %s: %w", extra.PackageID, err)
			}
			continue
		}

		if err := s.store.SaveExtent(ctx, extra.PackageID, ToWKT(geom)); err != nil {
			return nil, fmt.Errorf("save extent of %s: %w", extra.PackageID, err)
		}
		res.Generated++
	}

	telemetry.RecordExtents(ctx, res.Generated, len(res.Errors))

	if len(res.Errors) > 0 {
		fmt.Fprintf(s.out, "Errors were found:\n%s\n", strings.Join(res.Errors, "\n"))
	}
	fmt.Fprintf(s.out, "Done. Extents generated for %d out of %d packages\n", res.Generated, res.Total)

	return res, nil
}
