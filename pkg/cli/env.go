// Package cli builds the ckan-spatial command tree: the spatial,
// spatial-validation and ckan-pycsw command groups and the serve command.
// Commands only parse arguments and forward to the packages that do the work.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/ckan/ckanext-spatial/pkg/ckanapi"
	"github.com/ckan/ckanext-spatial/pkg/config"
	"github.com/ckan/ckanext-spatial/pkg/domain"
	"github.com/ckan/ckanext-spatial/pkg/logging"
	"github.com/ckan/ckanext-spatial/pkg/pycsw"
	"github.com/ckan/ckanext-spatial/pkg/storage"
	"github.com/ckan/ckanext-spatial/pkg/telemetry"
	"github.com/ckan/ckanext-spatial/pkg/webapp"
)

// Store is the CKAN database as the commands use it.
type Store interface {
	SetupExtentTable(ctx context.Context, srid int) error
	SpatialExtras(ctx context.Context) ([]domain.SpatialExtra, error)
	SaveExtent(ctx context.Context, packageID, wkt string) error
	DeleteExtent(ctx context.Context, packageID string) error
	BBoxSearch(ctx context.Context, box orb.Bound, crsSRID int) ([]string, error)
	GetPackage(ctx context.Context, ref string) (*domain.Package, error)
	HarvestReport(ctx context.Context, packageID string) ([]domain.HarvestReportRow, error)
	Close()
}

// Env is shared by every command of one process.
type Env struct {
	ConfigPath string
	LogLevel   string

	Config *config.Config
	Logger *slog.Logger
	Out    io.Writer
	App    *webapp.App

	// OpenStore connects to the CKAN database.
	OpenStore func(ctx context.Context, url string) (Store, error)
	// NewCatalog builds a client for a CKAN site.
	NewCatalog func(url string) pycsw.Catalog

	shutdownTracing func(context.Context) error
}

// NewEnv returns an Env wired to the real backends.
func NewEnv() *Env {
	return &Env{
		ConfigPath: config.DefaultPath,
		Out:        os.Stdout,
		Logger:     slog.Default(),
		App:        webapp.New(nil, slog.Default()),
		OpenStore: func(ctx context.Context, url string) (Store, error) {
			s, err := storage.Open(ctx, url)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		NewCatalog: func(url string) pycsw.Catalog {
			return ckanapi.New(url, nil)
		},
	}
}

// Init loads the CLI config, sets up logging and tracing. A missing config
// file is only an error when the path was given explicitly.
func (e *Env) Init(ctx context.Context, explicitConfig bool) error {
	path := e.ConfigPath
	if !explicitConfig {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if e.LogLevel != "" {
		cfg.Logging.Level = e.LogLevel
	}
	e.Config = cfg

	e.Logger = logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	slog.SetDefault(e.Logger)

	shutdown, err := telemetry.SetupProvider(ctx, telemetry.FromSettings(
		cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Insecure))
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	e.shutdownTracing = shutdown
	return nil
}

// Close flushes telemetry.
func (e *Env) Close(ctx context.Context) error {
	if e.shutdownTracing == nil {
		return nil
	}
	return e.shutdownTracing(ctx)
}

func (e *Env) config() *config.Config {
	if e.Config == nil {
		e.Config = config.Default()
	}
	return e.Config
}

func (e *Env) store(ctx context.Context) (Store, error) {
	return e.OpenStore(ctx, e.config().Database.URL)
}

// timed runs a command body and records its duration.
func timed(name string, fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		err := fn(cmd, args)
		telemetry.RecordCommand(cmd.Context(), name, time.Since(start), err)
		return err
	}
}
