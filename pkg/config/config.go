// Package config provides configuration structures and loading logic for ckan-spatial.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ckan/ckanext-spatial/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "ckan-spatial.yaml"

// Config holds the global configuration for the spatial commands.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Spatial    SpatialConfig    `yaml:"spatial"`
	Validation ValidationConfig `yaml:"validation"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig points at the CKAN database.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SpatialConfig holds the extent geometry settings.
type SpatialConfig struct {
	SRID int `yaml:"srid"`
}

// ValidationConfig names the validation profiles applied to metadata documents.
type ValidationConfig struct {
	Profiles []string `yaml:"profiles"`
}

// ServerConfig holds configuration for the HTTP server started by serve.
type ServerConfig struct {
	Listen string `yaml:"listen"`
	// Metrics exposes /metrics and the request metrics middleware.
	Metrics bool `yaml:"metrics"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Spatial:    SpatialConfig{SRID: domain.DefaultSRID},
		Validation: ValidationConfig{Profiles: []string{"iso19139"}},
		Server:     ServerConfig{Listen: ":8090", Metrics: true},
		Telemetry:  TelemetryConfig{ServiceName: "ckan-spatial"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse expands environment variables in data and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := []byte(os.ExpandEnv(string(data)))
	return yaml.Unmarshal(expanded, cfg)
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("CKAN_SQLALCHEMY_URL"); val != "" {
		cfg.Database.URL = val
	}
	if val := os.Getenv("CKAN_SPATIAL_SRID"); val != "" {
		srid, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || srid <= 0 {
			return fmt.Errorf("%w: CKAN_SPATIAL_SRID must be a positive integer, got %q", domain.ErrConfigInvalid, val)
		}
		cfg.Spatial.SRID = srid
	}
	if val := os.Getenv("CKAN_SPATIAL_VALIDATOR_PROFILES"); val != "" {
		cfg.Validation.Profiles = SplitList(val)
	}
	if val := os.Getenv("CKAN_SPATIAL_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("CKAN_SPATIAL_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	return nil
}

// SplitList splits a comma or space separated list, dropping empty items.
func SplitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate performs validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Spatial.Validate(); err != nil {
		return fmt.Errorf("spatial configuration: %w", err)
	}

	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8090"
	}

	return nil
}

// Validate checks the configured SRID.
func (c *SpatialConfig) Validate() error {
	if c.SRID == 0 {
		c.SRID = domain.DefaultSRID
	}
	if c.SRID < 0 {
		return fmt.Errorf("%w: srid must be positive, got %d", domain.ErrConfigInvalid, c.SRID)
	}
	return nil
}

// Validate normalises profile names.
func (c *ValidationConfig) Validate() error {
	if len(c.Profiles) == 0 {
		c.Profiles = []string{"iso19139"}
	}
	for i, p := range c.Profiles {
		c.Profiles[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	switch strings.ToLower(c.Format) {
	case "", "text":
		c.Format = "text"
	case "json":
		c.Format = "json"
	default:
		return fmt.Errorf("invalid log format %q, supported formats: text, json", c.Format)
	}
	return nil
}
