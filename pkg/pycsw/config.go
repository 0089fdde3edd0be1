// Package pycsw keeps a pycsw records repository in step with the datasets a
// CKAN site has harvested, and maintains the service keywords in the pycsw
// configuration file.
package pycsw

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ini/ini"

	"github.com/ckan/ckanext-spatial/pkg/domain"
)

// DefaultConfigPath is used when no -p flag is given.
const DefaultConfigPath = "default.cfg"

// DefaultTable is the records table name pycsw uses unless configured.
const DefaultTable = "records"

const (
	sectionRepository = "repository"
	sectionMetadata   = "metadata:main"
	keyKeywords       = "identification_keywords"
)

// Config is a loaded pycsw configuration file.
type Config struct {
	Path     string
	Database string
	Table    string

	file *ini.File
}

// LoadConfig reads the pycsw configuration at path, resolved against the
// working directory when relative.
func LoadConfig(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return nil, &domain.DomainError{
			Err:     domain.ErrConfigNotFound,
			Code:    "CONFIG_NOT_FOUND",
			Message: fmt.Sprintf("pycsw config file %s does not exist.", abs),
			Details: map[string]any{"path": abs},
		}
	}

	file, err := ini.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: read pycsw config %s: %v", domain.ErrConfigInvalid, abs, err)
	}

	repo := file.Section(sectionRepository)
	cfg := &Config{
		Path:     abs,
		Database: repo.Key("database").String(),
		Table:    repo.Key("table").MustString(DefaultTable),
		file:     file,
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("%w: %s has no [%s] database", domain.ErrConfigInvalid, abs, sectionRepository)
	}
	return cfg, nil
}

// Keywords returns the configured service keywords.
func (c *Config) Keywords() []string {
	return c.file.Section(sectionMetadata).Key(keyKeywords).Strings(",")
}

// SetKeywords replaces the service keywords in memory.
func (c *Config) SetKeywords(keywords string) {
	c.file.Section(sectionMetadata).Key(keyKeywords).SetValue(keywords)
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	if err := c.file.SaveTo(c.Path); err != nil {
		return fmt.Errorf("write pycsw config %s: %w", c.Path, err)
	}
	return nil
}
