package worksheet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/worksheet/layout"
	"github.com/brunobiangulo/worksheet/record"
)

// Config holds all configuration for the worksheet engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.worksheet/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "worksheet".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.worksheet/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// DisableStore runs extractions without keeping any history.
	DisableStore bool `json:"disable_store" yaml:"disable_store"`

	// RowTolerance is the maximum Y distance, exclusive, between fragments
	// of one printed row.
	RowTolerance float64 `json:"row_tolerance" yaml:"row_tolerance"`

	// RetentionDays drops stored extractions older than this many days.
	// Zero keeps everything.
	RetentionDays int `json:"retention_days" yaml:"retention_days"`

	// Policy holds the word lists for row parsing and scrap detection.
	Policy record.Policy `json:"policy" yaml:"policy"`

	// Registerer receives the extraction metrics. Nil disables them.
	Registerer prometheus.Registerer `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with the workshop defaults.
// Database is stored in ~/.worksheet/worksheet.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:       "worksheet",
		StorageDir:   "home",
		RowTolerance: layout.DefaultTolerance,
		Policy:       record.DefaultPolicy(),
	}
}

// LoadConfig reads a JSON or YAML file over DefaultConfig. Lists given in
// the file replace the default lists.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: unknown config file type %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.RowTolerance < 0 {
		return fmt.Errorf("%w: row_tolerance must not be negative", ErrInvalidConfig)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("%w: retention_days must not be negative", ErrInvalidConfig)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "worksheet"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".worksheet", name+".db")
	}
}
