package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration. Every field can come from the
// YAML file or from command-line flags.
type Config struct {
	// APIKey is the Notion integration token.
	APIKey string `yaml:"api_key"`
	// Databases are the database ids to poll. In export mode they are CSV
	// file names and may be left empty to use every CSV in the archive.
	Databases []string `yaml:"databases"`
	// OutputPath is the directory the .ics files are written to.
	OutputPath string `yaml:"output_path"`
	// Refresh is either a Go duration ("15m") or a cron expression.
	Refresh string `yaml:"refresh"`

	DateProperty string `yaml:"date_property"`
	HideProperty string `yaml:"hide_property"`

	// Export is the path of a Notion export ZIP used instead of the API.
	Export         string        `yaml:"export"`
	ExportTimezone string        `yaml:"export_timezone"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`

	MetricsListen string `yaml:"metrics_listen"`
	StateDB       string `yaml:"state_db"`
	LogLevel      string `yaml:"log_level"`
}

// Defaults returns a Config with all default values set.
func Defaults() Config {
	return Config{
		OutputPath:     "./",
		Refresh:        "15m",
		ExportTimezone: "Local",
		FetchTimeout:   30 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and canonicalizes API database ids.
func (c *Config) Validate() error {
	if c.APIKey == "" && c.Export == "" {
		return errors.New("one of api_key or export must be set")
	}
	if c.APIKey != "" && c.Export != "" {
		return errors.New("only one of api_key or export may be set")
	}
	if c.OutputPath == "" {
		return errors.New("output_path must not be empty")
	}
	if c.Refresh == "" {
		return errors.New("refresh must not be empty")
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must not be negative, got %s", c.FetchTimeout)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if c.Export != "" {
		if _, err := time.LoadLocation(c.ExportTimezone); err != nil {
			return fmt.Errorf("invalid export_timezone %q: %w", c.ExportTimezone, err)
		}
		return nil
	}

	if len(c.Databases) == 0 {
		return errors.New("at least one database is required")
	}
	for i, id := range c.Databases {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid database id %q: %w", id, err)
		}
		c.Databases[i] = parsed.String()
	}

	return nil
}
