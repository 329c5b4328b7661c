// Package config loads the daemon's YAML configuration document into typed
// sections via gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FSAL holds `fsal.*` options: the daemon socket, the ordered base-path
// list, and the blacklist patterns.
type FSAL struct {
	Socket    string   `yaml:"socket"`
	BasePaths []string `yaml:"basepaths"`
	Blacklist []string `yaml:"blacklist"`
}

// Bundles holds `bundles.*` options.
type Bundles struct {
	BundlesDir  string   `yaml:"bundles_dir"`
	BundlesExts []string `yaml:"bundles_exts"`
}

// ONDD holds `ondd.*` options: the IPC socket of the external notification
// source.
type ONDD struct {
	Socket string `yaml:"socket"`
}

// Database holds `database.*` options. The daemon's persistent state is
// always the bundled SQLite facade (internal/store); only backend=sqlite
// and name are wired, the remaining fields are accepted for forward
// compatibility with server-backed deployments.
type Database struct {
	Backend  string `yaml:"backend"`
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Logging holds `logging.*` options. internal/logging reads Level and File;
// MaxSizeMB and Backups are parsed but not acted on (no log rotation).
type Logging struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Backups   int    `yaml:"backups"`
}

// Config is the daemon's full configuration document.
type Config struct {
	FSAL     FSAL     `yaml:"fsal"`
	Bundles  Bundles  `yaml:"bundles"`
	ONDD     ONDD     `yaml:"ondd"`
	Database Database `yaml:"database"`
	Logging  Logging  `yaml:"logging"`
}

// Load reads and parses the YAML document at path and applies defaults for
// fields the document omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.Bundles.BundlesDir == "" {
		c.Bundles.BundlesDir = "bundles"
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "sqlite"
	}
	if c.Database.Name == "" {
		c.Database.Name = "fsal.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the options the daemon cannot start without.
func (c *Config) Validate() error {
	if c.FSAL.Socket == "" {
		return fmt.Errorf("config: fsal.socket is required")
	}
	if len(c.FSAL.BasePaths) == 0 {
		return fmt.Errorf("config: fsal.basepaths must name at least one directory")
	}
	return nil
}

// TransferBase is the last configured base path, the default transfer
// destination.
func (c *Config) TransferBase() string {
	return c.FSAL.BasePaths[len(c.FSAL.BasePaths)-1]
}
