package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

const (
	// DefaultConfigPath is where the benchmark config is expected.
	DefaultConfigPath = "config/benchmark_config.ini"

	// DefaultStorageDatabase is the database holding historical runs.
	DefaultStorageDatabase = "benchmark_results"

	// DefaultStorageCollection is the collection holding result documents.
	DefaultStorageCollection = "test_runs"
)

// Config is the parsed benchmark configuration file.
type Config struct {
	Storage StorageConfig
	Cloud   map[string]CloudConfig
}

// StorageConfig holds the results storage connection settings.
type StorageConfig struct {
	ConnectionString string
	Database         string
	Collection       string
}

// CloudConfig holds one cloud/SaaS database section.
type CloudConfig struct {
	Enabled          bool
	ConnectionString string
}

// Load reads and parses the ini configuration file. A missing file is an
// error; callers treat it as fatal with a remediation hint.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf(
			"benchmark config not found: %s (create it from %s.example): %w",
			path, path, err,
		)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Cloud: make(map[string]CloudConfig),
	}

	if sec, err := file.GetSection("results_storage"); err == nil {
		cfg.Storage.ConnectionString = sec.Key("mongodb_connection_string").String()
		cfg.Storage.Database = sec.Key("database_name").String()
		cfg.Storage.Collection = sec.Key("collection_name").String()
	}

	if cfg.Storage.Database == "" {
		cfg.Storage.Database = DefaultStorageDatabase
	}

	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = DefaultStorageCollection
	}

	for _, target := range CloudTargets() {
		sec, err := file.GetSection(target.ConfigSection)
		if err != nil {
			continue
		}

		cfg.Cloud[target.ConfigSection] = CloudConfig{
			Enabled:          sec.Key("enabled").MustBool(false),
			ConnectionString: sec.Key("connection_string").String(),
		}
	}

	return cfg, nil
}

// EnabledCloudTargets returns copies of the cloud target definitions that are
// enabled in the config, with the connection string populated. Enabled
// sections without a connection string are reported through the warn callback
// and skipped.
func (c *Config) EnabledCloudTargets(warn func(format string, args ...any)) []Target {
	enabled := make([]Target, 0, len(c.Cloud))

	for _, target := range CloudTargets() {
		cloud, ok := c.Cloud[target.ConfigSection]
		if !ok || !cloud.Enabled {
			continue
		}

		if cloud.ConnectionString == "" {
			if warn != nil {
				warn("%s is enabled but has no connection_string configured", target.Name)
			}

			continue
		}

		target.ConnectionString = cloud.ConnectionString
		enabled = append(enabled, target)
	}

	return enabled
}
