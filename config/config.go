// Package config loads runtime configuration from a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alvmarrod/reperio/hadoopfs"
)

// Config holds all runtime configuration parameters
type Config struct {
	HDFSNamenode      string `json:"hdfs_namenode"`
	HDFSPort          int    `json:"hdfs_port"`
	HadoopConfDir     string `json:"hadoop_conf_dir"`
	CacheEnabled      bool   `json:"cache_enabled"`
	CachePath         string `json:"cache_path"`
	DefaultMaxRecords int64  `json:"default_max_records"`
	OpenRetries       int    `json:"open_retries"`
}

// LoadConfig reads and validates configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// StorageOptions maps the HDFS settings onto storage backend options.
func (c *Config) StorageOptions() hadoopfs.Options {
	return hadoopfs.Options{
		Namenode:      c.HDFSNamenode,
		Port:          c.HDFSPort,
		HadoopConfDir: c.HadoopConfDir,
	}
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.HDFSPort == 0 {
		cfg.HDFSPort = 9000
	}
	if cfg.CachePath == "" {
		cfg.CachePath = "reperio-cache.db"
	}
	if cfg.OpenRetries == 0 {
		cfg.OpenRetries = 2
	}
}

// validate checks configuration consistency
func validate(cfg *Config) error {
	if cfg.HDFSPort < 1 || cfg.HDFSPort > 65535 {
		return fmt.Errorf("hdfs_port must be between 1 and 65535, got %d", cfg.HDFSPort)
	}
	if cfg.DefaultMaxRecords < 0 {
		return fmt.Errorf("default_max_records must not be negative, got %d", cfg.DefaultMaxRecords)
	}
	if cfg.OpenRetries < 0 {
		return fmt.Errorf("open_retries must not be negative, got %d", cfg.OpenRetries)
	}
	return nil
}
