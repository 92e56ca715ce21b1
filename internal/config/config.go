package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all engine configuration
type Config struct {
	Ingest    IngestConfig    `toml:"ingest"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Storage   StorageConfig   `toml:"storage"`
}

// IngestConfig tunes the ingestion path
type IngestConfig struct {
	// StreamsDir is where session backing files live; empty means the
	// system temp directory.
	StreamsDir string `toml:"streams_dir"`
	// PollIntervalMs is the growth poll cadence for followed files.
	PollIntervalMs int `toml:"poll_interval_ms"`
}

// DiscoveryConfig tunes timestamp format discovery
type DiscoveryConfig struct {
	// SampleRows bounds how many rows discovery inspects.
	SampleRows int `toml:"sample_rows"`
	// MinConfidence is the share of sampled rows a candidate must match.
	MinConfidence float64 `toml:"min_confidence"`
}

// StorageConfig locates the persistence database
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			PollIntervalMs: 250,
		},
		Discovery: DiscoveryConfig{
			SampleRows:    500,
			MinConfidence: 0.5,
		},
	}
}

// Load loads config from file, falling back to defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := getConfigPath()
	if configPath == "" {
		return nil
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

// getConfigPath returns the config file path
func getConfigPath() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "loggrab", "config.toml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "loggrab", "config.toml")
}

// GetConfigPath exports the config path for user reference
func GetConfigPath() string {
	return getConfigPath()
}
