// Package config loads the language server configuration from the
// workspace's .sorbet/config.json, falling back to defaults when the file
// is absent.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete server configuration.
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
	Pool      PoolConfig      `json:"pool" mapstructure:"pool"`
	Queue     QueueConfig     `json:"queue" mapstructure:"queue"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Watcher   WatcherConfig   `json:"watcher" mapstructure:"watcher"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// WorkspaceConfig describes which files belong to the checked workspace.
type WorkspaceConfig struct {
	// SourceExtensions are the file suffixes picked up by the filesystem
	// reindex on `initialized`.
	SourceExtensions []string `json:"sourceExtensions" mapstructure:"sourceExtensions"`
	// PayloadDir holds built-in stub sources, entered before workspace
	// files and addressed by bare path.
	PayloadDir string `json:"payloadDir" mapstructure:"payloadDir"`
	// Ignore lists directory names skipped during the reindex walk.
	Ignore []string `json:"ignore" mapstructure:"ignore"`
}

// PoolConfig sizes the worker pool used for hashing and typechecking.
type PoolConfig struct {
	Workers int `json:"workers" mapstructure:"workers"`
}

// QueueConfig bounds the error/query channel.
type QueueConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// CacheConfig controls the on-disk indexed-tree cache.
type CacheConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// WatcherConfig controls the optional local filesystem watcher, used when
// the client never sends workspace/didChangeWatchedFiles.
type WatcherConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	DebounceMs     int  `json:"debounceMs" mapstructure:"debounceMs"`
	PollIntervalMs int  `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Workspace: WorkspaceConfig{
			SourceExtensions: []string{".rb", ".rbi"},
			PayloadDir:       "",
			Ignore:           []string{".git", ".sorbet", "vendor", "tmp", "node_modules"},
		},
		Pool: PoolConfig{
			Workers: 8,
		},
		Queue: QueueConfig{
			Capacity: 4096,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    ".sorbet/cache.db",
		},
		Watcher: WatcherConfig{
			Enabled:        false,
			DebounceMs:     200,
			PollIntervalMs: 1000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/.sorbet/config.json.
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".sorbet"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to <root>/.sorbet/config.json.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".sorbet")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Pool.Workers < 1 {
		return &ConfigError{Field: "pool.workers", Message: "must be at least 1"}
	}
	if c.Queue.Capacity < 1 {
		return &ConfigError{Field: "queue.capacity", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
