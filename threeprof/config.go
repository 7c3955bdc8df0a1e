package threeprof

import (
	"github.com/3jsLive/tasks/threeprof/internal/config"
)

// Config is the top-level threeprof configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// RepoConfig locates the library checkout.
type RepoConfig = config.RepoConfig

// SinkConfig defines an extra output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return config.Default()
}
