// Package config handles threeprof configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level threeprof configuration.
type Config struct {
	Browser     BrowserConfig     `yaml:"browser"`
	Repo        RepoConfig        `yaml:"repo"`
	Profiling   ProfilingConfig   `yaml:"profiling"`
	NetworkIdle NetworkIdleConfig `yaml:"network_idle"`
	Worklist    WorklistConfig    `yaml:"worklist"`
	Output      OutputConfig      `yaml:"output"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Server      ServerConfig      `yaml:"server"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote         string   `yaml:"remote"` // CDP websocket URL, empty launches a local Chrome
	Bin            string   `yaml:"bin"`
	Headful        bool     `yaml:"headful"`
	Xvfb           string   `yaml:"xvfb"` // display to start Xvfb on in headful mode, e.g. ":99"
	Stealth        bool     `yaml:"stealth"`
	Flags          []string `yaml:"flags"` // extra launcher flags, "name" or "name=value"
	ViewportWidth  int      `yaml:"viewport_width"`
	ViewportHeight int      `yaml:"viewport_height"`
}

// RepoConfig locates the library checkout and how it is served.
type RepoConfig struct {
	Path            string `yaml:"path"`
	BaseURL         string `yaml:"base_url"`
	MainScriptPath  string `yaml:"main_script_path"`
	SourceMapPath   string `yaml:"source_map_path"`
	ShaderChunkPath string `yaml:"shader_chunk_path"`
	ShaderLibPath   string `yaml:"shader_lib_path"`
	UniformsLibPath string `yaml:"uniforms_lib_path"`
	ExamplesList    string `yaml:"examples_list"`
	ExamplesPattern string `yaml:"examples_pattern"`
}

// ProfilingConfig bounds a session.
type ProfilingConfig struct {
	FPSLimit          int           `yaml:"fps_limit"`
	FrameWallClock    time.Duration `yaml:"frame_wall_clock"`
	FrameCeiling      time.Duration `yaml:"frame_ceiling"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ProfilerTimeout   time.Duration `yaml:"profiler_timeout"`
	MetricsInterval   time.Duration `yaml:"metrics_interval"`
	TypeProfile       bool          `yaml:"type_profile"`
	ConsistencyShims  []string      `yaml:"consistency_shims"` // scripts evaluated before any page script
}

// NetworkIdleConfig controls quiescence detection.
type NetworkIdleConfig struct {
	Quiet       time.Duration `yaml:"quiet"`
	MaxInflight int           `yaml:"max_inflight"`
}

// WorklistConfig filters discovered or supplied URLs.
type WorklistConfig struct {
	Prefixes []string `yaml:"prefixes"` // keep URLs containing "/<prefix>_"
	Banned   []string `yaml:"banned"`   // drop URLs containing any of these
	Limit    int      `yaml:"limit"`
}

// OutputConfig controls artifact persistence.
type OutputConfig struct {
	Dir   string       `yaml:"dir"`
	Split bool         `yaml:"split"`
	Sinks []SinkConfig `yaml:"sinks"`
}

// SinkConfig defines an extra output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LedgerConfig locates the SQLite run ledger. Empty Path disables it.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig controls the development file server.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values. It is idempotent.
func (c *Config) ApplyDefaults() {
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 320
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 240
	}

	if c.Repo.BaseURL == "" {
		c.Repo.BaseURL = "http://localhost:8080"
	}
	if c.Repo.MainScriptPath == "" {
		c.Repo.MainScriptPath = "build/three.module.js"
	}
	if c.Repo.ShaderChunkPath == "" {
		c.Repo.ShaderChunkPath = "src/renderers/shaders/ShaderChunk.js"
	}
	if c.Repo.ShaderLibPath == "" {
		c.Repo.ShaderLibPath = "src/renderers/shaders/ShaderLib.js"
	}
	if c.Repo.UniformsLibPath == "" {
		c.Repo.UniformsLibPath = "src/renderers/shaders/UniformsLib.js"
	}
	if c.Repo.ExamplesList == "" {
		c.Repo.ExamplesList = "examples/files.js"
	}
	if c.Repo.ExamplesPattern == "" {
		c.Repo.ExamplesPattern = `/examples/[a-z0-9_]+\.html`
	}

	if c.Profiling.FPSLimit <= 0 {
		c.Profiling.FPSLimit = 60
	}
	if c.Profiling.FrameWallClock <= 0 {
		c.Profiling.FrameWallClock = 15 * time.Second
	}
	if c.Profiling.FrameCeiling <= 0 {
		c.Profiling.FrameCeiling = 120 * time.Second
	}
	if c.Profiling.NavigationTimeout <= 0 {
		c.Profiling.NavigationTimeout = 120 * time.Second
	}
	if c.Profiling.ProfilerTimeout <= 0 {
		c.Profiling.ProfilerTimeout = 60 * time.Second
	}
	if c.Profiling.MetricsInterval <= 0 {
		c.Profiling.MetricsInterval = 250 * time.Millisecond
	}

	if c.NetworkIdle.Quiet <= 0 {
		c.NetworkIdle.Quiet = 500 * time.Millisecond
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Repo.Path == "" {
		errs = append(errs, errors.New("repo.path is required"))
	}
	if u, err := url.Parse(c.Repo.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("repo.base_url %q is not an absolute URL", c.Repo.BaseURL))
	}
	if _, err := regexp.Compile(c.Repo.ExamplesPattern); err != nil {
		errs = append(errs, fmt.Errorf("repo.examples_pattern: %w", err))
	}
	if c.NetworkIdle.MaxInflight < 0 {
		errs = append(errs, errors.New("network_idle.max_inflight must be >= 0"))
	}
	if c.Profiling.FrameWallClock > c.Profiling.FrameCeiling {
		errs = append(errs, errors.New("profiling.frame_wall_clock exceeds profiling.frame_ceiling"))
	}
	for i, s := range c.Output.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("output.sinks[%d]: webhook needs a url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("output.sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
