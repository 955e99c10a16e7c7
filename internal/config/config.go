// Package config loads the optional YAML configuration file and applies
// built-in defaults. Values here sit below command-line flags: flags win,
// then the file, then the built-ins.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ledgerwatch/log/v3"
	"gopkg.in/yaml.v3"
)

// Built-in defaults, used when neither flags nor the config file set a value.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxInFlight   = 8
	DefaultWatchInterval = 30 * time.Second
	DefaultHealthSamples = 5
)

// Duration wraps time.Duration so YAML values like "30s" parse. Bare
// integers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	secs, err := strconv.ParseInt(value.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root structure of the YAML file.
type Config struct {
	Endpoints []Endpoint `yaml:"endpoints"`
	Defaults  Defaults   `yaml:"defaults"`
}

// Endpoint names an RPC URL so commands can refer to it by name
// instead of pasting the full URL.
type Endpoint struct {
	Name string `yaml:"name"` // Endpoint identifier (e.g., "mainnet", "archive")
	URL  string `yaml:"url"`  // JSON-RPC URL (supports ${VAR} env expansion)
}

// Defaults apply to every run unless overridden by a flag.
type Defaults struct {
	Timeout       Duration `yaml:"timeout"`        // Per-request timeout (e.g., "30s")
	MaxRetries    int      `yaml:"max_retries"`    // Retry attempts after a retryable failure (0 = none)
	MaxInFlight   int      `yaml:"max_in_flight"`  // Concurrent account fetches per run
	WatchInterval Duration `yaml:"watch_interval"` // Refresh interval for the watch command
	HealthSamples int      `yaml:"health_samples"` // Probe count for the health command
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML configuration file. ${VAR} references are
// expanded from the environment before parsing, so URLs can carry API keys
// without writing them to disk. Missing defaults are filled from the
// built-ins; everything else is validated strictly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Expand ${VAR} references before parsing.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Defaults.Timeout == 0 {
		c.Defaults.Timeout = Duration(DefaultTimeout)
	}
	if c.Defaults.MaxInFlight == 0 {
		c.Defaults.MaxInFlight = DefaultMaxInFlight
	}
	if c.Defaults.WatchInterval == 0 {
		c.Defaults.WatchInterval = Duration(DefaultWatchInterval)
	}
	if c.Defaults.HealthSamples == 0 {
		c.Defaults.HealthSamples = DefaultHealthSamples
	}
}

// Validate checks defaults and endpoint definitions. Suspicious timeouts
// produce warnings, not errors.
func (c *Config) Validate() error {
	if c.Defaults.MaxRetries < 0 {
		return fmt.Errorf("defaults.max_retries must be >= 0")
	}
	if c.Defaults.MaxInFlight <= 0 {
		return fmt.Errorf("defaults.max_in_flight must be > 0")
	}
	if c.Defaults.HealthSamples <= 0 {
		return fmt.Errorf("defaults.health_samples must be > 0")
	}
	if c.Defaults.WatchInterval.Std() <= 0 {
		return fmt.Errorf("defaults.watch_interval must be > 0")
	}

	warnTimeout(c.Defaults.Timeout.Std())

	seen := make(map[string]bool, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("endpoint with url %q: name is required", e.URL)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate endpoint name %q", e.Name)
		}
		seen[e.Name] = true

		if err := CheckURL(e.URL); err != nil {
			return fmt.Errorf("endpoint %s: %w", e.Name, err)
		}
	}
	return nil
}

// Resolve maps an endpoint name to its configured URL. Anything that is
// not a known name is returned unchanged, so raw URLs pass through.
func (c *Config) Resolve(ref string) string {
	for _, e := range c.Endpoints {
		if e.Name == ref {
			return e.URL
		}
	}
	return ref
}

// CheckURL rejects endpoints that are not absolute http or https URLs.
func CheckURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url %q (missing scheme or host)", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q (expected http or https)", u.Scheme)
	}
	return nil
}

func warnTimeout(d time.Duration) {
	const low = 500 * time.Millisecond
	const high = 2 * time.Minute
	if d > 0 && d < low {
		log.Warn("configured timeout is very low; requests may fail under normal network jitter", "timeout", d)
	}
	if d > high {
		log.Warn("configured timeout is very high; failures are slow to surface", "timeout", d)
	}
}
