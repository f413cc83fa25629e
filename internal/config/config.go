package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything needed to assemble a page loader.
type Config struct {
	Fetch     FetchConfig     `yaml:"fetch"`
	Rendering RenderingConfig `yaml:"rendering"`
	Robots    RobotsConfig    `yaml:"robots"`
	Naming    NamingConfig    `yaml:"naming"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FetchConfig controls the HTTP client used for pages and resources.
type FetchConfig struct {
	UserAgent        string            `yaml:"user_agent"`
	Headers          map[string]string `yaml:"headers"`
	Timeout          Duration          `yaml:"timeout"`
	MaxBodyBytes     int64             `yaml:"max_body_bytes"`
	ProxyURL         string            `yaml:"proxy_url"`
	Concurrency      int               `yaml:"concurrency"`
	PerHostDelay     Duration          `yaml:"per_host_delay"`
	RateLimitPerHost RateLimitConfig   `yaml:"rate_limit_per_host"`
}

// RateLimitConfig applies a token bucket per host.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RenderingConfig controls optional headless rendering of the page itself.
type RenderingConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Timeout         Duration `yaml:"timeout"`
	WaitForSelector string   `yaml:"wait_for_selector"`
	DisableHeadless bool     `yaml:"disable_headless"`
}

// RobotsConfig configures robots.txt handling for the page URL.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// NamingConfig tunes generated file names.
type NamingConfig struct {
	Separator        string `yaml:"separator"`
	DefaultExtension string `yaml:"default_extension"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Fetch: FetchConfig{
			UserAgent:    "page-loader/1.0",
			Headers:      map[string]string{},
			Timeout:      DurationFrom(30 * time.Second),
			MaxBodyBytes: 50 * 1024 * 1024,
			Concurrency:  8,
		},
		Rendering: RenderingConfig{
			Enabled: false,
			Timeout: DurationFrom(30 * time.Second),
		},
		Robots: RobotsConfig{
			Respect:   false,
			UserAgent: "page-loader",
			CacheTTL:  DurationFrom(30 * time.Minute),
		},
		Naming: NamingConfig{
			Separator:        "-",
			DefaultExtension: "html",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Structured: false,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the loader configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Fetch.UserAgent) == "" {
		return errors.New("fetch.user_agent must be set")
	}
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0 (got %s)", c.Fetch.Timeout)
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be > 0 (got %d)", c.Fetch.MaxBodyBytes)
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0 (got %d)", c.Fetch.Concurrency)
	}
	if c.Fetch.PerHostDelay.Duration < 0 {
		return fmt.Errorf("fetch.per_host_delay must be >= 0 (got %s)", c.Fetch.PerHostDelay)
	}
	if rl := c.Fetch.RateLimitPerHost; rl.Requests < 0 {
		return fmt.Errorf("fetch.rate_limit_per_host.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Rendering.Enabled && c.Rendering.Timeout.Duration <= 0 {
		return fmt.Errorf("rendering.timeout must be > 0 when rendering is enabled (got %s)", c.Rendering.Timeout)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	if c.Naming.Separator == "" {
		return errors.New("naming.separator must be set")
	}
	for _, r := range c.Naming.Separator {
		if !isSafeSeparatorRune(r) {
			return fmt.Errorf("naming.separator %q may only contain '-', '_' or '.'", c.Naming.Separator)
		}
	}
	if strings.TrimSpace(c.Naming.DefaultExtension) == "" {
		return errors.New("naming.default_extension must be set")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalise() {
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Fetch.ProxyURL = strings.TrimSpace(c.Fetch.ProxyURL)
	if c.Fetch.Headers == nil {
		c.Fetch.Headers = make(map[string]string)
	}
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Rendering.WaitForSelector = strings.TrimSpace(c.Rendering.WaitForSelector)
	c.Naming.DefaultExtension = strings.TrimPrefix(strings.TrimSpace(c.Naming.DefaultExtension), ".")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// Enabled reports whether per-host rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

func isSafeSeparatorRune(r rune) bool {
	return r == '-' || r == '_' || r == '.'
}
