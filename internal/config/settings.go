package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Scanner struct {
		Threads      int     `json:"threads"`
		Token        string  `json:"token"`
		PacingDelay  *uint32 `json:"pacing_delay"`
		RateLimit    float64 `json:"rate_limit"`
		ProbeTimeout uint32  `json:"probe_timeout"`
		ProbePort    uint16  `json:"probe_port"`
		ProbeProxy   string  `json:"probe_proxy"`
		UserAgent    string  `json:"user_agent"`
		MaxBodyBytes int64   `json:"max_body_bytes"`
	} `json:"scanner"`

	Source struct {
		URL              string `json:"url"`
		Timeout          uint32 `json:"timeout"`
		IncludeIPv6      bool   `json:"include_ipv6"`
		ExpandCIDR       bool   `json:"expand_cidr"`
		MaxHostsPerRange int    `json:"max_hosts_per_range"`
	} `json:"source"`

	Queue struct {
		Backend  string `json:"backend"`
		RedisURL string `json:"redis_url"`
	} `json:"queue"`

	Output struct {
		File  string `json:"file"`
		Redis struct {
			Enabled   bool   `json:"enabled"`
			URL       string `json:"url"`
			Retention Timer  `json:"retention"`
		} `json:"redis"`
		Database struct {
			Enabled bool `json:"enabled"`
		} `json:"database"`
	} `json:"output"`

	GeoLite struct {
		CountryDB string `json:"country_db"`
		ASNDB     string `json:"asn_db"`
	} `json:"geolite"`
}

const (
	DefaultSettingsPath = "data/settings.json"

	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// ConfigurationError is returned for a missing, unreadable or invalid
// settings file. It is always fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "config"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	configValue.Store(Config{})
}

// DefaultConfig returns the embedded default settings.
func DefaultConfig() Config {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		log.Error("Embedded default settings are invalid", "error", err)
	}
	return cfg
}

// ReadSettings loads, validates and publishes the settings stored at path.
// Unlike a long-running service there is no sensible fallback for a missing
// file, so every failure is a *ConfigurationError.
func ReadSettings(path string) (Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, &ConfigurationError{Field: path, Reason: "settings file not found (run with -init-config to create one)", Err: err}
		}
		return Config{}, &ConfigurationError{Field: path, Reason: "read settings file", Err: err}
	}

	cfg, err := ParseSettings(data)
	if err != nil {
		return Config{}, err
	}

	SetConfig(cfg)
	log.Debug("Settings file loaded successfully", "path", path)

	return cfg, nil
}

// ParseSettings decodes a settings document, fills zero values from the
// embedded defaults and validates the result.
func ParseSettings(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigurationError{Reason: "malformed settings", Err: err}
	}

	applyDefaults(&cfg, DefaultConfig())

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// WriteDefaultSettings writes the embedded defaults to path. An existing file
// is left untouched.
func WriteDefaultSettings(path string) error {
	if path == "" {
		path = DefaultSettingsPath
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("settings file %s already exists", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}

	if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("write default settings: %w", err)
	}

	return nil
}

func (cfg Config) Validate() error {
	if cfg.Scanner.Threads < 1 {
		return &ConfigurationError{Field: "scanner.threads", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Scanner.Threads)}
	}

	if strings.TrimSpace(cfg.Scanner.Token) == "" {
		return &ConfigurationError{Field: "scanner.token", Reason: "must not be empty"}
	}

	if cfg.Scanner.RateLimit < 0 {
		return &ConfigurationError{Field: "scanner.rate_limit", Reason: "must not be negative"}
	}

	if cfg.Scanner.ProbeProxy != "" {
		parsed, err := url.Parse(cfg.Scanner.ProbeProxy)
		if err != nil || parsed.Scheme != "socks5" || parsed.Host == "" {
			return &ConfigurationError{Field: "scanner.probe_proxy", Reason: "must be a socks5://host:port URL", Err: err}
		}
	}

	parsed, err := url.Parse(cfg.Source.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return &ConfigurationError{Field: "source.url", Reason: "must be an http(s) URL", Err: err}
	}

	if cfg.Source.MaxHostsPerRange < 0 {
		return &ConfigurationError{Field: "source.max_hosts_per_range", Reason: "must not be negative"}
	}

	switch cfg.Queue.Backend {
	case QueueBackendMemory, QueueBackendRedis:
	default:
		return &ConfigurationError{Field: "queue.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Queue.Backend)}
	}

	return nil
}

// applyDefaults fills fields left at their zero value. Threads is not
// defaulted: an explicit 0 must fail validation. PacingDelay is only filled
// when the key is absent, so "pacing_delay": 0 disables pacing.
func applyDefaults(cfg *Config, def Config) {
	if cfg.Scanner.Token == "" {
		cfg.Scanner.Token = def.Scanner.Token
	}
	if cfg.Scanner.PacingDelay == nil && def.Scanner.PacingDelay != nil {
		pacing := *def.Scanner.PacingDelay
		cfg.Scanner.PacingDelay = &pacing
	}
	if cfg.Scanner.ProbeTimeout == 0 {
		cfg.Scanner.ProbeTimeout = def.Scanner.ProbeTimeout
	}
	if cfg.Scanner.ProbePort == 0 {
		cfg.Scanner.ProbePort = def.Scanner.ProbePort
	}
	if cfg.Scanner.UserAgent == "" {
		cfg.Scanner.UserAgent = def.Scanner.UserAgent
	}
	if cfg.Scanner.MaxBodyBytes <= 0 {
		cfg.Scanner.MaxBodyBytes = def.Scanner.MaxBodyBytes
	}
	if cfg.Source.URL == "" {
		cfg.Source.URL = def.Source.URL
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = def.Source.Timeout
	}
	if cfg.Source.MaxHostsPerRange == 0 {
		cfg.Source.MaxHostsPerRange = def.Source.MaxHostsPerRange
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = def.Queue.Backend
	}
	if cfg.Output.Redis.Retention.IsZero() {
		cfg.Output.Redis.Retention = def.Output.Redis.Retention
	}
}

func SetConfig(newConfig Config) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}
