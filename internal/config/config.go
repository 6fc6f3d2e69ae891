package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone dataset timestamps and query dates are
	// interpreted in (e.g. "Europe/Prague"). All-day events start and end at
	// local midnight in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DataDir holds news.json and animals.json served as-is.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Events is the event definition dataset: a local path or an http(s)
	// URL, either a JSON array or an iCalendar file.
	Events string `yaml:"events" json:"events"`

	// CacheDir stores the HTTP cache of a remote Events dataset.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// reloading the dataset. Empty disables periodic reload.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MaxInstancesPerEvent caps instances per definition in one response.
	MaxInstancesPerEvent int `yaml:"max_instances_per_event" json:"max_instances_per_event"`

	// MaxWindowDays bounds to - from on /events requests.
	MaxWindowDays int `yaml:"max_window_days" json:"max_window_days"`

	// RateLimitPerMin limits requests per client and minute; 0 disables it.
	RateLimitPerMin int `yaml:"rate_limit_per_min" json:"rate_limit_per_min"`

	// TrustProxyHeaders makes the rate limiter key clients by
	// X-Forwarded-For / X-Real-IP instead of the peer address.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen               = "127.0.0.1:3000"
	defaultTimezone             = "Local"
	defaultLogLevel             = "info"
	defaultDataDir              = "./data"
	defaultEvents               = "./data/events.json"
	defaultCacheDir             = "./var/events-cache"
	defaultRefreshCron          = "*/15 * * * *"
	defaultMaxInstancesPerEvent = 5000
	defaultMaxWindowDays        = 366
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:               defaultListen,
		Timezone:             defaultTimezone,
		LogLevel:             defaultLogLevel,
		DataDir:              defaultDataDir,
		Events:               defaultEvents,
		CacheDir:             defaultCacheDir,
		RefreshCron:          defaultRefreshCron,
		MaxInstancesPerEvent: defaultMaxInstancesPerEvent,
		MaxWindowDays:        defaultMaxWindowDays,
		BasicAuth:            nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.Events == "" {
		c.Events = filepath.Join(c.DataDir, "events.json")
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.MaxInstancesPerEvent <= 0 {
		c.MaxInstancesPerEvent = defaultMaxInstancesPerEvent
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = defaultMaxWindowDays
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("config: rate_limit_per_min %d must not be negative", c.RateLimitPerMin)
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MaxWindow is MaxWindowDays as a duration.
func (c *Config) MaxWindow() time.Duration {
	return time.Duration(c.MaxWindowDays) * 24 * time.Hour
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is unmarshaled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".zoocal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
