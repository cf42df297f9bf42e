// Package config loads the punishment configuration.
//
// The file is YAML. After loading, an optional .env file and SANCTION_*
// environment variables override the database, logging, metrics and event
// settings so deployments can keep secrets out of the file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/sanction/pkg/duration"
	"github.com/NicolasHaas/sanction/pkg/message"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config is the complete configuration consumed by the punishment engine.
type Config struct {
	Database      DatabaseConfig `yaml:"database"`
	Log           LogConfig      `yaml:"log"`
	MetricsAddr   string         `yaml:"metrics_addr"`   // empty disables /metrics
	SweepInterval string         `yaml:"sweep_interval"` // Go duration, e.g. "30s"
	Host          HostConfig     `yaml:"host"`
	Events        EventsConfig   `yaml:"events"`

	DefaultReason string `yaml:"default_reason"`
	Prefix        string `yaml:"prefix"`
	DisablePrefix bool   `yaml:"disable_prefix"`
	DateFormat    string `yaml:"date_format"` // Go time layout

	WarnActions map[int]string           `yaml:"warn_actions"`
	TimeLayouts map[string][]string      `yaml:"time_layouts"`
	Messages    map[string]message.Lines `yaml:"messages"`
	Layouts     map[string]message.Lines `yaml:"layouts"`

	catalog *message.Catalog
}

// DatabaseConfig selects the durable store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// LogConfig mirrors logging.Options.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HostConfig tunes the primary-thread task queue.
type HostConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// EventsConfig configures the optional Redis event publisher.
type EventsConfig struct {
	RedisAddr    string `yaml:"redis_addr"` // empty disables publishing
	RedisChannel string `yaml:"redis_channel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Parse(defaultYAML)
	if err != nil {
		panic("config: embedded default is invalid: " + err.Error())
	}
	return cfg
}

// DefaultYAML returns the embedded default file, for writing a starter config.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Parse decodes YAML on top of nothing and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the YAML file at path, falling back to the embedded default when
// path is empty, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	data := defaultYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&c.Database.Driver, "SANCTION_DB_DRIVER")
	setString(&c.Database.DSN, "SANCTION_DB_DSN")
	setString(&c.Log.Level, "SANCTION_LOG_LEVEL")
	setString(&c.Log.Format, "SANCTION_LOG_FORMAT")
	setString(&c.MetricsAddr, "SANCTION_METRICS_ADDR")
	setString(&c.Events.RedisAddr, "SANCTION_REDIS_ADDR")
	if v, ok := os.LookupEnv("SANCTION_QUEUE_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Host.QueueSize = n
		}
	}
}

// Validate checks the configuration and fills defaults for optional fields.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "sqlite"
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" && c.Database.Driver == "postgres" {
		errs = append(errs, errors.New("database.dsn is required for postgres"))
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "sanction.db"
	}

	if c.SweepInterval == "" {
		c.SweepInterval = "30s"
	}
	if d, err := time.ParseDuration(c.SweepInterval); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("sweep_interval %q: want a positive duration", c.SweepInterval))
	}
	if c.Host.QueueSize <= 0 {
		c.Host.QueueSize = 256
	}
	if c.Events.RedisChannel == "" {
		c.Events.RedisChannel = "sanction.events"
	}
	if c.DateFormat == "" {
		c.DateFormat = "02.01.2006-15:04"
	}
	if c.DefaultReason == "" {
		c.DefaultReason = "none"
	}

	for count := range c.WarnActions {
		if count <= 0 {
			errs = append(errs, fmt.Errorf("warn_actions: tier %d must be positive", count))
		}
	}
	for name, tiers := range c.TimeLayouts {
		if len(tiers) == 0 {
			errs = append(errs, fmt.Errorf("time_layouts.%s: empty", name))
		}
		for _, tier := range tiers {
			if _, err := duration.Parse(tier); err != nil {
				errs = append(errs, fmt.Errorf("time_layouts.%s: %w", name, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w: %w", ErrInvalid, errors.Join(errs...))
	}
	c.catalog = message.NewCatalog(c.Messages, c.Layouts)
	return nil
}

// Sweep returns the expiry sweep interval.
func (c *Config) Sweep() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Catalog returns the message catalog built from Messages and Layouts.
func (c *Config) Catalog() *message.Catalog {
	if c.catalog == nil {
		return message.NewCatalog(c.Messages, c.Layouts)
	}
	return c.catalog
}

// PrefixText returns the prefix placeholder value, honouring DisablePrefix.
func (c *Config) PrefixText() string {
	if c.DisablePrefix {
		return ""
	}
	return c.Prefix
}

// TimeLayout returns the duration tiers for a calculation layout. Layout
// names are matched case-insensitively.
func (c *Config) TimeLayout(name string) ([]string, bool) {
	if tiers, ok := c.TimeLayouts[name]; ok {
		return tiers, true
	}
	for k, tiers := range c.TimeLayouts {
		if strings.EqualFold(k, name) {
			return tiers, true
		}
	}
	return nil, false
}

// Source provides the current configuration snapshot.
type Source interface {
	Current() *Config
}

// Static is a Source that never changes.
type Static struct{ cfg *Config }

// NewStatic wraps cfg as a Source.
func NewStatic(cfg *Config) Static { return Static{cfg: cfg} }

// Current returns the wrapped config.
func (s Static) Current() *Config { return s.cfg }
