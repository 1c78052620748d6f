// Package config loads turbocharger settings: the counter store connection,
// the global retry limit, logging, metrics and a catalog of rate-limited
// services.
package config

import (
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/turbocharger/internal/logging"
	cerrors "github.com/vnykmshr/turbocharger/pkg/common/errors"
	"github.com/vnykmshr/turbocharger/pkg/common/validation"
	"github.com/vnykmshr/turbocharger/pkg/ratelimit/window"
)

// EnvPrefix prefixes environment variables overriding file values, e.g.
// TURBOCHARGER_HOST or TURBOCHARGER_LOG_LEVEL.
const EnvPrefix = "TURBOCHARGER"

// Default values.
const (
	DefaultHost       = "localhost"
	DefaultPort       = 6379
	DefaultRetryLimit = 60
	DefaultTimeout    = 500 * time.Millisecond
)

// Config is the resolved configuration of a turbocharger process.
type Config struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// RetryLimit applies to every service that does not set its own.
	// Nil means unlimited.
	RetryLimit *int `mapstructure:"retry_limit" yaml:"retry_limit"`

	// Timeout bounds every single store operation.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Log      logging.Config           `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig            `mapstructure:"metrics" yaml:"metrics"`
	Services map[string]ServiceConfig `mapstructure:"services" yaml:"services,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// Schedule is the cron spec of the window usage monitor.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// ServiceConfig is one entry of the services catalog.
type ServiceConfig struct {
	Limit     int `mapstructure:"limit" yaml:"limit"`
	Period    int `mapstructure:"period" yaml:"period"`
	BatchTime int `mapstructure:"batch_time" yaml:"batch_time"`

	// RetryLimit overrides the global retry limit when set.
	RetryLimit *int `mapstructure:"retry_limit" yaml:"retry_limit,omitempty"`

	// UnlimitedRetries removes any retry limit for this service.
	UnlimitedRetries bool `mapstructure:"unlimited_retries" yaml:"unlimited_retries,omitempty"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() Config {
	retryLimit := DefaultRetryLimit
	return Config{
		Host:       DefaultHost,
		Port:       DefaultPort,
		RetryLimit: &retryLimit,
		Timeout:    DefaultTimeout,
		Log:        logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Addr:     ":9090",
			Schedule: "@every 10s",
		},
	}
}

// LoadYAML reads a YAML file and merges it over Defaults.
func LoadYAML(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, cerrors.NewOperationError("config", "load", err).WithContext("path=" + path)
	}
	return decode(v)
}

// Load reads YAML from r and merges it over Defaults.
func Load(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, cerrors.NewOperationError("config", "load", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("retry_limit", *d.RetryLimit)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.format", string(d.Log.Format))
	v.SetDefault("log.nocolor", d.Log.NoColor)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.schedule", d.Metrics.Schedule)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&c, hook); err != nil {
		return nil, cerrors.NewOperationError("config", "decode", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks connection settings, logging and every catalog entry.
func (c *Config) Validate() error {
	if err := validation.ValidateNotEmpty("config", "host", c.Host); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return cerrors.NewValidationError("config", "port", c.Port, "out of range").
			WithHint("use a TCP port between 1 and 65535")
	}
	if c.RetryLimit != nil {
		if err := validation.ValidateNonNegative("config", "retry_limit", float64(*c.RetryLimit)); err != nil {
			return err
		}
	}
	if err := validation.ValidateNonNegative("config", "timeout", c.Timeout.Seconds()); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	for _, name := range c.ServiceNames() {
		if _, err := c.Service(name); err != nil {
			return err
		}
	}
	return nil
}

// ServiceNames returns the catalog entries in lexical order. Names are
// lower-cased by the loader.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Service builds the validated descriptor of a catalog entry.
func (c *Config) Service(name string) (window.Service, error) {
	sc, ok := c.Services[strings.ToLower(name)]
	if !ok {
		return window.Service{}, cerrors.NewValidationError("config", "service", name, "not configured").
			WithHint("add it under services:")
	}

	s := window.Service{
		Name:      strings.ToLower(name),
		Limit:     sc.Limit,
		Period:    sc.Period,
		BatchTime: sc.BatchTime,
	}
	switch {
	case sc.UnlimitedRetries:
		s = s.WithUnlimitedRetries()
	case sc.RetryLimit != nil:
		s = s.WithRetryLimit(*sc.RetryLimit)
	case c.RetryLimit != nil:
		s = s.WithRetryLimit(*c.RetryLimit)
	}

	if err := s.Validate(); err != nil {
		return window.Service{}, err
	}
	return s, nil
}

// Addr returns host:port of the counter store.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RedisOptions returns go-redis client options for the counter store.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr(),
		DialTimeout: c.Timeout,
	}
}

// WriteYAML dumps the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return cerrors.NewOperationError("config", "write", err)
	}
	return enc.Close()
}
