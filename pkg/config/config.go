// Package config loads and validates the service configuration.
//
// The loader never partially succeeds: either a complete, validated
// Configuration record is produced or an error is returned before any
// network resource is touched.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/pventura/tidepool/pkg/cache"
	"github.com/pventura/tidepool/pkg/database"
)

// MissingKeyError reports a required configuration key that is absent or
// empty. Startup fails fast on this error, before any resource is opened.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Key)
}

// Config represents the full service configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DATABASE_URL, REDIS_URL, POSTGRES_*, TIDEPOOL_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The record is populated once at process start and treated as immutable
// afterwards.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Database configures the PostgreSQL connection pool.
	Database database.Config `mapstructure:"database" yaml:"database"`

	// Cache configures the Redis cache client.
	Cache cache.Config `mapstructure:"cache" yaml:"cache"`

	// Server configures the HTTP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics controls the Prometheus /metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds the drain phase during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Default: 127.0.0.1.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. Default: 3000.
	Port int `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`   // Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"` // Default: 10s
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`   // Default: 60s
}

// Addr returns the host:port string the listener binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served. Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to a YAML config file (empty string means env-only)
//
// Returns the complete validated configuration, or an error before any
// network resource has been touched.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveDatabaseURL(&cfg); err != nil {
		return nil, err
	}
	if cfg.Cache.URL == "" {
		return nil, &MissingKeyError{Key: "REDIS_URL"}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures env bindings and the config file location.
//
// Prefixed variables (TIDEPOOL_DATABASE_MAX_CONNS and friends) cover every
// key; the well-known unprefixed names used by local setups are bound
// explicitly on top.
func setupViper(v *viper.Viper, configPath string) {
	registerDefaults(v)

	v.SetEnvPrefix("TIDEPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed aliases take effect only when the prefixed form is unset.
	_ = v.BindEnv("database.url", "TIDEPOOL_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("cache.url", "TIDEPOOL_CACHE_URL", "REDIS_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the config file when one was requested. A missing
// file is only an error when an explicit path was given.
func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// resolveDatabaseURL fills Database.URL from the POSTGRES_* variables when
// DATABASE_URL itself is not set, matching local docker-compose setups.
func resolveDatabaseURL(cfg *Config) error {
	if cfg.Database.URL != "" {
		return nil
	}

	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	dbname := os.Getenv("POSTGRES_DB")
	if user == "" || password == "" || dbname == "" {
		return &MissingKeyError{Key: "DATABASE_URL"}
	}

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	cfg.Database.URL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, dbname)
	return nil
}

// Validate checks the configuration using struct validation tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("invalid value for %s (rule: %s)", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}
