package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// registerDefaults registers every known key with viper.
//
// Viper only honors environment overrides for keys it knows about, so each
// key gets its default registered here even when the zero value would do.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.health_check_period", time.Minute)
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.acquire_timeout", 5*time.Second)
	v.SetDefault("database.migrate_timeout", 60*time.Second)

	v.SetDefault("cache.url", "")
	v.SetDefault("cache.required", true)
	v.SetDefault("cache.connect_timeout", 5*time.Second)
	v.SetDefault("cache.op_timeout", 2*time.Second)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("shutdown_timeout", 30*time.Second)
}

// ApplyDefaults fills zero values with the same defaults registered with
// viper. It keeps configurations built directly in code (e.g. in tests)
// consistent with loaded ones.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	cfg.Database.ApplyDefaults()
	cfg.Cache.ApplyDefaults()

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}
