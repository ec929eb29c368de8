// Package cache owns the Redis client handle.
//
// The client is a connection multiplexer: it is created once at startup,
// shared by every request, and closed exactly once at shutdown. No eviction
// policy lives here; expiry is delegated entirely to Redis via TTLs.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/metrics/prometheus"
)

// Config holds the configuration for the Redis cache client.
type Config struct {
	// URL is the Redis connection string (redis://...).
	URL string `mapstructure:"url" validate:"required" yaml:"url"`

	// Required controls whether a connect failure at startup is fatal.
	// Runtime operation failures always degrade gracefully regardless.
	// Default: true.
	Required *bool `mapstructure:"required" yaml:"required"`

	// ConnectTimeout bounds the initial connectivity probe. Default: 5s.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`

	// OpTimeout bounds individual cache round-trips. Default: 2s.
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// ApplyDefaults sets default values for unspecified configuration fields.
func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 2 * time.Second
	}
}

// IsRequired reports whether a startup connect failure should be fatal.
func (c *Config) IsRequired() bool {
	if c.Required == nil {
		return true
	}
	return *c.Required
}

// Client wraps the Redis connection multiplexer.
type Client struct {
	rdb       *redis.Client
	cfg       Config
	closeOnce sync.Once
}

// Connect opens the Redis client and verifies connectivity with a ping,
// bounded by the configured connect timeout.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if cfg.URL == "" {
		return nil, &ConnectError{Reason: "cache url is required"}
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, &ConnectError{Reason: "invalid connection string", Err: err}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &ConnectError{Reason: "connectivity probe failed", Err: err}
	}

	logger.Info("Cache client connected", "addr", opts.Addr)
	return &Client{rdb: rdb, cfg: cfg}, nil
}

// Get fetches the value stored under key.
//
// Returns ErrMiss when the key does not exist and *OpError on transport
// failure. Callers without strict consistency needs should prefer Lookup.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	val, err := c.rdb.Get(opCtx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			prometheus.CacheMisses.Inc()
			return nil, ErrMiss
		}
		prometheus.CacheErrors.Inc()
		return nil, &OpError{Op: "get", Key: key, Err: err}
	}

	prometheus.CacheHits.Inc()
	return val, nil
}

// Set stores value under key. A zero ttl stores without expiry; otherwise
// the ttl is advisory to Redis, which owns expiry entirely.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	if err := c.rdb.Set(opCtx, key, value, ttl).Err(); err != nil {
		prometheus.CacheErrors.Inc()
		return &OpError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Lookup is the degrade-to-miss read path: any failure, including a lost
// cache connection, is reported as a miss and never fails the surrounding
// request. Transport errors are logged at warn level.
func (c *Client) Lookup(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logger.Warn("Cache lookup degraded to miss", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

// Healthcheck verifies the client can reach Redis.
func (c *Client) Healthcheck(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	if err := c.rdb.Ping(opCtx).Err(); err != nil {
		return &OpError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the underlying connections. Safe to call multiple times;
// only the first call has effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		logger.Info("Closing cache client")
		if err := c.rdb.Close(); err != nil {
			logger.Warn("Cache client close error", "error", err)
		}
	})
}
