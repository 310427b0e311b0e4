// Package redis builds the go-redis client backing the distributed
// credential store.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"authority/internal/platform/config"
	"authority/pkg/platform/sentinel"
)

// Client is the shared go-redis handle. Credential stores take the embedded
// *redis.Client; main uses Health for the readiness probe.
type Client struct {
	*redis.Client
}

// New dials Redis and verifies the connection. An empty URL means the
// deployment runs single-node with the in-process store, so New returns
// (nil, nil).
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPool(opts, cfg)

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

// applyPool overrides URL defaults with explicit settings; zero leaves the
// go-redis default in place.
func applyPool(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for _, d := range []struct {
		dst *time.Duration
		src time.Duration
	}{
		{&opts.DialTimeout, cfg.DialTimeout},
		{&opts.ReadTimeout, cfg.ReadTimeout},
		{&opts.WriteTimeout, cfg.WriteTimeout},
	} {
		if d.src > 0 {
			*d.dst = d.src
		}
	}
}

// Health reports sentinel.ErrUnavailable when Redis does not answer a ping.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return nil
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health: %v: %w", err, sentinel.ErrUnavailable)
	}
	return nil
}
