// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a RecordCache shared between hosts; expiry is native to Redis
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures the Redis cache
type RedisOptions struct {
	Addr        string
	DB          int
	Prefix      string        // Key prefix (default "owmgraph:")
	DialTimeout time.Duration // Connect timeout (default 2s)
}

// NewRedis creates a Redis-backed cache. No connection is made until first use.
func NewRedis(opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "owmgraph:"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			DB:           opts.DB,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.DialTimeout,
			WriteTimeout: opts.DialTimeout,
			MaxRetries:   -1, // errors degrade to cache misses
		}),
		prefix: opts.Prefix,
	}
}

// Get returns the cached bytes if present
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores value with a native TTL
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the client connection pool
func (r *Redis) Close() error {
	return r.client.Close()
}
