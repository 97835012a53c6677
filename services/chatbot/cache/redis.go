// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores cache entries in Redis under a key prefix.
//
// # Description
//
// Entries are plain string values with server-side TTL (SETEX semantics),
// so expiry needs no client cooperation. All errors are logged and
// reported as misses or failed writes; the cache contract never surfaces
// Redis errors to callers.
type RedisBackend struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend connects to Redis at url and verifies the connection
// with a ping.
//
// # Inputs
//
//   - ctx: Context bounding the connection probe.
//   - url: Redis URL, e.g. "redis://localhost:6379/0".
//   - prefix: Key namespace prefix, e.g. "ragchat:".
//   - defaultTTL: TTL applied when Set receives a zero ttl.
//
// # Outputs
//
//   - *RedisBackend: Connected backend.
//   - error: Non-nil when the URL is invalid or the ping fails. Callers
//     use this to fall back to the in-memory backend at construction time.
func NewRedisBackend(ctx context.Context, url, prefix string, defaultTTL time.Duration) (*RedisBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	slog.Info("Connected to Redis cache", "addr", opt.Addr, "prefix", prefix)
	return &RedisBackend{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}, nil
}

func (c *RedisBackend) Name() string { return "redis" }

func (c *RedisBackend) key(key string) string { return c.prefix + key }

func (c *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Error("Redis get failed", "error", err)
		return nil, false
	}
	return value, true
}

func (c *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		slog.Error("Redis set failed", "error", err)
		return false
	}
	return true
}

func (c *RedisBackend) Delete(ctx context.Context, key string) bool {
	deleted, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		slog.Error("Redis delete failed", "error", err)
		return false
	}
	return deleted > 0
}

func (c *RedisBackend) Exists(ctx context.Context, key string) bool {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		slog.Error("Redis exists failed", "error", err)
		return false
	}
	return n > 0
}

// Clear removes every key under the backend's prefix. SCAN is used instead
// of KEYS so a large namespace does not stall the server.
func (c *RedisBackend) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Error("Redis clear failed", "error", err)
				return
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		slog.Error("Redis scan failed", "error", err)
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			slog.Error("Redis clear failed", "error", err)
		}
	}
}

// Ping reports whether the Redis connection is currently healthy.
func (c *RedisBackend) Ping(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

// Close releases the underlying connection pool.
func (c *RedisBackend) Close() error {
	return c.client.Close()
}
