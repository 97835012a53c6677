// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Cache service
// =============================================================================

// Config holds cache service settings.
//
// # Fields
//
//   - BackendType: "memory" or "redis". Default: "memory".
//   - RedisURL: Connection URL used when BackendType is "redis".
//   - KeyPrefix: Redis key namespace. Default: "ragchat:".
//   - MaxSize: In-memory entry cap. Default: 10000.
//   - DefaultTTL: TTL applied when callers pass zero. Default: 1 hour.
//   - Enabled: When false, Get always misses and Set is a no-op.
type Config struct {
	BackendType string
	RedisURL    string
	KeyPrefix   string
	MaxSize     int
	DefaultTTL  time.Duration
	Enabled     bool
}

func applyConfigDefaults(cfg *Config) {
	if cfg.BackendType == "" {
		cfg.BackendType = "memory"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ragchat:"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
}

// Service wraps a Backend with hit/miss accounting and an enabled switch.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Service struct {
	enabled bool
	backend Backend

	mu     sync.Mutex
	hits   int64
	misses int64
}

// Stats is a snapshot of cache service counters.
type Stats struct {
	Enabled bool    `json:"enabled"`
	Backend string  `json:"backend"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// New builds a cache service from cfg.
//
// # Description
//
// When cfg requests the Redis backend and the connection cannot be
// established, construction falls back to the in-memory backend with a
// warning rather than failing. The fallback decision is made once, here;
// it is not re-evaluated at request time.
func New(ctx context.Context, cfg Config) *Service {
	applyConfigDefaults(&cfg)

	var backend Backend
	switch cfg.BackendType {
	case "redis":
		rb, err := NewRedisBackend(ctx, cfg.RedisURL, cfg.KeyPrefix, cfg.DefaultTTL)
		if err != nil {
			slog.Warn("Redis not available, falling back to in-memory cache", "error", err)
			backend = NewInMemoryBackend(cfg.MaxSize, cfg.DefaultTTL)
		} else {
			backend = rb
		}
	default:
		backend = NewInMemoryBackend(cfg.MaxSize, cfg.DefaultTTL)
	}

	slog.Info("Cache service initialized", "backend", backend.Name(), "enabled", cfg.Enabled)
	return &Service{enabled: cfg.Enabled, backend: backend}
}

// NewWithBackend builds a service around an explicit backend. Used by the
// composition root when the backend is constructed separately and by
// tests.
func NewWithBackend(backend Backend, enabled bool) *Service {
	return &Service{enabled: enabled, backend: backend}
}

// Enabled reports whether the service performs any caching.
func (s *Service) Enabled() bool { return s.enabled }

// Backend exposes the underlying backend, mainly for health checks.
func (s *Service) Backend() Backend { return s.backend }

// Get returns the cached value for key. A disabled service always misses
// without touching the counters.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.enabled {
		return nil, false
	}
	value, ok := s.backend.Get(ctx, key)

	s.mu.Lock()
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()

	return value, ok
}

// Set stores value under key. Returns false when caching is disabled or
// the backend write failed.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !s.enabled {
		return false
	}
	return s.backend.Set(ctx, key, value, ttl)
}

// Delete removes key regardless of the enabled switch, so corrupt entries
// can always be purged.
func (s *Service) Delete(ctx context.Context, key string) bool {
	return s.backend.Delete(ctx, key)
}

// Clear empties the backend and resets the hit/miss counters.
func (s *Service) Clear(ctx context.Context) {
	s.backend.Clear(ctx)
	s.mu.Lock()
	s.hits = 0
	s.misses = 0
	s.mu.Unlock()
}

// GetOrSet returns the cached value for key, or invokes factory and caches
// its result on a miss. A factory error is returned as-is and nothing is
// cached.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration,
	factory func(ctx context.Context) ([]byte, error)) ([]byte, error) {

	if value, ok := s.Get(ctx, key); ok {
		return value, nil
	}
	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	s.Set(ctx, key, value, ttl)
	return value, nil
}

// HitRate returns hits/(hits+misses), zero when nothing was looked up yet.
func (s *Service) HitRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.hits + s.misses
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total)
}

// GetStats returns a counter snapshot.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	hits, misses := s.hits, s.misses
	s.mu.Unlock()

	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return Stats{
		Enabled: s.enabled,
		Backend: s.backend.Name(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}

// =============================================================================
// Key derivation
// =============================================================================

// cacheKeyParts is the canonical key material for a chat response. Session
// identity and timestamps are deliberately absent so identical questions
// share one entry across sessions.
type cacheKeyParts struct {
	Message  string `json:"message"`
	NResults int    `json:"n_results"`
	UseLLM   bool   `json:"use_llm"`
}

// MakeKey derives a deterministic cache key for a chat request.
//
// # Description
//
// Serializes the semantically relevant request fields to canonical JSON
// (fixed field order) and returns the hex SHA-256 of that payload. Equal
// inputs always produce equal keys across processes.
//
// # Examples
//
//	key := cache.MakeKey("what is go", true, 5)
//	// 64 hex characters, stable across restarts
func MakeKey(message string, useLLM bool, nResults int) string {
	payload, err := json.Marshal(cacheKeyParts{
		Message:  message,
		NResults: nResults,
		UseLLM:   useLLM,
	})
	if err != nil {
		// Marshal of a flat struct of scalars cannot fail; keep a
		// deterministic fallback anyway.
		payload = []byte(fmt.Sprintf("%s|%t|%d", message, useLLM, nResults))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
