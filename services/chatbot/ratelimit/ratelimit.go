// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements per-client request rate limiting using the
// token bucket algorithm.
//
// Each client (API key or IP address) gets its own bucket. Buckets refill
// lazily: tokens are recomputed from elapsed wall time at the moment of
// each consume or inspection, so no background goroutine is needed. The
// limiter also supports explicit temporary blocks that override the bucket
// state entirely.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Token bucket
// =============================================================================

// tokenBucket holds the refill state for one client.
//
// Tokens are stored as a float so fractional refill accumulates correctly
// at sub-second granularity. Access is serialized by the owning Limiter's
// mutex; the bucket itself is not safe for concurrent use.
type tokenBucket struct {
	capacity   int
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

// refill advances the bucket to now, crediting elapsed*rate tokens up to
// capacity. Refill and consumption must happen under the same lock hold so
// the read-modify-write is atomic per client.
func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(float64(b.capacity), b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// consume refills and then takes n tokens if available.
func (b *tokenBucket) consume(n int, now time.Time) bool {
	b.refill(now)
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// available refills and returns the whole-token count.
func (b *tokenBucket) available(now time.Time) int {
	b.refill(now)
	return int(b.tokens)
}

// =============================================================================
// Limiter
// =============================================================================

// Config holds rate limiter settings.
//
// # Fields
//
//   - RequestsPerMinute: Sustained admission rate. Default: 60.
//   - BurstSize: Bucket capacity. Defaults to RequestsPerMinute.
//   - Enabled: When false, every request is admitted and Remaining always
//     reports full capacity.
type Config struct {
	RequestsPerMinute int
	BurstSize         int
	Enabled           bool
}

// Limiter is a per-client token bucket rate limiter.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex guards both the
// bucket map and every bucket's refill-then-consume sequence, which keeps
// the per-client decision atomic.
type Limiter struct {
	requestsPerMinute int
	burstSize         int
	enabled           bool
	refillRate        float64

	mu           sync.Mutex
	buckets      map[string]*tokenBucket
	blockedUntil map[string]time.Time

	// now is swappable for tests that need deterministic time.
	now func() time.Time
}

// Stats is a point-in-time snapshot of limiter state.
type Stats struct {
	Enabled           bool `json:"enabled"`
	RequestsPerMinute int  `json:"requests_per_minute"`
	BurstSize         int  `json:"burst_size"`
	ActiveClients     int  `json:"active_clients"`
	BlockedClients    int  `json:"blocked_clients"`
}

// New creates a Limiter from cfg, applying defaults for zero fields.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerMinute
	}
	slog.Info("Rate limiter initialized",
		"requests_per_minute", cfg.RequestsPerMinute,
		"burst_size", cfg.BurstSize,
		"enabled", cfg.Enabled)
	return &Limiter{
		requestsPerMinute: cfg.RequestsPerMinute,
		burstSize:         cfg.BurstSize,
		enabled:           cfg.Enabled,
		refillRate:        float64(cfg.RequestsPerMinute) / 60.0,
		buckets:           make(map[string]*tokenBucket),
		blockedUntil:      make(map[string]time.Time),
		now:               time.Now,
	}
}

// IsAllowed decides whether one request from clientID may proceed,
// consuming a token when it does.
//
// # Description
//
// Order of checks: disabled limiter admits unconditionally; an unexpired
// explicit block denies without touching the bucket (an expired block is
// removed and evaluation continues); otherwise the client's bucket is
// refilled and one token consumed if available. Unknown clients get a
// fresh full bucket on first sight.
func (l *Limiter) IsAllowed(clientID string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.blockedUntil[clientID]; ok {
		if now.Before(until) {
			return false
		}
		delete(l.blockedUntil, clientID)
	}

	allowed := l.bucketLocked(clientID, now).consume(1, now)
	if !allowed {
		slog.Warn("Rate limit exceeded", "client_id", clientID)
	}
	return allowed
}

// Remaining returns the number of requests clientID could make right now.
// A disabled limiter reports full burst capacity.
func (l *Limiter) Remaining(clientID string) int {
	if !l.enabled {
		return l.burstSize
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return l.bucketLocked(clientID, now).available(now)
}

// ResetAfter returns how long until clientID's bucket is back at full
// capacity, zero when it already is.
func (l *Limiter) ResetAfter(clientID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	needed := l.burstSize - l.bucketLocked(clientID, now).available(now)
	if needed <= 0 {
		return 0
	}
	return time.Duration(float64(needed) / l.refillRate * float64(time.Second))
}

// BlockClient denies clientID for the given duration regardless of bucket
// state.
func (l *Limiter) BlockClient(clientID string, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockedUntil[clientID] = l.now().Add(duration)
	slog.Warn("Client blocked", "client_id", clientID, "duration", duration)
}

// UnblockClient lifts an explicit block. Lifting the block does not refund
// tokens; the bucket keeps whatever state it had.
func (l *Limiter) UnblockClient(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.blockedUntil[clientID]; ok {
		delete(l.blockedUntil, clientID)
		slog.Info("Client unblocked", "client_id", clientID)
	}
}

// ResetClient discards clientID's bucket and any block, returning it to a
// first-seen state with full capacity.
func (l *Limiter) ResetClient(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, clientID)
	delete(l.blockedUntil, clientID)
}

// GetStats returns a snapshot of limiter state.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Enabled:           l.enabled,
		RequestsPerMinute: l.requestsPerMinute,
		BurstSize:         l.burstSize,
		ActiveClients:     len(l.buckets),
		BlockedClients:    len(l.blockedUntil),
	}
}

// bucketLocked returns the client's bucket, creating a full one on first
// sight. Caller must hold l.mu.
func (l *Limiter) bucketLocked(clientID string, now time.Time) *tokenBucket {
	b, ok := l.buckets[clientID]
	if !ok {
		b = newTokenBucket(l.burstSize, l.refillRate, now)
		l.buckets[clientID] = b
	}
	return b
}
