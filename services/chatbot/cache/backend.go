// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides response caching for the chat pipeline.
//
// The cache stores serialized JSON values behind a small backend interface
// with two implementations: a bounded in-memory store with LRU eviction
// and lazy TTL expiry, and a Redis store for multi-instance deployments.
// Backend failures never propagate as request failures; a broken cache is
// a cache miss.
package cache

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Backend interface
// =============================================================================

// Backend is the storage contract for cache implementations.
//
// # Description
//
// Values are opaque JSON blobs. Get reports a miss for absent, expired, or
// unreadable entries; it never returns an error. Set with a zero ttl uses
// the backend's default TTL.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	Exists(ctx context.Context, key string) bool
	Clear(ctx context.Context)

	// Name identifies the backend in stats and health output.
	Name() string
}

// =============================================================================
// In-memory backend
// =============================================================================

type memoryEntry struct {
	value  []byte
	expiry time.Time
}

// InMemoryBackend is a bounded in-process cache.
//
// # Description
//
// Holds at most maxSize entries. Inserting a new key at capacity evicts
// the least recently accessed entry first. Expiry is lazy: expired entries
// are detected and removed on read, not by a background sweeper.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type InMemoryBackend struct {
	maxSize    int
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry
	access  map[string]time.Time

	now func() time.Time
}

var _ Backend = (*InMemoryBackend)(nil)

// NewInMemoryBackend creates an in-memory backend. Non-positive maxSize
// defaults to 10000 entries; non-positive defaultTTL defaults to one hour.
func NewInMemoryBackend(maxSize int, defaultTTL time.Duration) *InMemoryBackend {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &InMemoryBackend{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		entries:    make(map[string]memoryEntry),
		access:     make(map[string]time.Time),
		now:        time.Now,
	}
}

func (c *InMemoryBackend) Name() string { return "memory" }

// Get returns the value for key, treating an expired entry as a miss and
// removing it. A hit refreshes the key's access time for LRU ordering.
func (c *InMemoryBackend) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiry.IsZero() && c.now().After(entry.expiry) {
		c.deleteLocked(key)
		return nil, false
	}
	c.access[key] = c.now()
	return entry.value, true
}

// Set stores value under key. Inserting a new key at capacity evicts the
// least recently accessed entry first; overwriting an existing key never
// evicts.
func (c *InMemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRULocked()
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries[key] = memoryEntry{value: value, expiry: c.now().Add(ttl)}
	c.access[key] = c.now()
	return true
}

func (c *InMemoryBackend) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.deleteLocked(key)
	return true
}

func (c *InMemoryBackend) Exists(ctx context.Context, key string) bool {
	_, ok := c.Get(ctx, key)
	return ok
}

func (c *InMemoryBackend) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	c.access = make(map[string]time.Time)
}

// Size returns the current entry count, including entries that have
// expired but not yet been read.
func (c *InMemoryBackend) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *InMemoryBackend) deleteLocked(key string) {
	delete(c.entries, key)
	delete(c.access, key)
}

func (c *InMemoryBackend) evictLRULocked() {
	var lruKey string
	var lruTime time.Time
	first := true
	for key, at := range c.access {
		if first || at.Before(lruTime) {
			lruKey = key
			lruTime = at
			first = false
		}
	}
	if !first {
		c.deleteLocked(lruKey)
	}
}
