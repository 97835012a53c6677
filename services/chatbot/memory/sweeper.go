// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically removes expired sessions from a Memory.
//
// # Description
//
// Lazy expiry only removes sessions that are read again; abandoned
// sessions would otherwise sit in the registry until evicted by capacity
// pressure. The sweeper closes that gap with a ticker + done channel
// background loop.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use and idempotent in the sense
// that a second Start while running is an error and Stop on a stopped
// sweeper is a no-op.
type Sweeper struct {
	memory   *Memory
	interval time.Duration

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewSweeper creates a sweeper over memory. Non-positive interval defaults
// to 5 minutes.
func NewSweeper(memory *Memory, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{memory: memory, interval: interval}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sweeper already running")
	}
	s.done = make(chan struct{})
	s.running = true

	go s.run(s.done)
	slog.Info("Session sweeper started", "interval", s.interval)
	return nil
}

// Stop signals the loop to exit. Safe to call when not running.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
	slog.Info("Session sweeper stopped")
}

func (s *Sweeper) run(done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			removed := s.memory.CleanupExpired()
			if removed > 0 {
				slog.Debug("Sweep removed expired sessions", "count", removed)
			}
		}
	}
}
