// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory maintains multi-turn conversation state across sessions.
//
// The registry is bounded two ways: a cap on concurrent sessions enforced
// by FIFO eviction in creation order, and a per-session message cap
// enforced by dropping the oldest messages. Sessions expire after a
// period of inactivity; expiry is checked lazily on access and swept
// periodically by the Sweeper.
package memory

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Messages and sessions
// =============================================================================

// Message is a single turn in a conversation.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session holds the message history for one conversation.
//
// # Thread Safety
//
// A per-session mutex serializes message appends, trims, and reads, so
// concurrent requests against the same session cannot interleave a trim
// with an append. Registry-level state (which sessions exist) is guarded
// separately by the Memory mutex.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	messages     []Message
	lastActivity time.Time
	maxMessages  int

	now func() time.Time
}

// AddMessage appends a message, trimming the oldest entries first when the
// session is at its message cap.
func (s *Session) AddMessage(role, content string, metadata map[string]any) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.messages) >= s.maxMessages {
		s.messages = s.messages[1:]
	}
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
		Metadata:  metadata,
	}
	s.messages = append(s.messages, msg)
	s.lastActivity = s.now()
	return msg
}

// History returns a copy of the most recent maxMessages messages, or all
// of them when maxMessages is non-positive.
func (s *Session) History(maxMessages int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// ContextString renders recent history as "Role: content" lines, newest
// last, dropping older lines once maxChars would be exceeded.
func (s *Session) ContextString(maxMessages, maxChars int) string {
	history := s.History(maxMessages)

	var lines []string
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		line := capitalize(msg.Role) + ": " + msg.Content
		if total+len(line) > maxChars {
			break
		}
		lines = append([]string{line}, lines...)
		total += len(line) + 1
	}
	return strings.Join(lines, "\n")
}

// MessageCount returns the number of stored messages.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear removes all messages but keeps the session alive.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.lastActivity = s.now()
}

// LastActivity returns the time of the most recent append or clear.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// snapshotOld returns a copy of every message except the last keepRecent,
// for summarization. The second return is the count that must later be
// dropped so messages appended in between survive.
func (s *Session) snapshotOld(keepRecent int) ([]Message, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) <= keepRecent {
		return nil, 0
	}
	old := s.messages[:len(s.messages)-keepRecent]
	out := make([]Message, len(old))
	copy(out, old)
	return out, len(old)
}

// dropFirst removes the first n messages.
func (s *Session) dropFirst(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.messages) {
		n = len(s.messages)
	}
	s.messages = s.messages[n:]
}

func capitalize(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// =============================================================================
// Session registry
// =============================================================================

// Config holds conversation memory settings.
//
// # Fields
//
//   - MaxSessions: Concurrent session cap. Default: 1000.
//   - SessionTimeout: Inactivity window before expiry. Default: 1 hour.
//   - MaxMessagesPerSession: Per-session message cap. Default: 100.
type Config struct {
	MaxSessions           int
	SessionTimeout        time.Duration
	MaxMessagesPerSession int
}

func applyConfigDefaults(cfg *Config) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = time.Hour
	}
	if cfg.MaxMessagesPerSession <= 0 {
		cfg.MaxMessagesPerSession = 100
	}
}

// Memory is a bounded registry of conversation sessions.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The registry mutex guards the
// session map and the creation-order queue; individual message lists are
// guarded by each Session's own mutex.
type Memory struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // session ids in creation order

	now func() time.Time
}

// Stats is a snapshot of registry state.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	MaxSessions    int `json:"max_sessions"`
	TotalMessages  int `json:"total_messages"`
	SessionTimeout int `json:"session_timeout_seconds"`
}

// New creates a conversation memory with cfg, applying defaults for zero
// fields.
func New(cfg Config) *Memory {
	applyConfigDefaults(&cfg)
	return &Memory{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		order:    make([]string, 0, cfg.MaxSessions),
		now:      time.Now,
	}
}

// CreateSession registers a new session and returns its id, generating a
// UUID when sessionID is empty.
//
// # Description
//
// At capacity the oldest session by creation order is evicted first,
// regardless of how recently it was used. Creating a session under an id
// that already exists replaces the prior session so the creation-order
// queue keeps unique keys.
func (m *Memory) CreateSession(sessionID string) string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		m.deleteLocked(sessionID)
	}
	for len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}

	now := m.now()
	m.sessions[sessionID] = &Session{
		ID:           sessionID,
		CreatedAt:    now,
		lastActivity: now,
		maxMessages:  m.cfg.MaxMessagesPerSession,
		now:          m.now,
	}
	m.order = append(m.order, sessionID)

	slog.Debug("Created conversation session", "session_id", sessionID)
	return sessionID
}

// GetSession returns the session for sessionID, or nil when it does not
// exist or has sat inactive past the timeout. An expired session is
// deleted on the spot.
func (m *Memory) GetSession(sessionID string) *Session {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if m.now().Sub(sess.LastActivity()) > m.cfg.SessionTimeout {
		m.DeleteSession(sessionID)
		return nil
	}
	return sess
}

// GetOrCreateSession returns the live session for sessionID, creating a
// fresh one when the id is empty, unknown, or expired.
func (m *Memory) GetOrCreateSession(sessionID string) *Session {
	if sessionID != "" {
		if sess := m.GetSession(sessionID); sess != nil {
			return sess
		}
	}
	id := m.CreateSession(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// AddMessage appends a message to sessionID. Returns false when the
// session does not exist or has expired.
func (m *Memory) AddMessage(sessionID, role, content string, metadata map[string]any) bool {
	sess := m.GetSession(sessionID)
	if sess == nil {
		return false
	}
	sess.AddMessage(role, content, metadata)
	return true
}

// DeleteSession removes sessionID from the registry. Returns false when
// it was not present.
func (m *Memory) DeleteSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	m.deleteLocked(sessionID)
	slog.Debug("Deleted conversation session", "session_id", sessionID)
	return true
}

// CleanupExpired removes every session whose inactivity exceeds the
// timeout and returns how many were removed.
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	now := m.now()
	var expired []string
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity()) > m.cfg.SessionTimeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.deleteLocked(id)
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		slog.Info("Cleaned up expired sessions", "count", len(expired))
	}
	return len(expired)
}

// GetStats returns a registry snapshot.
func (m *Memory) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, sess := range m.sessions {
		total += sess.MessageCount()
	}
	return Stats{
		ActiveSessions: len(m.sessions),
		MaxSessions:    m.cfg.MaxSessions,
		TotalMessages:  total,
		SessionTimeout: int(m.cfg.SessionTimeout.Seconds()),
	}
}

func (m *Memory) deleteLocked(sessionID string) {
	delete(m.sessions, sessionID)
	for i, id := range m.order {
		if id == sessionID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Memory) evictOldestLocked() {
	if len(m.order) == 0 {
		return
	}
	oldest := m.order[0]
	m.order = m.order[1:]
	delete(m.sessions, oldest)
	slog.Debug("Evicted oldest session", "session_id", oldest)
}
