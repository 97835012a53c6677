// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Summarizer condenses a conversation transcript into a short summary.
// Implementations typically call an LLM.
type Summarizer func(ctx context.Context, transcript string) (string, error)

// SummarizingMemory overlays summarization on a conversation Memory.
//
// # Description
//
// Keeps at most one summary per session. When a session's message count
// exceeds the threshold, all messages except the most recent keepRecent
// are rendered into a transcript, summarized, and replaced by the new
// summary. A failed or empty summarization leaves both the history and
// any previous summary untouched, so context is never lost to a flaky
// summarizer.
//
// # Thread Safety
//
// Safe for concurrent use; the summaries map has its own mutex and the
// underlying Memory provides its own synchronization.
type SummarizingMemory struct {
	base       *Memory
	summarizer Summarizer
	threshold  int
	keepRecent int

	mu        sync.Mutex
	summaries map[string]string
}

// NewSummarizing wraps base with a summarization overlay. A nil summarizer
// disables summarization; GetContext then renders plain recent history.
// Non-positive threshold defaults to 10, non-positive keepRecent to 5.
func NewSummarizing(base *Memory, summarizer Summarizer, threshold, keepRecent int) *SummarizingMemory {
	if threshold <= 0 {
		threshold = 10
	}
	if keepRecent <= 0 {
		keepRecent = 5
	}
	return &SummarizingMemory{
		base:       base,
		summarizer: summarizer,
		threshold:  threshold,
		keepRecent: keepRecent,
		summaries:  make(map[string]string),
	}
}

// Base exposes the underlying registry.
func (m *SummarizingMemory) Base() *Memory { return m.base }

// GetContext renders the session's context: the stored summary (when one
// exists and includeSummary is set) followed by the recent messages as
// "Role: content" lines. Summarization is triggered here when the session
// has grown past the threshold. An unknown or expired session yields "".
func (m *SummarizingMemory) GetContext(ctx context.Context, sessionID string, includeSummary bool) string {
	sess := m.base.GetSession(sessionID)
	if sess == nil {
		return ""
	}

	if m.summarizer != nil && sess.MessageCount() > m.threshold {
		m.maybeSummarize(ctx, sessionID, sess)
	}

	var parts []string
	if includeSummary {
		m.mu.Lock()
		summary, ok := m.summaries[sessionID]
		m.mu.Unlock()
		if ok {
			parts = append(parts, "[Previous conversation summary: "+summary+"]")
		}
	}

	for _, msg := range sess.History(m.keepRecent) {
		parts = append(parts, capitalize(msg.Role)+": "+msg.Content)
	}
	return strings.Join(parts, "\n")
}

// DeleteSession drops the session and its summary.
func (m *SummarizingMemory) DeleteSession(sessionID string) bool {
	m.mu.Lock()
	delete(m.summaries, sessionID)
	m.mu.Unlock()
	return m.base.DeleteSession(sessionID)
}

func (m *SummarizingMemory) maybeSummarize(ctx context.Context, sessionID string, sess *Session) {
	old, count := sess.snapshotOld(m.keepRecent)
	if count == 0 {
		return
	}

	lines := make([]string, len(old))
	for i, msg := range old {
		lines[i] = msg.Role + ": " + msg.Content
	}

	summary, err := m.summarizer(ctx, strings.Join(lines, "\n"))
	if err != nil {
		slog.Error("Failed to summarize messages", "session_id", sessionID, "error", err)
		return
	}
	if strings.TrimSpace(summary) == "" {
		slog.Warn("Summarizer returned empty summary, keeping history", "session_id", sessionID)
		return
	}

	m.mu.Lock()
	m.summaries[sessionID] = summary
	m.mu.Unlock()

	// Drop exactly the snapshotted prefix so messages appended while the
	// summarizer ran survive.
	sess.dropFirst(count)

	slog.Debug("Summarized conversation prefix",
		"session_id", sessionID, "messages", count)
}
