package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillSession(m *Memory, id string, n int) {
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		m.AddMessage(id, role, fmt.Sprintf("msg-%d", i), nil)
	}
}

func TestSummarizing_BelowThresholdNoSummary(t *testing.T) {
	m, _ := newTestMemory(Config{})
	called := false
	sm := NewSummarizing(m, func(context.Context, string) (string, error) {
		called = true
		return "summary", nil
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 10) // threshold is strict: 10 is not > 10

	ctx := sm.GetContext(context.Background(), id, true)
	assert.False(t, called, "summarizer not invoked at or below threshold")
	assert.NotContains(t, ctx, "Previous conversation summary")
	assert.Equal(t, 10, m.GetSession(id).MessageCount())
}

func TestSummarizing_TruncatesAndPrefixesSummary(t *testing.T) {
	m, _ := newTestMemory(Config{})
	var transcript string
	sm := NewSummarizing(m, func(_ context.Context, text string) (string, error) {
		transcript = text
		return "they discussed early messages", nil
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)

	ctx := sm.GetContext(context.Background(), id, true)

	assert.Equal(t, 5, m.GetSession(id).MessageCount(), "history truncated to keepRecent")
	assert.True(t, strings.HasPrefix(ctx, "[Previous conversation summary: they discussed early messages]"))
	assert.Contains(t, ctx, "User: msg-8")
	assert.Contains(t, ctx, "Assistant: msg-11")
	assert.NotContains(t, ctx, "msg-6", "summarized messages are gone from context")

	// The transcript covered exactly the pre-truncation prefix.
	assert.Contains(t, transcript, "user: msg-0")
	assert.Contains(t, transcript, "user: msg-6")
	assert.NotContains(t, transcript, "msg-7")
}

func TestSummarizing_FailureLeavesHistoryIntact(t *testing.T) {
	m, _ := newTestMemory(Config{})
	sm := NewSummarizing(m, func(context.Context, string) (string, error) {
		return "", errors.New("llm unavailable")
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)

	ctx := sm.GetContext(context.Background(), id, true)
	assert.Equal(t, 12, m.GetSession(id).MessageCount(), "failed summarization keeps history")
	assert.NotContains(t, ctx, "Previous conversation summary")
}

func TestSummarizing_EmptySummaryLeavesHistoryIntact(t *testing.T) {
	m, _ := newTestMemory(Config{})
	sm := NewSummarizing(m, func(context.Context, string) (string, error) {
		return "   ", nil
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)

	sm.GetContext(context.Background(), id, true)
	assert.Equal(t, 12, m.GetSession(id).MessageCount())
}

func TestSummarizing_FailureKeepsPreviousSummary(t *testing.T) {
	m, _ := newTestMemory(Config{})
	fail := false
	sm := NewSummarizing(m, func(context.Context, string) (string, error) {
		if fail {
			return "", errors.New("down")
		}
		return "first summary", nil
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)
	sm.GetContext(context.Background(), id, true)

	fail = true
	fillSession(m, id, 8) // back over the threshold
	ctx := sm.GetContext(context.Background(), id, true)

	assert.Contains(t, ctx, "[Previous conversation summary: first summary]",
		"prior summary survives a failed refresh")
	assert.Equal(t, 13, m.GetSession(id).MessageCount())
}

func TestSummarizing_ExcludeSummary(t *testing.T) {
	m, _ := newTestMemory(Config{})
	sm := NewSummarizing(m, func(context.Context, string) (string, error) {
		return "summary", nil
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)
	sm.GetContext(context.Background(), id, true)

	ctx := sm.GetContext(context.Background(), id, false)
	assert.NotContains(t, ctx, "Previous conversation summary")
	assert.Contains(t, ctx, "msg-11")
}

func TestSummarizing_UnknownSessionEmptyContext(t *testing.T) {
	m, _ := newTestMemory(Config{})
	sm := NewSummarizing(m, nil, 10, 5)
	assert.Equal(t, "", sm.GetContext(context.Background(), "nope", true))
}

func TestSummarizing_NilSummarizerRendersPlainHistory(t *testing.T) {
	m, _ := newTestMemory(Config{})
	sm := NewSummarizing(m, nil, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)

	ctx := sm.GetContext(context.Background(), id, true)
	require.NotEmpty(t, ctx)
	assert.Equal(t, 12, m.GetSession(id).MessageCount())
	assert.Contains(t, ctx, "msg-11")
}

func TestSummarizing_DeleteSessionDropsSummary(t *testing.T) {
	m, _ := newTestMemory(Config{})
	sm := NewSummarizing(m, func(context.Context, string) (string, error) {
		return "summary", nil
	}, 10, 5)

	id := m.CreateSession("s1")
	fillSession(m, id, 12)
	sm.GetContext(context.Background(), id, true)

	assert.True(t, sm.DeleteSession(id))
	assert.Empty(t, sm.summaries)
}
