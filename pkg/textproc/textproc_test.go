package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "hello world", CleanText("  hello   world  ", false))
	assert.Equal(t, "a < b & c > d", CleanText("a &lt; b &amp; c &gt; d", false))
	assert.Equal(t, `say "hi"`, CleanText("say &quot;hi&quot;", false))
	assert.Equal(t, "", CleanText("   ", false))
}

func TestCleanText_Aggressive(t *testing.T) {
	assert.Equal(t, "check this out", CleanText("check this out https://example.com/page?q=1", true))
	assert.Equal(t, "hello world", CleanText("hello @#$% world", true))

	// Non-aggressive keeps URLs intact.
	assert.Contains(t, CleanText("see https://example.com", false), "https://example.com")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10, "..."))
	assert.Equal(t, "hell...", Truncate("hello world", 7, "..."))
	assert.Equal(t, "", Truncate("", 5, "..."))
}

func TestIsValidText(t *testing.T) {
	assert.True(t, IsValidText("hello", 1, 10))
	assert.False(t, IsValidText("", 1, 10))
	assert.False(t, IsValidText("   ", 1, 10))
	assert.False(t, IsValidText("too long for the limit", 1, 10))
}
