package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateInput(t *testing.T) {
	assert.NoError(t, ValidateInput("hello", 1, 100, false))
	assert.Error(t, ValidateInput("", 1, 100, false))
	assert.NoError(t, ValidateInput("", 1, 100, true))
	assert.Error(t, ValidateInput("   ", 1, 100, false), "whitespace-only is empty")
	assert.Error(t, ValidateInput(strings.Repeat("x", 101), 1, 100, false))
	assert.Error(t, ValidateInput("ab", 3, 100, false))
}

func TestValidateNResults(t *testing.T) {
	assert.NoError(t, ValidateNResults(5, 20))
	assert.Error(t, ValidateNResults(0, 20))
	assert.Error(t, ValidateNResults(21, 20))
}

func TestValidateTemperature(t *testing.T) {
	assert.NoError(t, ValidateTemperature(0))
	assert.NoError(t, ValidateTemperature(2))
	assert.Error(t, ValidateTemperature(-0.1))
	assert.Error(t, ValidateTemperature(2.1))
}

func TestValidateMaxTokens(t *testing.T) {
	assert.NoError(t, ValidateMaxTokens(500))
	assert.Error(t, ValidateMaxTokens(0))
	assert.Error(t, ValidateMaxTokens(4001))
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeInput("hello\x00 world\x1f"))
	assert.Equal(t, "spaced", SanitizeInput("  spaced  "))
}

func TestIsPotentiallyHarmful(t *testing.T) {
	assert.True(t, IsPotentiallyHarmful("please DROP TABLE users"))
	assert.True(t, IsPotentiallyHarmful("<script>alert(1)</script>"))
	assert.True(t, IsPotentiallyHarmful("x'; -- comment"))
	assert.False(t, IsPotentiallyHarmful("how do tables work in sql"))
	assert.False(t, IsPotentiallyHarmful("a normal question"))
}

func TestValidateHistoryLength(t *testing.T) {
	assert.NoError(t, ValidateHistoryLength(50, 50))
	assert.Error(t, ValidateHistoryLength(51, 50))
}
