// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for user-provided
// text before it reaches embedding, search, or prompt construction.
package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// controlCharPattern matches ASCII control characters including DEL.
var controlCharPattern = regexp.MustCompile(`[\x00-\x1F\x7F]`)

// ValidateInput validates a free-text user input.
//
// # Description
//
// Checks the trimmed length of text against the given bounds. Empty input
// is rejected unless allowEmpty is set.
//
// # Inputs
//
//   - text: Text to validate.
//   - minLength: Minimum trimmed length in bytes.
//   - maxLength: Maximum trimmed length in bytes.
//   - allowEmpty: Accept an empty string without further checks.
//
// # Outputs
//
//   - error: Non-nil with a human-readable reason when validation fails.
func ValidateInput(text string, minLength, maxLength int, allowEmpty bool) error {
	if text == "" {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("input cannot be empty")
	}

	length := len(strings.TrimSpace(text))
	if length < minLength {
		return fmt.Errorf("input too short (minimum %d characters)", minLength)
	}
	if length > maxLength {
		return fmt.Errorf("input too long (maximum %d characters)", maxLength)
	}
	return nil
}

// ValidateNResults validates a result-count parameter against maxResults.
func ValidateNResults(n, maxResults int) error {
	if n < 1 {
		return fmt.Errorf("n_results must be at least 1")
	}
	if n > maxResults {
		return fmt.Errorf("n_results cannot exceed %d", maxResults)
	}
	return nil
}

// ValidateTemperature validates an LLM sampling temperature.
func ValidateTemperature(temp float32) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// ValidateMaxTokens validates a generation token budget.
func ValidateMaxTokens(tokens int) error {
	if tokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1")
	}
	if tokens > 4000 {
		return fmt.Errorf("max_tokens cannot exceed 4000")
	}
	return nil
}

// SanitizeInput strips control characters and trims whitespace.
func SanitizeInput(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(controlCharPattern.ReplaceAllString(text, ""))
}

// IsPotentiallyHarmful reports whether text contains injection-looking
// patterns. Callers decide what to do with a positive; this only flags.
func IsPotentiallyHarmful(text string) bool {
	lower := strings.ToLower(text)

	sqlPatterns := []string{"drop table", "delete from", "insert into", "update set", "--", ";--"}
	for _, p := range sqlPatterns {
		if strings.Contains(lower, p) {
			slog.Warn("Potentially harmful SQL pattern detected in input")
			return true
		}
	}

	scriptPatterns := []string{"<script", "javascript:", "onerror=", "onclick="}
	for _, p := range scriptPatterns {
		if strings.Contains(lower, p) {
			slog.Warn("Potentially harmful script pattern detected in input")
			return true
		}
	}
	return false
}

// ValidateHistoryLength bounds the number of prior messages a request may
// carry.
func ValidateHistoryLength(count, maxMessages int) error {
	if count > maxMessages {
		return fmt.Errorf("history too long (maximum %d messages)", maxMessages)
	}
	return nil
}
