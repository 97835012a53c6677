// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package textproc provides text cleaning and normalization utilities.
//
// Queries and retrieved conversation text may contain HTML entities and
// irregular whitespace from upstream scraping. Cleaning happens once at the
// pipeline boundary so everything downstream (embedding, search, prompts)
// sees normalized text.
package textproc

import (
	"regexp"
	"strings"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	httpURLPattern    = regexp.MustCompile(`http[s]?://\S+`)
	wwwURLPattern     = regexp.MustCompile(`www\.\S+`)
	specialPattern    = regexp.MustCompile(`[^\w\s.,!?;:\-'"()\[\]{}]`)
)

// htmlEntityReplacer maps the entities that commonly survive upstream
// scraping. Not a general HTML unescaper on purpose; anything beyond this
// set is left alone.
var htmlEntityReplacer = strings.NewReplacer(
	"&gt;", ">",
	"&lt;", "<",
	"&amp;", "&",
	"&quot;", `"`,
	"&apos;", "'",
	"&nbsp;", " ",
	"&#39;", "'",
)

// CleanText normalizes a piece of free text.
//
// # Description
//
// Replaces common HTML entities, collapses runs of whitespace to a single
// space, and trims the result. When aggressive is true it additionally
// strips URLs and any character outside word characters and basic
// punctuation.
//
// # Inputs
//
//   - text: Raw input text. Empty input returns "".
//   - aggressive: Enables URL and special-character stripping.
//
// # Outputs
//
//   - string: The cleaned text.
func CleanText(text string, aggressive bool) string {
	if text == "" {
		return ""
	}
	text = htmlEntityReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")
	if aggressive {
		text = httpURLPattern.ReplaceAllString(text, "")
		text = wwwURLPattern.ReplaceAllString(text, "")
		text = specialPattern.ReplaceAllString(text, "")
		text = whitespacePattern.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(text)
}

// Truncate shortens text to at most maxLength bytes, appending
// suffix when truncation happened. Text at or under the limit is returned
// unchanged.
func Truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	if maxLength <= len(suffix) {
		return text[:maxLength]
	}
	return text[:maxLength-len(suffix)] + suffix
}

// IsValidText reports whether text, after trimming, falls within the given
// length bounds.
func IsValidText(text string, minLength, maxLength int) bool {
	trimmed := strings.TrimSpace(text)
	return len(trimmed) >= minLength && len(trimmed) <= maxLength
}
