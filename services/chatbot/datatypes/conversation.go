// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request, response, and domain types shared
// across the chatbot service.
package datatypes

import (
	"fmt"
	"strings"
)

// Conversation is one indexed question/answer pair from the source corpus.
//
// # Fields
//
//   - ID: Corpus-unique identifier, stable across re-indexing.
//   - Context: The question or opening message.
//   - Response: The answer given to Context.
//   - FollowUp: Optional continuation of the thread.
//   - FullText: Combined text used for embedding. Derived from Context
//     and Response when empty.
//   - Embedding: Dense vector, present only on indexing paths.
//   - Metadata: Free-form source attributes (subforum, score, ...).
type Conversation struct {
	ID        int64          `json:"id"`
	Context   string         `json:"context"`
	Response  string         `json:"response"`
	FollowUp  string         `json:"follow_up,omitempty"`
	FullText  string         `json:"full_text,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EnsureFullText populates FullText from Context and Response when it is
// empty. Call after construction or decoding.
func (c *Conversation) EnsureFullText() {
	if c.FullText == "" {
		c.FullText = fmt.Sprintf("Question: %s\nAnswer: %s", c.Context, c.Response)
	}
}

// Validate checks that the conversation carries usable text.
func (c *Conversation) Validate() error {
	if c.ID < 0 {
		return fmt.Errorf("conversation id must be non-negative")
	}
	if strings.TrimSpace(c.Context) == "" {
		return fmt.Errorf("conversation context cannot be empty")
	}
	if strings.TrimSpace(c.Response) == "" {
		return fmt.Errorf("conversation response cannot be empty")
	}
	return nil
}

// SearchResult is one ranked hit from vector or hybrid search.
//
// Score is whatever stage produced the result last: certainty from dense
// search, BM25 score from sparse search, an RRF sum after fusion, or a raw
// cross-encoder logit after reranking. Cross-encoder scores can be
// negative; nothing clamps them.
type SearchResult struct {
	Conversation Conversation `json:"conversation"`
	Score        float64      `json:"score"`
	Distance     *float64     `json:"distance,omitempty"`
	Rank         int          `json:"rank"`
}
