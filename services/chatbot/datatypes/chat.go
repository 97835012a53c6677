// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageLength bounds the user message in a chat request.
	MaxMessageLength = 1000

	// MaxHistoryMessages bounds the inline conversation history a request
	// may carry.
	MaxHistoryMessages = 50

	// DefaultNResults is the number of similar conversations retrieved
	// when the request does not say otherwise.
	DefaultNResults = 5

	// DefaultTemperature and DefaultMaxTokens apply when use_llm is set
	// and the request omits generation parameters.
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// chatValidate is the shared validator instance for chat datatypes.
var chatValidate = validator.New()

// =============================================================================
// Chat request/response
// =============================================================================

// ChatMessage is one prior turn supplied inline with a request.
type ChatMessage struct {
	Role      string         `json:"role" validate:"required,oneof=user assistant system"`
	Content   string         `json:"content" validate:"required,min=1,max=10000"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ChatRequest is the body of POST /v1/chat.
//
// # Fields
//
//   - Message: The user's question. Required, at most MaxMessageLength
//     characters after trimming.
//   - SessionID: Optional session for multi-turn continuity. A new
//     session is created when empty or expired.
//   - ConversationHistory: Optional inline history, at most
//     MaxHistoryMessages entries.
//   - UseLLM: Generate the answer with an LLM instead of echoing the
//     best retrieved response.
//   - NResults: Number of similar conversations to retrieve (1..20).
//   - Temperature, MaxTokens: Generation parameters, only meaningful
//     with UseLLM.
type ChatRequest struct {
	Message             string        `json:"message" validate:"required,max=1000"`
	SessionID           string        `json:"session_id,omitempty"`
	ConversationHistory []ChatMessage `json:"conversation_history,omitempty" validate:"max=50,dive"`
	UseLLM              bool          `json:"use_llm"`
	NResults            int           `json:"n_results,omitempty" validate:"omitempty,min=1,max=20"`
	Temperature         *float32      `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	MaxTokens           *int          `json:"max_tokens,omitempty" validate:"omitempty,min=1,max=2000"`
}

// EnsureDefaults populates optional fields and trims the message. Call
// before Validate.
func (r *ChatRequest) EnsureDefaults() {
	r.Message = strings.TrimSpace(r.Message)
	if r.NResults == 0 {
		r.NResults = DefaultNResults
	}
	if r.Temperature == nil {
		temp := float32(DefaultTemperature)
		r.Temperature = &temp
	}
	if r.MaxTokens == nil {
		tokens := DefaultMaxTokens
		r.MaxTokens = &tokens
	}
}

// Validate checks the request against its struct tags plus the
// whitespace-only message case the tags cannot express.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message cannot be empty or whitespace only")
	}
	return chatValidate.Struct(r)
}

// ChatMetadata describes how a response was produced.
type ChatMetadata struct {
	DurationMs float64   `json:"duration_ms"`
	Method     string    `json:"method"` // "simple" or "llm"
	NSources   int       `json:"n_sources"`
	Model      string    `json:"model,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Reranked   bool      `json:"reranked"`
	CacheHit   bool      `json:"cache_hit"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatResponse is the body returned by POST /v1/chat. It is also the
// value serialized into the response cache; cached copies are decoded and
// restamped rather than mutated in place.
type ChatResponse struct {
	Message  string         `json:"message"`
	Sources  []SearchResult `json:"sources"`
	Metadata ChatMetadata   `json:"metadata"`
}

// =============================================================================
// Operational types
// =============================================================================

// ComponentHealth is one entry of the health map.
type ComponentHealth struct {
	Status string `json:"status"` // healthy, unhealthy, unavailable, disabled
	Detail string `json:"detail,omitempty"`
}

// HealthCheck is the body of GET /health.
type HealthCheck struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// ErrorResponse is the uniform error body for the HTTP surface.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewErrorResponse builds an ErrorResponse stamped with the current time.
func NewErrorResponse(message, detail, code string) ErrorResponse {
	return ErrorResponse{
		Error:     message,
		Detail:    detail,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}
