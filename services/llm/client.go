// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides generation clients for the supported LLM backends.
//
// The backend set is a closed enum: ollama (local HTTP), openai, and groq
// (both through the OpenAI-compatible API). Availability is resolved once
// at construction and cached; a provider that was down at startup stays
// unavailable until restart. Generation failures surface as
// *GenerationError so callers can match them and fall back.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider identifies a generation backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
)

// ParseProvider maps a config string onto the closed provider set.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGroq:
		return ProviderGroq, nil
	default:
		return "", fmt.Errorf("unsupported llm provider: %q", s)
	}
}

// Message is one turn passed to a chat-style backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries optional sampling parameters. Nil fields use
// backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
}

// Client is the contract every generation backend implements.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Generate produces a completion for the given messages. Errors are
	// always *GenerationError.
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// Available reports the cached construction-time availability.
	Available() bool

	// Provider and Model identify the backend for response metadata.
	Provider() Provider
	Model() string
}

// GenerationError is the typed failure of a generation call. The chat
// pipeline matches on it to fall back to retrieval-only answers instead
// of failing the request.
type GenerationError struct {
	Provider Provider
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm generation failed (%s/%s): %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is (or wraps) a *GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// Config holds provider selection and credentials for the factory.
type Config struct {
	Provider Provider
	Model    string

	// OllamaBaseURL is the local Ollama endpoint, e.g. http://localhost:11434.
	OllamaBaseURL string

	// OpenAIAPIKey / GroqAPIKey authenticate the hosted backends.
	OpenAIAPIKey string
	GroqAPIKey   string
}

// New constructs the client for cfg.Provider. Unknown providers are a
// construction error; per the closed-enum contract there is no dynamic
// registry to extend.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaClient(ctx, cfg.OllamaBaseURL, cfg.Model)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.Model), nil
	case ProviderGroq:
		return NewGroqClient(cfg.GroqAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// =============================================================================
// Prompt construction
// =============================================================================

// SystemPrompt is the instruction set shared by all backends.
const SystemPrompt = "You are a friendly and helpful conversational AI assistant. " +
	"Your responses are based on real archived conversations.\n\n" +
	"CRITICAL RULES:\n" +
	"1. LANGUAGE: Respond in the SAME language as the user's question.\n" +
	"2. DO NOT add labels or meta-commentary around your answer.\n" +
	"3. Be concise, natural and conversational.\n" +
	"4. Use the provided context to give relevant answers."

// BuildMessages assembles the chat transcript sent to a backend: system
// prompt, up to the last five history turns, then the user message with
// retrieved context folded in.
func BuildMessages(query, context string, history []Message) []Message {
	messages := []Message{{Role: "system", Content: SystemPrompt}}

	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	messages = append(messages, history...)

	return append(messages, Message{Role: "user", Content: BuildUserMessage(query, context)})
}

// BuildUserMessage folds retrieved context into the user turn. Without
// context the query passes through untouched.
func BuildUserMessage(query, context string) string {
	if context == "" {
		return query
	}
	return fmt.Sprintf(
		"Context from archived conversations:\n\n%s\n\nUser question: %s\n\n"+
			"IMPORTANT: Respond in the SAME LANGUAGE as the user's question above.",
		context, query)
}
