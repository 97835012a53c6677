// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ollamaTracer = otel.Tracer("ragchat.llm.ollama")

// OllamaClient talks to a local Ollama server over its chat API.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	available  bool
}

var _ Client = (*OllamaClient)(nil)

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   Message `json:"message"`
	CreatedAt string  `json:"created_at"`
	Done      bool    `json:"done"`
}

// NewOllamaClient creates a client for the Ollama server at baseURL.
//
// # Description
//
// Availability is probed once against GET /api/tags (the cheapest call
// that proves the server is up) and cached. An unreachable server is not
// a construction error; the client is returned unavailable so the caller
// can degrade to retrieval-only answers.
func NewOllamaClient(ctx context.Context, baseURL, model string) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama base url not set")
	}
	if model == "" {
		model = "llama3.1"
		slog.Warn("Ollama model not set, defaulting", "model", model)
	}
	c := &OllamaClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
	c.available = c.probe(ctx)
	slog.Info("Initialized Ollama client",
		"base_url", c.baseURL, "model", model, "available", c.available)
	return c, nil
}

func (c *OllamaClient) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *OllamaClient) Available() bool    { return c.available }
func (c *OllamaClient) Provider() Provider { return ProviderOllama }
func (c *OllamaClient) Model() string      { return c.model }

// Generate implements the Client interface via POST /api/chat.
func (c *OllamaClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	options := map[string]any{
		"temperature":    float32(0.7),
		"top_p":          float32(0.9),
		"num_predict":    500,
		"repeat_penalty": 1.1,
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	payload := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", c.genErr(span, fmt.Errorf("failed to marshal chat request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", c.genErr(span, fmt.Errorf("failed to create chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Ollama API call failed", "error", err)
		return "", c.genErr(span, fmt.Errorf("ollama API call failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.genErr(span, fmt.Errorf("failed to read ollama response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound && strings.Contains(string(respBody), "not found") {
			slog.Warn("Ollama model not found", "model", c.model)
			return "", c.genErr(span, fmt.Errorf(
				"model %q not found, run: ollama pull %s", c.model, c.model))
		}
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBody))
		return "", c.genErr(span, fmt.Errorf("ollama failed with status %d: %s",
			resp.StatusCode, string(respBody)))
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		slog.Error("Failed to parse Ollama response", "error", err)
		return "", c.genErr(span, fmt.Errorf("failed to parse ollama response: %w", err))
	}
	if parsed.Message.Role != "assistant" {
		slog.Warn("Ollama response role was not assistant", "role", parsed.Message.Role)
	}
	return parsed.Message.Content, nil
}

// genErr records err on the span and wraps it as a *GenerationError.
func (c *OllamaClient) genErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return &GenerationError{Provider: ProviderOllama, Model: c.model, Err: err}
}
