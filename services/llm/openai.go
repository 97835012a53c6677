// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("ragchat.llm.openai")

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// completionTimeout bounds one hosted completion call.
const completionTimeout = 2 * time.Minute

// OpenAIClient serves both the openai and groq providers through the
// OpenAI-compatible chat completions API; groq differs only in base URL.
//
// Availability is an API-key presence check cached at construction. The
// hosted APIs have no cheap unauthenticated liveness probe, so a present
// key is taken as available and network failures surface per call.
type OpenAIClient struct {
	client    *openai.Client
	provider  Provider
	model     string
	available bool
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the OpenAI API.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting", "model", model)
	}
	available := apiKey != ""
	if !available {
		slog.Warn("OpenAI API key not set, provider unavailable")
	}
	slog.Info("Initialized OpenAI client", "model", model, "available", available)
	return &OpenAIClient{
		client:    openai.NewClient(apiKey),
		provider:  ProviderOpenAI,
		model:     model,
		available: available,
	}
}

// NewGroqClient creates a client for Groq's OpenAI-compatible API.
func NewGroqClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "llama-3.1-8b-instant"
		slog.Warn("Groq model not set, defaulting", "model", model)
	}
	available := apiKey != ""
	if !available {
		slog.Warn("Groq API key not set, provider unavailable")
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = groqBaseURL
	slog.Info("Initialized Groq client", "model", model, "available", available)
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(config),
		provider:  ProviderGroq,
		model:     model,
		available: available,
	}
}

func (c *OpenAIClient) Available() bool    { return c.available }
func (c *OpenAIClient) Provider() Provider { return c.provider }
func (c *OpenAIClient) Model() string      { return c.model }

// Generate implements the Client interface.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", string(c.provider)),
		attribute.String("llm.model", c.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Chat completion call failed", "provider", c.provider, "error", err)
		return "", &GenerationError{Provider: c.provider, Model: c.model,
			Err: fmt.Errorf("chat completion failed: %w", err)}
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &GenerationError{Provider: c.provider, Model: c.model, Err: err}
	}

	slog.Debug("Received chat completion",
		"provider", c.provider, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
