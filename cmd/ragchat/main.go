// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command ragchat starts the retrieval chat HTTP server.
//
// It reads configuration from environment variables and runs until the
// server stops.
//
// # Environment Variables
//
//   - RAGCHAT_PORT: HTTP server port (default: 8100)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (default: http://localhost:8080)
//   - EMBEDDING_SERVICE_URL: embedding sidecar URL (default: http://localhost:8110)
//   - RERANKER_SERVICE_URL: cross-encoder sidecar URL (optional)
//   - LLM_PROVIDER: ollama, openai, or groq (optional; retrieval-only when unset)
//   - LLM_MODEL: model name for the chosen provider
//   - OLLAMA_BASE_URL, OPENAI_API_KEY, GROQ_API_KEY: provider credentials
//   - CACHE_ENABLED, CACHE_BACKEND, REDIS_URL, CACHE_TTL_SECONDS: response cache
//   - MAX_SESSIONS, SESSION_TIMEOUT_SECONDS, MAX_MESSAGES_PER_SESSION: memory
//   - RATE_LIMIT_ENABLED, RATE_LIMIT_RPM, RATE_LIMIT_BURST: rate limiter
//   - HYBRID_SEARCH_ENABLED: fuse dense and BM25 retrieval
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: localhost:4317)
//
// # Usage
//
//	go build -o ragchat ./cmd/ragchat
//	./ragchat
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/tidewaterai/ragchat/services/chatbot"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := chatbot.Config{
		Port:          getEnvInt("RAGCHAT_PORT", 8100),
		Version:       getEnvString("RAGCHAT_VERSION", "dev"),
		GinMode:       os.Getenv("GIN_MODE"),
		WeaviateURL:   getEnvString("WEAVIATE_SERVICE_URL", "http://localhost:8080"),
		EmbeddingURL:  getEnvString("EMBEDDING_SERVICE_URL", "http://localhost:8110"),
		RerankerURL:   os.Getenv("RERANKER_SERVICE_URL"),
		RerankerModel: getEnvString("RERANKER_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
		OTelEndpoint:  getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		EnableMetrics: getEnvBool("METRICS_ENABLED", true),

		LLMProvider:   os.Getenv("LLM_PROVIDER"),
		LLMModel:      os.Getenv("LLM_MODEL"),
		OllamaBaseURL: getEnvString("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:    os.Getenv("GROQ_API_KEY"),

		CacheEnabled: getEnvBool("CACHE_ENABLED", true),
		CacheBackend: getEnvString("CACHE_BACKEND", "memory"),
		RedisURL:     os.Getenv("REDIS_URL"),
		CacheMaxSize: getEnvInt("CACHE_MAX_SIZE", 1000),
		CacheTTL:     getEnvSeconds("CACHE_TTL_SECONDS", time.Hour),

		MaxSessions:           getEnvInt("MAX_SESSIONS", 1000),
		SessionTimeout:        getEnvSeconds("SESSION_TIMEOUT_SECONDS", time.Hour),
		MaxMessagesPerSession: getEnvInt("MAX_MESSAGES_PER_SESSION", 100),
		SummaryThreshold:      getEnvInt("SUMMARY_THRESHOLD", 10),
		SummaryKeepRecent:     getEnvInt("SUMMARY_KEEP_RECENT", 5),
		MemorySweepInterval:   getEnvSeconds("MEMORY_SWEEP_SECONDS", 5*time.Minute),

		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("RATE_LIMIT_RPM", 60),
		BurstSize:         getEnvInt("RATE_LIMIT_BURST", 60),

		RerankerTopK:       getEnvInt("RERANKER_TOP_K", 3),
		MinSimilarityScore: getEnvFloat("MIN_SIMILARITY_SCORE", 0.5),
		HybridSearch:       getEnvBool("HYBRID_SEARCH_ENABLED", false),
	}

	slog.Info("Starting ragchat",
		"port", cfg.Port,
		"weaviate_url", cfg.WeaviateURL,
		"llm_provider", cfg.LLMProvider,
		"hybrid_search", cfg.HybridSearch,
	)

	svc, err := chatbot.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create chat service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Chat service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvSeconds returns the environment variable as a seconds duration
// or a default.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
