// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the chat orchestration layer.
//
// # Description
//
// ChatService drives one chat request through the full retrieval
// pipeline: validate, resolve session, consult the response cache, embed
// and search, rerank, build conversation context, generate, remember,
// respond, and cache. Every collaborator arrives through the constructor,
// so the pipeline itself holds no construction logic and tests can swap
// any stage for a fake.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tidewaterai/ragchat/pkg/textproc"
	"github.com/tidewaterai/ragchat/pkg/validation"
	"github.com/tidewaterai/ragchat/services/chatbot/cache"
	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/tidewaterai/ragchat/services/chatbot/memory"
	"github.com/tidewaterai/ragchat/services/chatbot/observability"
	"github.com/tidewaterai/ragchat/services/chatbot/ratelimit"
	"github.com/tidewaterai/ragchat/services/chatbot/rerank"
	"github.com/tidewaterai/ragchat/services/llm"
)

var chatTracer = otel.Tracer("ragchat.chatbot.services")

// noResultsMessage is returned when retrieval finds nothing relevant.
const noResultsMessage = "I couldn't find any relevant conversation. Could you rephrase your question?"

// sourcesReturned bounds how many sources a response carries.
const sourcesReturned = 3

// =============================================================================
// Collaborator contracts
// =============================================================================

// Embedder produces dense vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Healthy(ctx context.Context) bool
}

// ConversationStore searches and counts indexed conversations.
type ConversationStore interface {
	SearchDense(ctx context.Context, vector []float32, limit int, minScore float64) ([]datatypes.SearchResult, error)
	SearchSparse(ctx context.Context, query string, limit int) ([]datatypes.SearchResult, error)
	Count(ctx context.Context) (int64, error)
	Healthy(ctx context.Context) bool
}

// =============================================================================
// Configuration
// =============================================================================

// Config tunes the retrieval pipeline.
type Config struct {
	// RerankerTopK is how many candidates survive the cross-encoder pass.
	RerankerTopK int

	// MinSimilarityScore is the certainty floor for dense retrieval.
	MinSimilarityScore float64

	// CacheTTL bounds how long a generated response stays cached.
	CacheTTL time.Duration

	// HybridSearch fans retrieval out to dense plus BM25 and fuses the
	// runs with reciprocal rank fusion.
	HybridSearch bool

	// Version is reported by health checks.
	Version string
}

func applyConfigDefaults(cfg *Config) {
	if cfg.RerankerTopK <= 0 {
		cfg.RerankerTopK = 3
	}
	if cfg.MinSimilarityScore <= 0 {
		cfg.MinSimilarityScore = 0.5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
}

// Deps are the pipeline collaborators, wired by the composition root.
// LLM, Reranker, Hybrid, Limiter and Metrics may be nil; the pipeline
// degrades to retrieval-only answers without them.
type Deps struct {
	Embedder Embedder
	Store    ConversationStore
	LLM      llm.Client
	Reranker *rerank.Reranker
	Hybrid   *rerank.HybridReranker
	Cache    *cache.Service
	Memory   *memory.SummarizingMemory
	Limiter  *ratelimit.Limiter
	Metrics  *observability.ChatMetrics
}

// =============================================================================
// ChatService
// =============================================================================

// ChatService orchestrates the chat pipeline.
//
// # Thread Safety
//
// Safe for concurrent use; all mutable state lives in the injected
// collaborators, which synchronize internally.
type ChatService struct {
	cfg      Config
	embedder Embedder
	store    ConversationStore
	llm      llm.Client
	reranker *rerank.Reranker
	hybrid   *rerank.HybridReranker
	cache    *cache.Service
	memory   *memory.SummarizingMemory
	limiter  *ratelimit.Limiter
	metrics  *observability.ChatMetrics
}

// NewChatService wires the pipeline from cfg and deps.
func NewChatService(cfg Config, deps Deps) *ChatService {
	applyConfigDefaults(&cfg)
	return &ChatService{
		cfg:      cfg,
		embedder: deps.Embedder,
		store:    deps.Store,
		llm:      deps.LLM,
		reranker: deps.Reranker,
		hybrid:   deps.Hybrid,
		cache:    deps.Cache,
		memory:   deps.Memory,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
	}
}

// Chat runs one request through the pipeline.
//
// # Description
//
// The stages, in order: validate the request, resolve or create the
// session and record the user turn, consult the response cache (a hit is
// decoded into a fresh value and restamped, never mutated in place),
// embed and search, rerank, collect conversation context, generate the
// answer, record the assistant turn, assemble the response, and cache
// it. A failed LLM call falls back to the retrieval-only answer instead
// of failing the request; only embedding and vector store failures
// surface as errors.
//
// # Inputs
//
//   - ctx: Request-scoped context; cancellation aborts in-flight
//     retrieval and generation calls.
//   - req: The chat request. Defaults are filled in place.
//
// # Outputs
//
//   - *datatypes.ChatResponse: The answer with sources and metadata.
//   - error: *ValidationError for bad input, *ProviderError for backing
//     component failures.
func (s *ChatService) Chat(ctx context.Context, req *datatypes.ChatRequest) (*datatypes.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.Chat")
	defer span.End()
	start := time.Now()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Field: "request", Reason: err.Error()}
	}
	if validation.IsPotentiallyHarmful(req.Message) {
		return nil, &ValidationError{Field: "message", Reason: "contains potentially harmful content"}
	}
	span.SetAttributes(
		attribute.Bool("chat.use_llm", req.UseLLM),
		attribute.Int("chat.n_results", req.NResults),
	)

	sess := s.memory.Base().GetOrCreateSession(req.SessionID)
	sessionID := sess.ID
	sess.AddMessage("user", req.Message, nil)

	cacheKey := cache.MakeKey(req.Message, req.UseLLM, req.NResults)
	if data, ok := s.cache.Get(ctx, cacheKey); ok {
		var cached datatypes.ChatResponse
		if err := json.Unmarshal(data, &cached); err == nil {
			s.metrics.RecordCacheEvent(true)
			span.SetAttributes(attribute.Bool("chat.cache_hit", true))
			cached.Metadata.CacheHit = true
			cached.Metadata.SessionID = sessionID
			cached.Metadata.Timestamp = time.Now().UTC()
			cached.Metadata.DurationMs = float64(time.Since(start).Microseconds()) / 1000
			sess.AddMessage("assistant", cached.Message, nil)
			s.metrics.RecordRequest(cached.Metadata.Method, true, time.Since(start).Seconds())
			return &cached, nil
		}
		// Undecodable entries are poison; drop and regenerate.
		s.cache.Delete(ctx, cacheKey)
	}
	s.metrics.RecordCacheEvent(false)

	results, reranked, err := s.searchSimilar(ctx, req.Message, req.NResults)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordRequest("simple", false, time.Since(start).Seconds())
		return nil, err
	}

	memoryContext := s.memory.GetContext(ctx, sessionID, true)

	answer, method, model, provider := s.generate(ctx, req, results, memoryContext)

	sess.AddMessage("assistant", answer, nil)

	sources := results
	if len(sources) > sourcesReturned {
		sources = sources[:sourcesReturned]
	}
	resp := &datatypes.ChatResponse{
		Message: answer,
		Sources: sources,
		Metadata: datatypes.ChatMetadata{
			DurationMs: float64(time.Since(start).Microseconds()) / 1000,
			Method:     method,
			NSources:   len(results),
			Model:      model,
			Provider:   provider,
			Reranked:   reranked,
			CacheHit:   false,
			SessionID:  sessionID,
			Timestamp:  time.Now().UTC(),
		},
	}

	if data, err := json.Marshal(resp); err == nil {
		s.cache.Set(ctx, cacheKey, data, s.cfg.CacheTTL)
	}

	s.metrics.RecordSources(len(results))
	s.metrics.RecordRequest(method, true, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("chat.method", method),
		attribute.Int("chat.num_sources", len(results)),
	)
	return resp, nil
}

// searchSimilar embeds the message and retrieves similar conversations,
// reranking when a cross-encoder is available. The candidate fetch is
// widened to max(3n, 15) under reranking so the cross-encoder has a real
// pool to reorder. The second return reports whether reranking ran.
func (s *ChatService) searchSimilar(ctx context.Context, message string, n int) ([]datatypes.SearchResult, bool, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.searchSimilar")
	defer span.End()

	cleaned := textproc.CleanText(message, false)

	vector, err := s.embedder.Embed(ctx, cleaned)
	if err != nil {
		return nil, false, &ProviderError{Component: "embedding service", Err: err}
	}

	rerankAvailable := s.reranker != nil && s.reranker.Available()
	fetchN := n
	if rerankAvailable {
		fetchN = max(3*n, 15)
	}
	span.SetAttributes(
		attribute.Int("search.fetch_n", fetchN),
		attribute.Bool("search.rerank_available", rerankAvailable),
	)

	if s.cfg.HybridSearch && s.hybrid != nil {
		dense, err := s.store.SearchDense(ctx, vector, fetchN, s.cfg.MinSimilarityScore)
		if err != nil {
			return nil, false, &ProviderError{Component: "vector store", Err: err}
		}
		sparse, err := s.store.SearchSparse(ctx, cleaned, fetchN)
		if err != nil {
			// Keyword retrieval is best-effort; fall back to dense only.
			slog.Warn("bm25 search failed, using dense results only", "error", err)
			sparse = nil
		}
		topK := n
		if rerankAvailable {
			topK = s.cfg.RerankerTopK
		}
		rerankStart := time.Now()
		fused := s.hybrid.SearchAndRerank(ctx, cleaned, dense, sparse, topK, fetchN)
		if rerankAvailable {
			s.metrics.RecordRerank(time.Since(rerankStart).Seconds())
		}
		return fused, rerankAvailable, nil
	}

	results, err := s.store.SearchDense(ctx, vector, fetchN, s.cfg.MinSimilarityScore)
	if err != nil {
		return nil, false, &ProviderError{Component: "vector store", Err: err}
	}
	if rerankAvailable {
		rerankStart := time.Now()
		results = s.reranker.Rerank(ctx, cleaned, results, s.cfg.RerankerTopK)
		s.metrics.RecordRerank(time.Since(rerankStart).Seconds())
	}
	return results, rerankAvailable, nil
}

// generate picks the generation path and returns the answer together
// with the method, model and provider for response metadata. A typed
// generation failure degrades to the retrieval-only answer; any other
// state (LLM disabled, absent, or unavailable) never reaches the LLM.
func (s *ChatService) generate(ctx context.Context, req *datatypes.ChatRequest,
	results []datatypes.SearchResult, memoryContext string) (answer, method, model, provider string) {

	method, model = "simple", "retrieval"
	if !req.UseLLM || s.llm == nil || !s.llm.Available() {
		return s.generateSimple(results), method, model, ""
	}

	answer, err := s.generateWithLLM(ctx, req, results, memoryContext)
	if err != nil {
		slog.Warn("llm generation failed, falling back to retrieval answer",
			"provider", s.llm.Provider(), "error", err)
		return s.generateSimple(results), method, model, ""
	}
	return answer, "llm", s.llm.Model(), string(s.llm.Provider())
}

// generateSimple answers with the best match's recorded response, or the
// fixed no-result message when retrieval came back empty.
func (s *ChatService) generateSimple(results []datatypes.SearchResult) string {
	if len(results) == 0 {
		return noResultsMessage
	}
	return results[0].Conversation.Response
}

// generateWithLLM asks the configured LLM for an answer grounded in the
// retrieved conversations and the session's memory context.
func (s *ChatService) generateWithLLM(ctx context.Context, req *datatypes.ChatRequest,
	results []datatypes.SearchResult, memoryContext string) (string, error) {

	ctx, span := chatTracer.Start(ctx, "ChatService.generateWithLLM")
	defer span.End()

	contextBlock := buildRetrievalContext(results)
	if memoryContext != "" {
		contextBlock = fmt.Sprintf("Previous conversation:\n%s\n\n%s", memoryContext, contextBlock)
	}

	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for _, msg := range req.ConversationHistory {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	messages := llm.BuildMessages(req.Message, contextBlock, history)
	answer, err := s.llm.Generate(ctx, messages, llm.GenerationParams{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return answer, nil
}

// buildRetrievalContext renders the top matches as worked examples for
// the generation prompt.
func buildRetrievalContext(results []datatypes.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	n := len(results)
	if n > sourcesReturned {
		n = sourcesReturned
	}
	out := "Relevant archived conversations:\n"
	for i := 0; i < n; i++ {
		r := results[i]
		out += fmt.Sprintf("\nExample %d (relevance: %.0f%%):\nQ: %s\nA: %s\n",
			i+1, r.Score*100, r.Conversation.Context, r.Conversation.Response)
	}
	return out
}

// NewLLMSummarizer adapts an LLM client into the summarizer the
// conversation memory uses to compress old turns. A nil or unavailable
// client returns an error so the memory leaves the session intact.
func NewLLMSummarizer(client llm.Client) memory.Summarizer {
	return func(ctx context.Context, transcript string) (string, error) {
		if client == nil || !client.Available() {
			return "", fmt.Errorf("no llm available for summarization")
		}
		temp := float32(0.3)
		tokens := 150
		messages := []llm.Message{
			{Role: "system", Content: "You summarize conversations accurately and concisely."},
			{Role: "user", Content: "Summarize the following conversation in 2-3 concise sentences:\n\n" + transcript},
		}
		return client.Generate(ctx, messages, llm.GenerationParams{
			Temperature: &temp,
			MaxTokens:   &tokens,
		})
	}
}

// =============================================================================
// Operational surface
// =============================================================================

// ServiceStats is the body of GET /v1/stats.
type ServiceStats struct {
	TotalConversations int64  `json:"total_conversations"`
	LLMProvider        string `json:"llm_provider,omitempty"`
	LLMModel           string `json:"llm_model,omitempty"`
	LLMAvailable       bool   `json:"llm_available"`
	RerankerAvailable  bool   `json:"reranker_available"`
	RerankerModel      string `json:"reranker_model,omitempty"`
	HybridSearch       bool   `json:"hybrid_search"`

	Cache     cache.Stats     `json:"cache"`
	Memory    memory.Stats    `json:"memory"`
	RateLimit ratelimit.Stats `json:"rate_limit"`
}

// Stats reports the operational state of every pipeline component.
func (s *ChatService) Stats(ctx context.Context) ServiceStats {
	stats := ServiceStats{
		HybridSearch: s.cfg.HybridSearch,
		Cache:        s.cache.GetStats(),
		Memory:       s.memory.Base().GetStats(),
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		slog.Warn("failed to count indexed conversations", "error", err)
	}
	stats.TotalConversations = count

	if s.llm != nil {
		stats.LLMProvider = string(s.llm.Provider())
		stats.LLMModel = s.llm.Model()
		stats.LLMAvailable = s.llm.Available()
	}
	if s.reranker != nil {
		stats.RerankerAvailable = s.reranker.Available()
		stats.RerankerModel = s.reranker.ModelName()
	}
	if s.limiter != nil {
		stats.RateLimit = s.limiter.GetStats()
	}
	return stats
}

// HealthCheck probes every component and reports per-component status.
// The service is healthy when embedding and the vector store respond;
// the LLM and reranker only degrade, since the pipeline answers without
// them.
func (s *ChatService) HealthCheck(ctx context.Context) datatypes.HealthCheck {
	components := make(map[string]datatypes.ComponentHealth)

	if s.embedder.Healthy(ctx) {
		components["embedding"] = datatypes.ComponentHealth{Status: "healthy"}
	} else {
		components["embedding"] = datatypes.ComponentHealth{
			Status: "unhealthy",
			Detail: "embedding service not responding",
		}
	}

	if s.store.Healthy(ctx) {
		components["vector_store"] = datatypes.ComponentHealth{Status: "healthy"}
	} else {
		components["vector_store"] = datatypes.ComponentHealth{
			Status: "unhealthy",
			Detail: "weaviate not ready",
		}
	}

	switch {
	case s.llm == nil:
		components["llm"] = datatypes.ComponentHealth{Status: "disabled"}
	case s.llm.Available():
		components["llm"] = datatypes.ComponentHealth{
			Status: "healthy",
			Detail: fmt.Sprintf("%s/%s", s.llm.Provider(), s.llm.Model()),
		}
	default:
		components["llm"] = datatypes.ComponentHealth{Status: "unavailable"}
	}

	switch {
	case s.reranker == nil:
		components["reranker"] = datatypes.ComponentHealth{Status: "disabled"}
	case s.reranker.Available():
		components["reranker"] = datatypes.ComponentHealth{
			Status: "healthy",
			Detail: s.reranker.ModelName(),
		}
	default:
		components["reranker"] = datatypes.ComponentHealth{Status: "unavailable"}
	}

	if s.cache.Enabled() {
		components["cache"] = datatypes.ComponentHealth{
			Status: "healthy",
			Detail: s.cache.Backend().Name(),
		}
	} else {
		components["cache"] = datatypes.ComponentHealth{Status: "disabled"}
	}

	status := "healthy"
	if components["embedding"].Status != "healthy" || components["vector_store"].Status != "healthy" {
		status = "degraded"
	}
	return datatypes.HealthCheck{
		Status:     status,
		Version:    s.cfg.Version,
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

// Memory exposes the session memory for the session HTTP endpoints.
func (s *ChatService) Memory() *memory.SummarizingMemory { return s.memory }

// Limiter exposes the rate limiter for middleware wiring.
func (s *ChatService) Limiter() *ratelimit.Limiter { return s.limiter }
