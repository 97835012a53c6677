// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chatbot is the composition root of the retrieval chat service.
//
// # Description
//
// This package wires every component of the service: the response cache,
// conversation memory with background expiry, the rate limiter, the
// embedding and reranker sidecars, Weaviate, the LLM client, the chat
// pipeline, and the HTTP surface with tracing and metrics. Construction
// happens leaf-first here and nowhere else; the pipeline itself receives
// finished collaborators and never builds its own.
//
// # Usage
//
//	cfg := chatbot.Config{Port: 8100, WeaviateURL: "http://localhost:8080"}
//	svc, err := chatbot.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tidewaterai/ragchat/services/chatbot/cache"
	"github.com/tidewaterai/ragchat/services/chatbot/memory"
	"github.com/tidewaterai/ragchat/services/chatbot/observability"
	"github.com/tidewaterai/ragchat/services/chatbot/ratelimit"
	"github.com/tidewaterai/ragchat/services/chatbot/rerank"
	"github.com/tidewaterai/ragchat/services/chatbot/routes"
	"github.com/tidewaterai/ragchat/services/chatbot/services"
	"github.com/tidewaterai/ragchat/services/embedding"
	"github.com/tidewaterai/ragchat/services/llm"
	"github.com/tidewaterai/ragchat/services/vectorstore"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the lifecycle contract of the chat service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds every tunable of the service. Zero values use defaults;
// main populates it from the environment.
type Config struct {
	// Port is the HTTP server port. Default: 8100
	Port int

	// Version is reported by health checks.
	Version string

	// GinMode sets the gin framework mode ("debug", "release", "test").
	GinMode string

	// WeaviateURL is the vector database URL, e.g. "http://localhost:8080".
	WeaviateURL string

	// EmbeddingURL is the embedding sidecar URL.
	// Default: "http://localhost:8110"
	EmbeddingURL string

	// RerankerURL is the cross-encoder sidecar URL. Empty disables
	// reranking.
	RerankerURL string

	// RerankerModel names the cross-encoder for stats output.
	RerankerModel string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "localhost:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	EnableMetrics bool

	// LLMProvider selects the generation backend ("ollama", "openai",
	// "groq"). Empty disables generation; the service answers from
	// retrieval only.
	LLMProvider   string
	LLMModel      string
	OllamaBaseURL string
	OpenAIAPIKey  string
	GroqAPIKey    string

	// Cache settings. CacheBackend is "memory" or "redis"; a redis
	// backend that cannot be reached at construction falls back to
	// memory.
	CacheEnabled bool
	CacheBackend string
	RedisURL     string
	CacheMaxSize int
	CacheTTL     time.Duration

	// Memory settings.
	MaxSessions           int
	SessionTimeout        time.Duration
	MaxMessagesPerSession int
	SummaryThreshold      int
	SummaryKeepRecent     int
	MemorySweepInterval   time.Duration

	// Rate limiter settings.
	RateLimitEnabled  bool
	RequestsPerMinute int
	BurstSize         int

	// Retrieval settings.
	RerankerTopK       int
	MinSimilarityScore float64
	HybridSearch       bool
	DenseWeight        float64
	SparseWeight       float64
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8100
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.EmbeddingURL == "" {
		cfg.EmbeddingURL = "http://localhost:8110"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	if cfg.SummaryThreshold == 0 {
		cfg.SummaryThreshold = 10
	}
	if cfg.SummaryKeepRecent == 0 {
		cfg.SummaryKeepRecent = 5
	}
	if cfg.DenseWeight == 0 && cfg.SparseWeight == 0 {
		cfg.DenseWeight, cfg.SparseWeight = 0.7, 0.3
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// All fields are read-only after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	chatService   *services.ChatService
	sweeper       *memory.Sweeper
	tracerCleanup func(context.Context)
}

// New wires the service leaf-first from cfg.
//
// # Description
//
// Construction order: tracing, metrics, response cache (with redis
// fallback), LLM client, conversation memory with its summarizer and
// background sweeper, rate limiter, embedding client, Weaviate store,
// reranker, the chat pipeline, and finally the HTTP router. Sidecar
// probes run once here; a missing reranker or LLM degrades the pipeline
// rather than failing construction. Only unusable configuration (a bad
// Weaviate URL, an unknown LLM provider) is fatal.
func New(cfg Config) (Service, error) {
	ctx := context.Background()
	s := &service{config: applyConfigDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.ChatMetrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	cacheService := cache.New(ctx, cache.Config{
		BackendType: s.config.CacheBackend,
		RedisURL:    s.config.RedisURL,
		MaxSize:     s.config.CacheMaxSize,
		DefaultTTL:  s.config.CacheTTL,
		Enabled:     s.config.CacheEnabled,
	})

	llmClient, err := s.initLLMClient(ctx)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	baseMemory := memory.New(memory.Config{
		MaxSessions:           s.config.MaxSessions,
		SessionTimeout:        s.config.SessionTimeout,
		MaxMessagesPerSession: s.config.MaxMessagesPerSession,
	})
	summarizing := memory.NewSummarizing(baseMemory,
		services.NewLLMSummarizer(llmClient),
		s.config.SummaryThreshold, s.config.SummaryKeepRecent)

	s.sweeper = memory.NewSweeper(baseMemory, s.config.MemorySweepInterval)
	if err := s.sweeper.Start(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to start memory sweeper: %w", err)
	}

	var limiter *ratelimit.Limiter
	if s.config.RateLimitEnabled {
		limiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: s.config.RequestsPerMinute,
			BurstSize:         s.config.BurstSize,
			Enabled:           true,
		})
	}

	store, err := s.initStore(ctx)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	reranker := s.initReranker(ctx)
	var hybrid *rerank.HybridReranker
	if s.config.HybridSearch {
		hybrid = rerank.NewHybridReranker(reranker, s.config.DenseWeight, s.config.SparseWeight)
	}

	s.chatService = services.NewChatService(services.Config{
		RerankerTopK:       s.config.RerankerTopK,
		MinSimilarityScore: s.config.MinSimilarityScore,
		CacheTTL:           s.config.CacheTTL,
		HybridSearch:       s.config.HybridSearch,
		Version:            s.config.Version,
	}, services.Deps{
		Embedder: embedding.NewClient(s.config.EmbeddingURL, 0),
		Store:    store,
		LLM:      llmClient,
		Reranker: reranker,
		Hybrid:   hybrid,
		Cache:    cacheService,
		Memory:   summarizing,
		Limiter:  limiter,
		Metrics:  metrics,
	})

	s.initRouter(metrics)
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until it stops. Cleanup is
// automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting chat server", "port", s.config.Port, "version", s.config.Version)
	return s.router.Run(addr)
}

// Router returns the underlying gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer sets up the OTLP trace exporter for the configured
// collector over insecure gRPC, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("ragchat-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

// initLLMClient builds the generation client, or nil when no provider is
// configured.
func (s *service) initLLMClient(ctx context.Context) (llm.Client, error) {
	if s.config.LLMProvider == "" {
		slog.Info("No LLM provider configured, answering from retrieval only")
		return nil, nil
	}

	provider, err := llm.ParseProvider(s.config.LLMProvider)
	if err != nil {
		return nil, err
	}
	client, err := llm.New(ctx, llm.Config{
		Provider:      provider,
		Model:         s.config.LLMModel,
		OllamaBaseURL: s.config.OllamaBaseURL,
		OpenAIAPIKey:  s.config.OpenAIAPIKey,
		GroqAPIKey:    s.config.GroqAPIKey,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Initialized LLM client",
		"provider", client.Provider(),
		"model", client.Model(),
		"available", client.Available())
	return client, nil
}

// initStore connects to Weaviate and ensures the Conversation schema. A
// schema failure is not fatal; the store stays usable once Weaviate
// comes up with the class created out of band.
func (s *service) initStore(ctx context.Context) (*vectorstore.Store, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		weaviateURL = "http://localhost:8080"
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	store, err := vectorstore.Connect(parsedURL.Host, parsedURL.Scheme)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("Failed to ensure Weaviate schema", "error", err)
	}
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return store, nil
}

// initReranker probes the cross-encoder sidecar once at construction.
// Returns nil when no sidecar is configured.
func (s *service) initReranker(ctx context.Context) *rerank.Reranker {
	if s.config.RerankerURL == "" {
		slog.Info("No reranker configured")
		return nil
	}

	encoder := rerank.NewHTTPCrossEncoder(ctx, s.config.RerankerURL, s.config.RerankerModel, 0)
	reranker := rerank.NewReranker(encoder)
	slog.Info("Initialized reranker",
		"url", s.config.RerankerURL,
		"available", reranker.Available())
	return reranker
}

// initRouter creates the gin engine with tracing middleware and the
// route table.
func (s *service) initRouter(metrics *observability.ChatMetrics) {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("ragchat-service"))

	routes.SetupRoutes(s.router, s.chatService, metrics)
}

// cleanup releases resources on Run() exit or failed construction.
func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
