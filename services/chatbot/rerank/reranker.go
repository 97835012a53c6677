// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rerank provides second-stage result ranking: cross-encoder
// rescoring of candidate conversations and reciprocal rank fusion of
// dense and sparse search runs.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var rerankTracer = otel.Tracer("ragchat.chatbot.rerank")

// =============================================================================
// Cross-encoder scoring
// =============================================================================

// CrossEncoder scores query/document pairs for relevance.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type CrossEncoder interface {
	// ScorePairs returns one relevance score per document, in document
	// order. Scores are raw model outputs and may be negative.
	ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error)

	// Available reports whether the encoder can serve requests. Resolved
	// once at construction; a false value makes the Reranker pass
	// results through unchanged.
	Available() bool

	// ModelName identifies the scoring model for stats output.
	ModelName() string
}

// HTTPCrossEncoder calls a sidecar model service for scoring.
//
// # Description
//
// The sidecar exposes POST /score taking {"query": ..., "documents":
// [...]} and returning {"scores": [...]}. Availability is probed once at
// construction against GET /health; an unreachable sidecar produces a
// permanently unavailable encoder rather than an error, matching the
// policy that reranking is an enhancement, never a dependency.
type HTTPCrossEncoder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	available  bool
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPCrossEncoder builds an encoder against the sidecar at baseURL
// and probes its health once.
func NewHTTPCrossEncoder(ctx context.Context, baseURL, model string, timeout time.Duration) *HTTPCrossEncoder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	e := &HTTPCrossEncoder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
	e.available = e.probe(ctx)
	if e.available {
		slog.Info("Cross-encoder reranker available", "base_url", e.baseURL, "model", model)
	} else {
		slog.Warn("Cross-encoder reranker not available, results will pass through unranked",
			"base_url", e.baseURL)
	}
	return e
}

func (e *HTTPCrossEncoder) probe(ctx context.Context) bool {
	if e.baseURL == "" {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *HTTPCrossEncoder) Available() bool   { return e.available }
func (e *HTTPCrossEncoder) ModelName() string { return e.model }

// ScorePairs sends the query and documents to the sidecar and returns its
// scores.
func (e *HTTPCrossEncoder) ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error) {
	ctx, span := rerankTracer.Start(ctx, "HTTPCrossEncoder.ScorePairs")
	defer span.End()
	span.SetAttributes(attribute.Int("rerank.num_documents", len(documents)))

	body, err := json.Marshal(scoreRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("cross-encoder call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cross-encoder response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("cross-encoder failed with status %d: %s", resp.StatusCode, string(respBody))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var parsed scoreResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse cross-encoder response: %w", err)
	}
	if len(parsed.Scores) != len(documents) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d documents",
			len(parsed.Scores), len(documents))
	}
	return parsed.Scores, nil
}

// =============================================================================
// Reranker
// =============================================================================

// Reranker reorders search results by cross-encoder relevance.
type Reranker struct {
	encoder CrossEncoder
}

// NewReranker wraps encoder. A nil encoder yields a permanent passthrough.
func NewReranker(encoder CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Available reports whether reranking will actually happen.
func (r *Reranker) Available() bool {
	return r.encoder != nil && r.encoder.Available()
}

// ModelName returns the encoder's model identifier, "" when unavailable.
func (r *Reranker) ModelName() string {
	if r.encoder == nil {
		return ""
	}
	return r.encoder.ModelName()
}

// Rerank rescores results against query and returns them ordered by
// descending cross-encoder score.
//
// # Description
//
// Each result's conversation context is scored against the query. Results
// come back re-sorted (stable, so equal scores keep their incoming
// order), scores replaced with the raw encoder output, ranks reassigned
// from 1, and truncated to topK when topK is positive. An unavailable
// encoder or a scoring failure returns the input untouched; reranking
// never breaks retrieval.
func (r *Reranker) Rerank(ctx context.Context, query string, results []datatypes.SearchResult, topK int) []datatypes.SearchResult {
	if len(results) == 0 || !r.Available() {
		if len(results) > 0 {
			slog.Warn("Reranker not available, returning original results")
		}
		return results
	}

	ctx, span := rerankTracer.Start(ctx, "Reranker.Rerank")
	defer span.End()
	span.SetAttributes(
		attribute.Int("rerank.num_candidates", len(results)),
		attribute.Int("rerank.top_k", topK),
	)

	documents := make([]string, len(results))
	for i, res := range results {
		documents[i] = res.Conversation.Context
	}

	scores, err := r.encoder.ScorePairs(ctx, query, documents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Reranking failed, returning original results", "error", err)
		return results
	}

	reranked := make([]datatypes.SearchResult, len(results))
	copy(reranked, results)
	for i := range reranked {
		reranked[i].Score = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	for i := range reranked {
		reranked[i].Rank = i + 1
	}

	if topK > 0 && len(reranked) > topK {
		reranked = reranked[:topK]
	}
	slog.Debug("Reranked results", "candidates", len(results), "returned", len(reranked))
	return reranked
}
