// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chat service.
//
// # Description
//
// Metrics cover the retrieval pipeline end to end:
//   - Request counters (by method and status)
//   - Request duration histograms
//   - Cache hit/miss counters
//   - Rerank latency
//   - Sources retrieved per request
//
// Metrics are exposed via the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "ragchat"

// Subsystem for chat pipeline metrics
const chatSubsystem = "chat"

// ChatMetrics holds the Prometheus metrics for chat request handling.
//
// Initialize once at startup via InitMetrics(); promauto registers every
// metric with the default registry, so a second call panics.
type ChatMetrics struct {
	// RequestsTotal counts chat requests by generation method and outcome.
	// Labels: method (llm, simple), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures total request duration.
	// Labels: method (llm, simple)
	RequestDurationSeconds *prometheus.HistogramVec

	// CacheEventsTotal counts response cache lookups.
	// Labels: result (hit, miss)
	CacheEventsTotal *prometheus.CounterVec

	// RerankDurationSeconds measures cross-encoder rerank latency.
	RerankDurationSeconds prometheus.Histogram

	// SourcesRetrieved measures how many sources survive filtering and
	// reranking per request.
	SourcesRetrieved prometheus.Histogram

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// InitMetrics creates and registers all chat metrics.
func InitMetrics() *ChatMetrics {
	return &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total chat requests by generation method and status",
			},
			[]string{"method", "status"},
		),
		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end chat request duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		CacheEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "cache_events_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),
		RerankDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "rerank_duration_seconds",
				Help:      "Cross-encoder rerank latency",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		SourcesRetrieved: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "sources_retrieved",
				Help:      "Sources returned per request after filtering and reranking",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 15, 20},
			},
		),
		RateLimitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
	}
}

// RecordRequest records one completed chat request.
func (m *ChatMetrics) RecordRequest(method string, success bool, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(method).Observe(seconds)
}

// RecordCacheEvent records a response cache hit or miss.
func (m *ChatMetrics) RecordCacheEvent(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheEventsTotal.WithLabelValues(result).Inc()
}

// RecordRerank records the latency of one rerank pass.
func (m *ChatMetrics) RecordRerank(seconds float64) {
	if m == nil {
		return
	}
	m.RerankDurationSeconds.Observe(seconds)
}

// RecordSources records how many sources a request returned.
func (m *ChatMetrics) RecordSources(n int) {
	if m == nil {
		return
	}
	m.SourcesRetrieved.Observe(float64(n))
}

// RecordRateLimited records a rate-limiter rejection.
func (m *ChatMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}
