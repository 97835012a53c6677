// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore persists and searches indexed conversations in
// Weaviate.
//
// The Conversation class stores one question/answer pair per object with
// an externally computed embedding (vectorizer "none"). Dense retrieval
// runs nearVector with a certainty floor, sparse retrieval runs BM25 over
// the text fields, and both return the shared SearchResult type.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var storeTracer = otel.Tracer("ragchat.vectorstore")

// ClassName is the Weaviate class holding indexed conversations.
const ClassName = "Conversation"

// batchSize bounds one batch-insert call during indexing.
const batchSize = 100

// Store wraps a Weaviate client for the Conversation class.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client pools connections.
type Store struct {
	client *weaviate.Client
}

// NewStore creates a Store over an existing Weaviate client.
func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// Connect builds a Weaviate client for host (e.g. "localhost:8080") and
// wraps it in a Store.
func Connect(host, scheme string) (*Store, error) {
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return NewStore(client), nil
}

// conversationFields are the properties retrieved by every Get query.
func conversationFields(additional ...graphql.Field) []graphql.Field {
	return []graphql.Field{
		{Name: "conversation_id"},
		{Name: "context"},
		{Name: "response"},
		{Name: "follow_up"},
		{Name: "full_text"},
		{Name: "_additional", Fields: additional},
	}
}

// SearchDense retrieves the conversations nearest to vector.
//
// # Description
//
// Runs a nearVector query with certainty reporting. minScore is applied
// as the certainty floor inside Weaviate, so low-similarity hits never
// leave the database. Results come back ranked from 1 with certainty as
// the score and 1-certainty as the distance.
func (s *Store) SearchDense(ctx context.Context, vector []float32, limit int, minScore float64) ([]datatypes.SearchResult, error) {
	ctx, span := storeTracer.Start(ctx, "Store.SearchDense")
	defer span.End()
	span.SetAttributes(
		attribute.Int("search.limit", limit),
		attribute.Float64("search.min_score", minScore),
	)

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)
	if minScore > 0 {
		nearVector = nearVector.WithCertainty(float32(minScore))
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(conversationFields(graphql.Field{Name: "certainty"})...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate dense search failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[conversationQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse dense search results: %w", err)
	}

	results := make([]datatypes.SearchResult, 0, len(parsed.Get.Conversation))
	for i, hit := range parsed.Get.Conversation {
		results = append(results, hit.toSearchResult(i+1))
	}
	span.SetAttributes(attribute.Int("search.num_results", len(results)))
	return results, nil
}

// SearchSparse retrieves conversations by BM25 keyword match over the
// text fields.
func (s *Store) SearchSparse(ctx context.Context, query string, limit int) ([]datatypes.SearchResult, error) {
	ctx, span := storeTracer.Start(ctx, "Store.SearchSparse")
	defer span.End()
	span.SetAttributes(attribute.Int("search.limit", limit))

	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("context", "response", "full_text")

	resp, err := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(conversationFields(graphql.Field{Name: "score"})...).
		WithBM25(bm25).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("weaviate bm25 search failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[conversationQueryResponse](resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to parse bm25 search results: %w", err)
	}

	results := make([]datatypes.SearchResult, 0, len(parsed.Get.Conversation))
	for i, hit := range parsed.Get.Conversation {
		results = append(results, hit.toSearchResult(i+1))
	}
	span.SetAttributes(attribute.Int("search.num_results", len(results)))
	return results, nil
}

// Count returns the number of indexed conversations via an Aggregate
// meta query.
func (s *Store) Count(ctx context.Context) (int64, error) {
	resp, err := s.client.GraphQL().Aggregate().
		WithClassName(ClassName).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[conversationAggregateResponse](resp)
	if err != nil {
		return 0, fmt.Errorf("failed to parse aggregate results: %w", err)
	}
	if len(parsed.Aggregate.Conversation) == 0 {
		return 0, nil
	}
	return parsed.Aggregate.Conversation[0].Meta.Count, nil
}

// Healthy reports whether Weaviate is reachable and ready.
func (s *Store) Healthy(ctx context.Context) bool {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	return err == nil && ready
}

// EnsureSchema creates the Conversation class when it does not exist.
// Idempotent; safe to run on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.client.Schema().ClassGetter().WithClassName(ClassName).Do(ctx)
	if err == nil {
		slog.Debug("Conversation schema already exists")
		return nil
	}

	class := &models.Class{
		Class:       ClassName,
		Description: "Indexed question/answer pairs from the source corpus",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:        "conversation_id",
				DataType:    []string{"int"},
				Description: "Corpus-unique conversation identifier",
			},
			{
				Name:         "context",
				DataType:     []string{"text"},
				Description:  "The question or opening message",
				Tokenization: "word",
			},
			{
				Name:         "response",
				DataType:     []string{"text"},
				Description:  "The answer given to the context",
				Tokenization: "word",
			},
			{
				Name:         "follow_up",
				DataType:     []string{"text"},
				Description:  "Optional thread continuation",
				Tokenization: "word",
			},
			{
				Name:         "full_text",
				DataType:     []string{"text"},
				Description:  "Combined text used for embedding",
				Tokenization: "word",
			},
		},
	}

	slog.Info("Creating Conversation schema")
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("creating Conversation schema: %w", err)
	}
	return nil
}

// AddConversations batch-inserts conversations with their embeddings.
// Returns the number successfully indexed.
func (s *Store) AddConversations(ctx context.Context, conversations []datatypes.Conversation) (int, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddConversations")
	defer span.End()
	span.SetAttributes(attribute.Int("index.num_conversations", len(conversations)))

	indexed := 0
	for start := 0; start < len(conversations); start += batchSize {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		end := start + batchSize
		if end > len(conversations) {
			end = len(conversations)
		}
		batch := conversations[start:end]

		objects := make([]*models.Object, len(batch))
		for i := range batch {
			conv := &batch[i]
			if len(conv.Embedding) == 0 {
				return indexed, fmt.Errorf("conversation %d has no embedding", conv.ID)
			}
			conv.EnsureFullText()
			objects[i] = &models.Object{
				Class: ClassName,
				Properties: map[string]interface{}{
					"conversation_id": conv.ID,
					"context":         conv.Context,
					"response":        conv.Response,
					"follow_up":       conv.FollowUp,
					"full_text":       conv.FullText,
				},
				Vector: models.C11yVector(conv.Embedding),
			}
		}

		result, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return indexed, fmt.Errorf("batch import failed: %w", err)
		}
		for _, obj := range result {
			if obj.Result != nil && obj.Result.Errors == nil {
				indexed++
			}
		}
		slog.Info("Indexed conversation batch", "batch", len(batch), "total_indexed", indexed)
	}
	return indexed, nil
}
