// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse converts Weaviate's dynamic GraphQL response into a
// typed struct via a marshal/unmarshal round trip. The target type's json
// tags must match the response shape; mismatched fields decode to zero
// values rather than errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql query failed: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// conversationHit is one object of the Conversation class as returned by
// Get queries. The _additional block carries certainty for nearVector
// queries and score (a stringified float) for bm25 queries.
type conversationHit struct {
	ConversationID int64  `json:"conversation_id"`
	Context        string `json:"context"`
	Response       string `json:"response"`
	FollowUp       string `json:"follow_up"`
	FullText       string `json:"full_text"`
	Additional     struct {
		Certainty *float64 `json:"certainty"`
		Score     string   `json:"score"`
	} `json:"_additional"`
}

// conversationQueryResponse is the Get response shape for the
// Conversation class.
type conversationQueryResponse struct {
	Get struct {
		Conversation []conversationHit `json:"Conversation"`
	} `json:"Get"`
}

// conversationAggregateResponse is the Aggregate meta-count response
// shape for the Conversation class.
type conversationAggregateResponse struct {
	Aggregate struct {
		Conversation []struct {
			Meta struct {
				Count int64 `json:"count"`
			} `json:"meta"`
		} `json:"Conversation"`
	} `json:"Aggregate"`
}

// toSearchResult converts a hit into a ranked SearchResult. Dense hits
// score by certainty with distance = 1 - certainty; sparse hits score by
// the parsed BM25 score with no distance.
func (h conversationHit) toSearchResult(rank int) datatypes.SearchResult {
	conv := datatypes.Conversation{
		ID:       h.ConversationID,
		Context:  h.Context,
		Response: h.Response,
		FollowUp: h.FollowUp,
		FullText: h.FullText,
	}
	conv.EnsureFullText()

	result := datatypes.SearchResult{Conversation: conv, Rank: rank}
	if h.Additional.Certainty != nil {
		result.Score = *h.Additional.Certainty
		distance := 1 - *h.Additional.Certainty
		result.Distance = &distance
	} else if h.Additional.Score != "" {
		if score, err := strconv.ParseFloat(h.Additional.Score, 64); err == nil {
			result.Score = score
		}
	}
	return result
}
