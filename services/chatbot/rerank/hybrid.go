// Copyright (C) 2026 Tidewater AI (engineering@tidewaterai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rerank

import (
	"context"
	"sort"
	"strconv"

	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
)

// rrfK is the reciprocal rank fusion constant. Larger values flatten the
// contribution difference between adjacent ranks.
const rrfK = 60

// HybridReranker fuses dense and sparse search runs with reciprocal rank
// fusion and optionally reranks the fused list with a cross-encoder.
type HybridReranker struct {
	reranker     *Reranker
	denseWeight  float64
	sparseWeight float64
}

// NewHybridReranker builds a fuser with the given run weights. Weights
// are normalized to sum to 1; non-positive pairs fall back to 0.5/0.5.
// The reranker may be nil.
func NewHybridReranker(reranker *Reranker, denseWeight, sparseWeight float64) *HybridReranker {
	total := denseWeight + sparseWeight
	if total <= 0 {
		denseWeight, sparseWeight, total = 0.5, 0.5, 1
	}
	return &HybridReranker{
		reranker:     reranker,
		denseWeight:  denseWeight / total,
		sparseWeight: sparseWeight / total,
	}
}

// CombineScores fuses two ranked runs with weighted reciprocal rank
// fusion.
//
// # Description
//
// Each document contributes weight/(k+rank) per run it appears in, with
// k=60. Documents are identified by conversation id; a document present
// in both runs keeps the dense run's payload. Output is sorted by fused
// score descending with ranks reassigned from 1. Ties keep first-seen
// order (dense run first), which makes fusion deterministic.
func (h *HybridReranker) CombineScores(denseResults, sparseResults []datatypes.SearchResult) []datatypes.SearchResult {
	combined := make(map[string]float64)
	resultMap := make(map[string]datatypes.SearchResult)
	var order []string // first-seen order for the stable tie-break

	for i, res := range denseResults {
		id := strconv.FormatInt(res.Conversation.ID, 10)
		if _, seen := combined[id]; !seen {
			order = append(order, id)
			resultMap[id] = res
		}
		combined[id] += h.denseWeight / float64(rrfK+i+1)
	}
	for i, res := range sparseResults {
		id := strconv.FormatInt(res.Conversation.ID, 10)
		if _, seen := combined[id]; !seen {
			order = append(order, id)
			resultMap[id] = res
		}
		combined[id] += h.sparseWeight / float64(rrfK+i+1)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return combined[order[i]] > combined[order[j]]
	})

	fused := make([]datatypes.SearchResult, 0, len(order))
	for i, id := range order {
		res := resultMap[id]
		res.Score = combined[id]
		res.Rank = i + 1
		res.Distance = nil
		fused = append(fused, res)
	}
	return fused
}

// SearchAndRerank fuses the two runs, truncates to rerankTopN before the
// expensive cross-encoder pass, reranks when one is available, and
// returns at most topK results.
func (h *HybridReranker) SearchAndRerank(ctx context.Context, query string,
	denseResults, sparseResults []datatypes.SearchResult, topK, rerankTopN int) []datatypes.SearchResult {

	combined := h.CombineScores(denseResults, sparseResults)
	if rerankTopN > 0 && len(combined) > rerankTopN {
		combined = combined[:rerankTopN]
	}

	if h.reranker != nil && h.reranker.Available() {
		return h.reranker.Rerank(ctx, query, combined, topK)
	}
	if topK > 0 && len(combined) > topK {
		combined = combined[:topK]
	}
	return combined
}
