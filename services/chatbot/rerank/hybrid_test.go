package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
)

func resultWithID(id int64, context string) datatypes.SearchResult {
	return datatypes.SearchResult{
		Conversation: datatypes.Conversation{ID: id, Context: context, Response: "r"},
		Score:        0.5,
		Rank:         1,
	}
}

func TestCombineScores_DocInBothRunsWins(t *testing.T) {
	h := NewHybridReranker(nil, 0.5, 0.5)

	dense := []datatypes.SearchResult{
		resultWithID(1, "only dense"),
		resultWithID(2, "shared"),
	}
	sparse := []datatypes.SearchResult{
		resultWithID(2, "shared"),
		resultWithID(3, "only sparse"),
	}

	fused := h.CombineScores(dense, sparse)
	require.Len(t, fused, 3)
	assert.Equal(t, int64(2), fused[0].Conversation.ID,
		"document in both runs accumulates both contributions")
	assert.Equal(t, []int{1, 2, 3}, []int{fused[0].Rank, fused[1].Rank, fused[2].Rank})
}

func TestCombineScores_RRFValues(t *testing.T) {
	h := NewHybridReranker(nil, 0.5, 0.5)

	dense := []datatypes.SearchResult{resultWithID(1, "a")}
	sparse := []datatypes.SearchResult{resultWithID(1, "a")}

	fused := h.CombineScores(dense, sparse)
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.5/61+0.5/61, fused[0].Score, 1e-12)
}

func TestCombineScores_SymmetricRunsTieBreakFirstSeen(t *testing.T) {
	// Runs [A,B,C] and [B,C,A]: A sums ranks 1+3, B sums 2+1, C sums 3+2.
	// B wins, then C, then A.
	h := NewHybridReranker(nil, 0.5, 0.5)

	dense := []datatypes.SearchResult{
		resultWithID(1, "A"), resultWithID(2, "B"), resultWithID(3, "C"),
	}
	sparse := []datatypes.SearchResult{
		resultWithID(2, "B"), resultWithID(3, "C"), resultWithID(1, "A"),
	}

	fused := h.CombineScores(dense, sparse)
	require.Len(t, fused, 3)
	assert.Equal(t, "B", fused[0].Conversation.Context)
	assert.Equal(t, "C", fused[1].Conversation.Context)
	assert.Equal(t, "A", fused[2].Conversation.Context)
}

func TestCombineScores_EqualScoresKeepFirstSeenOrder(t *testing.T) {
	// Disjoint runs with equal weights: dense rank 1 and sparse rank 1
	// tie exactly. The dense document was seen first and must stay ahead.
	h := NewHybridReranker(nil, 0.5, 0.5)

	dense := []datatypes.SearchResult{resultWithID(1, "dense-first")}
	sparse := []datatypes.SearchResult{resultWithID(2, "sparse-first")}

	fused := h.CombineScores(dense, sparse)
	require.Len(t, fused, 2)
	assert.Equal(t, "dense-first", fused[0].Conversation.Context)
	assert.Equal(t, "sparse-first", fused[1].Conversation.Context)
}

func TestCombineScores_WeightNormalization(t *testing.T) {
	h := NewHybridReranker(nil, 3, 1)
	assert.InDelta(t, 0.75, h.denseWeight, 1e-12)
	assert.InDelta(t, 0.25, h.sparseWeight, 1e-12)

	// Degenerate weights fall back to an even split.
	h = NewHybridReranker(nil, 0, 0)
	assert.InDelta(t, 0.5, h.denseWeight, 1e-12)
	assert.InDelta(t, 0.5, h.sparseWeight, 1e-12)
}

func TestSearchAndRerank_WithoutEncoder(t *testing.T) {
	h := NewHybridReranker(nil, 0.5, 0.5)

	dense := []datatypes.SearchResult{
		resultWithID(1, "a"), resultWithID(2, "b"), resultWithID(3, "c"),
	}
	out := h.SearchAndRerank(context.Background(), "q", dense, nil, 2, 50)
	require.Len(t, out, 2, "topK applies even without an encoder")
	assert.Equal(t, int64(1), out[0].Conversation.ID)
}

func TestSearchAndRerank_TruncatesBeforeEncoding(t *testing.T) {
	enc := &fakeEncoder{available: true, scores: map[string]float64{}}
	h := NewHybridReranker(NewReranker(enc), 0.5, 0.5)

	var dense []datatypes.SearchResult
	for i := int64(1); i <= 10; i++ {
		dense = append(dense, resultWithID(i, "doc"))
	}

	out := h.SearchAndRerank(context.Background(), "q", dense, nil, 2, 4)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, enc.calls)
}
