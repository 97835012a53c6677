package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
)

// fakeEncoder maps document text to a fixed score.
type fakeEncoder struct {
	scores    map[string]float64
	available bool
	err       error
	calls     int
}

func (f *fakeEncoder) ScorePairs(_ context.Context, _ string, documents []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(documents))
	for i, doc := range documents {
		out[i] = f.scores[doc]
	}
	return out, nil
}

func (f *fakeEncoder) Available() bool   { return f.available }
func (f *fakeEncoder) ModelName() string { return "fake-cross-encoder" }

func makeResults(contexts ...string) []datatypes.SearchResult {
	out := make([]datatypes.SearchResult, len(contexts))
	for i, c := range contexts {
		out[i] = datatypes.SearchResult{
			Conversation: datatypes.Conversation{ID: int64(i + 1), Context: c, Response: "r"},
			Score:        0.9 - float64(i)*0.1,
			Rank:         i + 1,
		}
	}
	return out
}

func TestReranker_ReordersByEncoderScore(t *testing.T) {
	enc := &fakeEncoder{
		available: true,
		scores:    map[string]float64{"a": 0.1, "b": 2.5, "c": 1.0},
	}
	r := NewReranker(enc)

	results := r.Rerank(context.Background(), "q", makeResults("a", "b", "c"), 0)

	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].Conversation.Context)
	assert.Equal(t, "c", results[1].Conversation.Context)
	assert.Equal(t, "a", results[2].Conversation.Context)

	assert.Equal(t, 2.5, results[0].Score, "scores replaced with encoder output")
	assert.Equal(t, []int{1, 2, 3}, []int{results[0].Rank, results[1].Rank, results[2].Rank})
}

func TestReranker_NegativeScoresNotClamped(t *testing.T) {
	enc := &fakeEncoder{
		available: true,
		scores:    map[string]float64{"a": -4.2, "b": -1.1},
	}
	r := NewReranker(enc)

	results := r.Rerank(context.Background(), "q", makeResults("a", "b"), 0)
	assert.Equal(t, -1.1, results[0].Score)
	assert.Equal(t, -4.2, results[1].Score)
}

func TestReranker_StableOnEqualScores(t *testing.T) {
	enc := &fakeEncoder{
		available: true,
		scores:    map[string]float64{"a": 1.0, "b": 1.0, "c": 1.0},
	}
	r := NewReranker(enc)

	results := r.Rerank(context.Background(), "q", makeResults("a", "b", "c"), 0)
	assert.Equal(t, "a", results[0].Conversation.Context, "ties keep incoming order")
	assert.Equal(t, "b", results[1].Conversation.Context)
	assert.Equal(t, "c", results[2].Conversation.Context)
}

func TestReranker_TopKTruncation(t *testing.T) {
	enc := &fakeEncoder{
		available: true,
		scores:    map[string]float64{"a": 3, "b": 2, "c": 1},
	}
	r := NewReranker(enc)

	results := r.Rerank(context.Background(), "q", makeResults("a", "b", "c"), 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Conversation.Context)
}

func TestReranker_UnavailablePassthrough(t *testing.T) {
	enc := &fakeEncoder{available: false}
	r := NewReranker(enc)

	input := makeResults("a", "b")
	results := r.Rerank(context.Background(), "q", input, 1)

	assert.Equal(t, input, results, "unavailable encoder passes results through untruncated")
	assert.Zero(t, enc.calls)
}

func TestReranker_ErrorPassthrough(t *testing.T) {
	enc := &fakeEncoder{available: true, err: errors.New("sidecar down")}
	r := NewReranker(enc)

	input := makeResults("a", "b")
	results := r.Rerank(context.Background(), "q", input, 0)
	assert.Equal(t, input, results, "scoring failure returns original ordering")
}

func TestReranker_NilEncoder(t *testing.T) {
	r := NewReranker(nil)
	assert.False(t, r.Available())
	assert.Empty(t, r.ModelName())

	input := makeResults("a")
	assert.Equal(t, input, r.Rerank(context.Background(), "q", input, 0))
}

func TestReranker_EmptyInput(t *testing.T) {
	enc := &fakeEncoder{available: true}
	r := NewReranker(enc)
	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 5))
	assert.Zero(t, enc.calls)
}

func TestReranker_DoesNotMutateInput(t *testing.T) {
	enc := &fakeEncoder{
		available: true,
		scores:    map[string]float64{"a": 0.1, "b": 2.0},
	}
	r := NewReranker(enc)

	input := makeResults("a", "b")
	r.Rerank(context.Background(), "q", input, 0)

	assert.Equal(t, "a", input[0].Conversation.Context)
	assert.Equal(t, 0.9, input[0].Score, "caller's slice keeps original scores")
}
