package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequest_EnsureDefaults(t *testing.T) {
	req := ChatRequest{Message: "  hello  "}
	req.EnsureDefaults()

	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, DefaultNResults, req.NResults)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, DefaultTemperature, float64(*req.Temperature), 1e-6)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, DefaultMaxTokens, *req.MaxTokens)
}

func TestChatRequest_EnsureDefaultsKeepsExplicitValues(t *testing.T) {
	temp := float32(0.1)
	tokens := 42
	req := ChatRequest{Message: "hi", NResults: 7, Temperature: &temp, MaxTokens: &tokens}
	req.EnsureDefaults()

	assert.Equal(t, 7, req.NResults)
	assert.Equal(t, float32(0.1), *req.Temperature)
	assert.Equal(t, 42, *req.MaxTokens)
}

func TestChatRequest_Validate(t *testing.T) {
	valid := ChatRequest{Message: "hello", NResults: 5}
	valid.EnsureDefaults()
	assert.NoError(t, valid.Validate())

	empty := ChatRequest{Message: "   "}
	assert.Error(t, empty.Validate())

	long := ChatRequest{Message: strings.Repeat("x", MaxMessageLength+1)}
	long.EnsureDefaults()
	assert.Error(t, long.Validate())

	badN := ChatRequest{Message: "hi", NResults: 21}
	badN.EnsureDefaults()
	assert.Error(t, badN.Validate())

	badTemp := float32(3)
	badTempReq := ChatRequest{Message: "hi", Temperature: &badTemp}
	badTempReq.EnsureDefaults()
	assert.Error(t, badTempReq.Validate())

	badRole := ChatRequest{
		Message:             "hi",
		ConversationHistory: []ChatMessage{{Role: "wizard", Content: "abracadabra"}},
	}
	badRole.EnsureDefaults()
	assert.Error(t, badRole.Validate())
}

func TestConversation_EnsureFullText(t *testing.T) {
	conv := Conversation{Context: "how do I brew coffee", Response: "use a french press"}
	conv.EnsureFullText()
	assert.Equal(t, "Question: how do I brew coffee\nAnswer: use a french press", conv.FullText)

	// An existing full text is left alone.
	conv2 := Conversation{Context: "q", Response: "a", FullText: "already set"}
	conv2.EnsureFullText()
	assert.Equal(t, "already set", conv2.FullText)
}

func TestConversation_Validate(t *testing.T) {
	assert.NoError(t, (&Conversation{ID: 1, Context: "q", Response: "a"}).Validate())
	assert.Error(t, (&Conversation{ID: 1, Response: "a"}).Validate())
	assert.Error(t, (&Conversation{ID: 1, Context: "q"}).Validate())
}
