package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewaterai/ragchat/services/chatbot/cache"
	"github.com/tidewaterai/ragchat/services/chatbot/datatypes"
	"github.com/tidewaterai/ragchat/services/chatbot/memory"
	"github.com/tidewaterai/ragchat/services/chatbot/ratelimit"
	"github.com/tidewaterai/ragchat/services/chatbot/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (stubEmbedder) Healthy(ctx context.Context) bool { return true }

type stubStore struct{}

func (stubStore) SearchDense(ctx context.Context, vector []float32, limit int, minScore float64) ([]datatypes.SearchResult, error) {
	return nil, nil
}

func (stubStore) SearchSparse(ctx context.Context, query string, limit int) ([]datatypes.SearchResult, error) {
	return nil, nil
}

func (stubStore) Count(ctx context.Context) (int64, error) { return 0, nil }
func (stubStore) Healthy(ctx context.Context) bool         { return true }

func newRouter(limiter *ratelimit.Limiter) *gin.Engine {
	svc := services.NewChatService(services.Config{}, services.Deps{
		Embedder: stubEmbedder{},
		Store:    stubStore{},
		Cache:    cache.NewWithBackend(cache.NewInMemoryBackend(10, time.Hour), true),
		Memory:   memory.NewSummarizing(memory.New(memory.Config{}), nil, 10, 5),
		Limiter:  limiter,
	})

	router := gin.New()
	SetupRoutes(router, svc, nil)
	return router
}

func TestSetupRoutes_RegistersSurface(t *testing.T) {
	router := newRouter(nil)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/chat"},
		{"GET", "/v1/stats"},
		{"GET", "/v1/sessions/:sessionId/history"},
		{"DELETE", "/v1/sessions/:sessionId"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", want.method, want.path)
	}
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		Enabled:           true,
	})
	router := newRouter(limiter)

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		req.Header.Set("X-API-Key", "client-a")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := get()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "60", first.Header().Get("X-RateLimit-Limit"))

	second := get()
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_HealthExemptFromBudget(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		Enabled:           true,
	})
	router := newRouter(limiter)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		Enabled:           true,
	})
	router := newRouter(limiter)

	get := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	require.Equal(t, http.StatusOK, get("client-a"))
	require.Equal(t, http.StatusTooManyRequests, get("client-a"))
	assert.Equal(t, http.StatusOK, get("client-b"))
}
