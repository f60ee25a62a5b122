package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// embedServer returns a test server that answers every request with one
// embedding per input text.
func embedServer(t *testing.T, dim int, observe func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observe != nil {
			observe(r)
		}

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]any{"data": []map[string]any{}}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float64, dim)
			vec[0] = 1
			data[i] = map[string]any{"embedding": vec, "index": i}
		}
		resp["data"] = data
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewEmbeddingService_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbeddingService(Config{})
	assert.Error(t, err)
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	svc, err := NewEmbeddingService(Config{APIKey: "test"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, svc.ModelName())
	assert.Equal(t, 1536, svc.Dimensions())
}

func TestNewEmbeddingService_LargeModelDimensions(t *testing.T) {
	svc, err := NewEmbeddingService(Config{APIKey: "test", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, svc.Dimensions())
}

func TestEmbedBatch_OrderedByIndex(t *testing.T) {
	server := embedServer(t, 4, nil)
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "test",
		BaseURL:           server.URL,
		Dimensions:        4,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	embeddings, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	for _, vec := range embeddings {
		assert.Len(t, vec, 4)
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	svc, err := NewEmbeddingService(Config{APIKey: "test"})
	require.NoError(t, err)

	embeddings, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestEmbedBatch_BearerAuth(t *testing.T) {
	var auth string
	server := embedServer(t, 4, func(r *http.Request) {
		auth = r.Header.Get("Authorization")
	})
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "sk-test",
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestEmbedBatch_AzureMode(t *testing.T) {
	var path, apiKey, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.String()
		apiKey = r.Header.Get("api-key")
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		body = req.Model
		resp := map[string]any{"data": []map[string]any{
			{"embedding": []float64{1, 0}, "index": 0},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "azure-key",
		BaseURL:           server.URL,
		Model:             "text-embedding-ada-002",
		AzureDeployment:   "embed-prod",
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/embed-prod/embeddings?api-version="+DefaultAzureAPIVersion, path)
	assert.Equal(t, "azure-key", apiKey)
	// Azure routes by deployment, so the body carries no model.
	assert.Empty(t, body)
}

func TestEmbedBatch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := map[string]any{"data": []map[string]any{
			{"embedding": []float64{1, 0}, "index": 0},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "test",
		BaseURL:           server.URL,
		MaxRetries:        3,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedBatch_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "test",
		BaseURL:           server.URL,
		MaxRetries:        1,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestEmbedBatch_RateLimitSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "test",
		BaseURL:           server.URL,
		MaxRetries:        1,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestEmbedBatch_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(Config{
		APIKey:            "bad",
		BaseURL:           server.URL,
		MaxRetries:        3,
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
