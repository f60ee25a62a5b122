package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// completionServer answers every chat completion with the given content.
func completionServer(t *testing.T, content string, observe func(r *http.Request, req chatCompletionRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if observe != nil {
			observe(r, req)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}, "finish_reason": "stop"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestNewLLMService_RequiresAPIKey(t *testing.T) {
	_, err := NewLLMService(Config{})
	assert.Error(t, err)
}

func TestGenerate_ReturnsContent(t *testing.T) {
	var captured chatCompletionRequest
	server := completionServer(t, "the answer", func(_ *http.Request, req chatCompletionRequest) {
		captured = req
	})
	defer server.Close()

	svc, err := NewLLMService(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	got, err := svc.Generate(context.Background(), []driven.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "question"},
	}, driven.GenerateOptions{MaxTokens: 50, Temperature: 0.2})
	require.NoError(t, err)

	assert.Equal(t, "the answer", got)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, 50, captured.MaxTokens)
	assert.False(t, captured.Stream)
}

func TestGenerate_AzureEndpoint(t *testing.T) {
	var path, apiKey string
	server := completionServer(t, "ok", func(r *http.Request, _ chatCompletionRequest) {
		path = r.URL.String()
		apiKey = r.Header.Get("api-key")
	})
	defer server.Close()

	svc, err := NewLLMService(Config{
		APIKey:          "azure-key",
		BaseURL:         server.URL,
		AzureDeployment: "gpt-prod",
	})
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), []driven.ChatMessage{
		{Role: "user", Content: "hi"},
	}, driven.GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt-prod/chat/completions?api-version="+DefaultAzureAPIVersion, path)
	assert.Equal(t, "azure-key", apiKey)
}

func TestGenerate_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc, err := NewLLMService(Config{APIKey: "test", BaseURL: server.URL, MaxRetries: 2})
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), []driven.ChatMessage{
		{Role: "user", Content: "hi"},
	}, driven.GenerateOptions{})

	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStream_EmitsTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, token := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", token)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	svc, err := NewLLMService(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	var tokens []string
	full, err := svc.Stream(context.Background(), []driven.ChatMessage{
		{Role: "user", Content: "hi"},
	}, driven.GenerateOptions{}, func(token string) {
		tokens = append(tokens, token)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", full)
	assert.Equal(t, []string{"Hel", "lo ", "world"}, tokens)
}

func TestCondense_FoldsTurnsIntoSummary(t *testing.T) {
	var prompt string
	server := completionServer(t, "updated summary", func(_ *http.Request, req chatCompletionRequest) {
		prompt = req.Messages[0].Content
	})
	defer server.Close()

	svc, err := NewLLMService(Config{APIKey: "test", BaseURL: server.URL})
	require.NoError(t, err)

	got, err := svc.Condense(context.Background(), "old summary", []driven.ChatMessage{
		{Role: "user", Content: "what about deadlines?"},
		{Role: "assistant", Content: "the deadline is March"},
	})
	require.NoError(t, err)

	assert.Equal(t, "updated summary", got)
	assert.True(t, strings.Contains(prompt, "old summary"))
	assert.True(t, strings.Contains(prompt, "what about deadlines?"))
	assert.True(t, strings.Contains(prompt, "the deadline is March"))
}

func TestCondense_NoEvictedTurns(t *testing.T) {
	svc, err := NewLLMService(Config{APIKey: "test"})
	require.NoError(t, err)

	got, err := svc.Condense(context.Background(), "unchanged", nil)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", got)
}
