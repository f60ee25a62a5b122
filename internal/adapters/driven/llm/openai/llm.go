// Package openai provides an LLM service adapter using the OpenAI API.
//
// Generation and streaming use the /chat/completions endpoint. Azure OpenAI
// is supported through deployment-scoped URLs, mirroring the embedding
// adapter.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultModel           = "gpt-4o-mini"
	DefaultTimeout         = 120 * time.Second
	DefaultMaxRetries      = 3
	DefaultAzureAPIVersion = "2024-02-01"

	// retryBaseDelay is the first backoff step; each retry doubles it.
	retryBaseDelay = 500 * time.Millisecond

	// condenseMaxTokens bounds the rolling summary size.
	condenseMaxTokens = 400
)

// Config holds configuration for the OpenAI LLM service.
type Config struct {
	// APIKey is the OpenAI or Azure API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// For Azure this is the resource endpoint.
	BaseURL string

	// Model is the LLM model to use (default: gpt-4o-mini).
	Model string

	// AzureDeployment selects Azure OpenAI mode when non-empty.
	AzureDeployment string

	// AzureAPIVersion is the api-version query parameter for Azure mode.
	AzureAPIVersion string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures (default: 3).
	MaxRetries int
}

// LLMService provides LLM operations using the OpenAI API.
type LLMService struct {
	client          *http.Client
	baseURL         string
	apiKey          string
	model           string
	azureDeployment string
	azureAPIVersion string
	maxRetries      int
	promptStore     driven.PromptStore
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model       string              `json:"model,omitempty"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// chatCompletionChunk is one server-sent event in a streaming response.
type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// NewLLMService creates a new OpenAI LLM service.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.AzureDeployment != "" && cfg.AzureAPIVersion == "" {
		cfg.AzureAPIVersion = DefaultAzureAPIVersion
	}

	return &LLMService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		azureDeployment: cfg.AzureDeployment,
		azureAPIVersion: cfg.AzureAPIVersion,
		maxRetries:      cfg.MaxRetries,
	}, nil
}

// Generate produces a completion for the assembled context.
func (s *LLMService) Generate(ctx context.Context, messages []driven.ChatMessage, opts driven.GenerateOptions) (string, error) {
	body, err := s.requestBody(messages, opts, false)
	if err != nil {
		return "", err
	}

	respBody, err := s.doWithRetry(ctx, body, func(resp *http.Response) ([]byte, error) {
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return "", err
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("openai error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai: no response choices returned")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Stream produces a completion incrementally, invoking emit for each token
// fragment as it arrives. Only the initial connection is retried; once the
// first token is emitted a failure surfaces directly.
func (s *LLMService) Stream(ctx context.Context, messages []driven.ChatMessage, opts driven.GenerateOptions, emit func(token string)) (string, error) {
	body, err := s.requestBody(messages, opts, true)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	_, err = s.doWithRetry(ctx, body, func(resp *http.Response) ([]byte, error) {
		full.Reset()
		return nil, s.consumeStream(resp.Body, emit, &full)
	})
	if err != nil {
		return "", err
	}

	return full.String(), nil
}

// consumeStream reads server-sent events and forwards content deltas.
func (s *LLMService) consumeStream(r io.Reader, emit func(token string), full *strings.Builder) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				full.WriteString(choice.Delta.Content)
				if emit != nil {
					emit(choice.Delta.Content)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// defaultCondensePrompt is the fallback prompt when no PromptStore is
// configured. The previous summary is replaced, never appended to, so it
// stays bounded.
const defaultCondensePrompt = `You maintain a running summary of a conversation.
Fold the new exchanges below into the existing summary. Keep facts, names,
numbers, and decisions. Drop pleasantries. Return ONLY the updated summary.

Existing summary:
%s

New exchanges:
%s

Updated summary:`

// Condense folds evicted conversation turns into a rolling summary.
func (s *LLMService) Condense(ctx context.Context, previousSummary string, evicted []driven.ChatMessage) (string, error) {
	if len(evicted) == 0 {
		return previousSummary, nil
	}

	if previousSummary == "" {
		previousSummary = "(none)"
	}

	var exchanges strings.Builder
	for _, msg := range evicted {
		fmt.Fprintf(&exchanges, "%s: %s\n", msg.Role, msg.Content)
	}

	promptTemplate := s.loadPrompt(driven.PromptCondense, defaultCondensePrompt)
	prompt := fmt.Sprintf(promptTemplate, previousSummary, exchanges.String())
	result, err := s.Generate(ctx, []driven.ChatMessage{
		{Role: "user", Content: prompt},
	}, driven.GenerateOptions{
		MaxTokens:   condenseMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("condense: %w", err)
	}

	return strings.TrimSpace(result), nil
}

// requestBody builds the /chat/completions request payload.
func (s *LLMService) requestBody(messages []driven.ChatMessage, opts driven.GenerateOptions, stream bool) ([]byte, error) {
	chatMessages := make([]chatCompletionMsg, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatCompletionMsg{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	reqBody := chatCompletionRequest{
		Messages: chatMessages,
		Stream:   stream,
	}
	// Azure routes by deployment; the model field belongs in the path.
	if s.azureDeployment == "" {
		reqBody.Model = s.model
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = opts.Temperature
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return jsonBody, nil
}

// doWithRetry posts to the chat completions endpoint, retrying transient
// failures up to the budget with doubling backoff and jitter. consume is
// called with a 200 response and owns reading the body.
func (s *LLMService) doWithRetry(ctx context.Context, jsonBody []byte, consume func(*http.Response) ([]byte, error)) ([]byte, error) {
	var (
		lastErr     error
		rateLimited bool
	)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(delay / 2)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			s.endpoint(),
			bytes.NewReader(jsonBody),
		)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.azureDeployment != "" {
			req.Header.Set("api-key", s.apiKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			body, err := consume(resp)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return body, nil
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			rateLimited = true
			lastErr = fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body))
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body))
		default:
			// Client errors are not retried.
			return nil, fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	if rateLimited {
		return nil, fmt.Errorf("%w: %w", domain.ErrRateLimited, lastErr)
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, lastErr)
}

// endpoint returns the chat completions URL for the configured mode.
func (s *LLMService) endpoint() string {
	if s.azureDeployment != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			s.baseURL, s.azureDeployment, s.azureAPIVersion)
	}
	return s.baseURL + "/chat/completions"
}

// loadPrompt loads a prompt from the store, falling back to the default if unavailable.
func (s *LLMService) loadPrompt(name, fallback string) string {
	if s.promptStore == nil {
		return fallback
	}
	prompt, err := s.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}

// SetPromptStore sets the prompt store for loading customisable prompts.
// If not set, the service uses hardcoded default prompts.
func (s *LLMService) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// ModelName returns the name of the model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Close releases resources.
func (s *LLMService) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
