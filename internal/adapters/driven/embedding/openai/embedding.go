// Package openai provides an embedding service adapter using the OpenAI API.
//
// The adapter also speaks Azure OpenAI: setting AzureDeployment switches the
// request path and auth header to the deployment-scoped form.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultModel           = "text-embedding-3-small"
	DefaultTimeout         = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultRequestsPerSec  = 5.0
	DefaultAzureAPIVersion = "2024-02-01"

	// retryBaseDelay is the first backoff step; each retry doubles it.
	retryBaseDelay = 500 * time.Millisecond
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI or Azure API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// For Azure this is the resource endpoint, e.g.
	// https://myresource.openai.azure.com.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// AzureDeployment selects Azure OpenAI mode when non-empty. Requests
	// go to /openai/deployments/{deployment}/embeddings and authenticate
	// with the api-key header instead of a bearer token.
	AzureDeployment string

	// AzureAPIVersion is the api-version query parameter for Azure mode.
	AzureAPIVersion string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// MaxRetries is the retry budget for transient failures (default: 3).
	MaxRetries int

	// RequestsPerSecond throttles outgoing requests (default: 5).
	RequestsPerSecond float64
}

// EmbeddingService generates embeddings using the OpenAI API.
type EmbeddingService struct {
	client          *http.Client
	limiter         *rate.Limiter
	baseURL         string
	apiKey          string
	model           string
	azureDeployment string
	azureAPIVersion string
	dimensions      int
	maxRetries      int
}

// embeddingRequest is the OpenAI API request format.
type embeddingRequest struct {
	Model      string   `json:"model,omitempty"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
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
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSec
	}
	if cfg.AzureDeployment != "" && cfg.AzureAPIVersion == "" {
		cfg.AzureAPIVersion = DefaultAzureAPIVersion
	}

	// Determine dimensions
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		var ok bool
		dimensions, ok = modelDimensions[cfg.Model]
		if !ok {
			dimensions = 1536 // Default fallback
		}
	}

	return &EmbeddingService{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:         rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		baseURL:         cfg.BaseURL,
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		azureDeployment: cfg.AzureDeployment,
		azureAPIVersion: cfg.AzureAPIVersion,
		dimensions:      dimensions,
		maxRetries:      cfg.MaxRetries,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("openai: no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts efficiently.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{
		Input: texts,
	}
	// Azure routes by deployment; the model field belongs in the path.
	if s.azureDeployment == "" {
		reqBody.Model = s.model
	}

	// Only include dimensions for text-embedding-3-* models
	if s.model == "text-embedding-3-small" || s.model == "text-embedding-3-large" {
		if s.dimensions > 0 {
			reqBody.Dimensions = s.dimensions
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := s.doWithRetry(ctx, jsonBody)
	if err != nil {
		return nil, err
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if embedResp.Error != nil {
		return nil, fmt.Errorf("openai error: %s", embedResp.Error.Message)
	}

	// Convert float64 to float32 and order by index
	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		embeddings[data.Index] = embedding
	}

	return embeddings, nil
}

// doWithRetry posts the request body to the embeddings endpoint, retrying
// transient failures up to the budget with doubling backoff and jitter.
func (s *EmbeddingService) doWithRetry(ctx context.Context, jsonBody []byte) ([]byte, error) {
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

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := s.post(ctx, jsonBody)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusTooManyRequests:
			rateLimited = true
			lastErr = fmt.Errorf("openai error (status %d): %s", status, string(body))
		case status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("openai error (status %d): %s", status, string(body))
		default:
			// Client errors are not retried.
			return nil, fmt.Errorf("openai error (status %d): %s", status, string(body))
		}
	}

	if rateLimited {
		return nil, fmt.Errorf("%w: %w", domain.ErrRateLimited, lastErr)
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, lastErr)
}

// post performs a single embeddings request.
func (s *EmbeddingService) post(ctx context.Context, jsonBody []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.endpoint(),
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.azureDeployment != "" {
		req.Header.Set("api-key", s.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// endpoint returns the embeddings URL for the configured mode.
func (s *EmbeddingService) endpoint() string {
	if s.azureDeployment != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			s.baseURL, s.azureDeployment, s.azureAPIVersion)
	}
	return s.baseURL + "/embeddings"
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
