package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/boswell-ai/boswell/internal/storage"
)

// OllamaClient talks to a local Ollama server for completions and
// embeddings. All calls go through the circuit breaker.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	embeddingModel string
	dimension      int
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the Ollama API base (default: http://localhost:11434).
	BaseURL string

	// Model is the completion model.
	Model string

	// EmbeddingModel is the embedding model.
	EmbeddingModel string

	// Dimension is the instance embedding dimension the model produces.
	Dimension int

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration

	// Breaker configures the circuit breaker and rate limiter.
	Breaker CircuitBreakerConfig
}

var _ Completer = (*OllamaClient)(nil)
var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &OllamaClient{
		baseURL:        config.BaseURL,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreakerWithConfig("ollama", config.Breaker),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		dimension:      config.Dimension,
		timeout:        config.Timeout,
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Complete runs a single-string completion.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	var resp ollamaGenerateResponse
	if err := c.post(ctx, "/api/generate", body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Vector embeds a single text.
func (c *OllamaClient) Vector(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Vectors(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Vectors embeds a batch in one call.
func (c *OllamaClient) Vectors(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		body, err := json.Marshal(ollamaEmbedRequest{Model: c.embeddingModel, Input: texts})
		if err != nil {
			return nil, fmt.Errorf("ollama: failed to marshal embed request: %w", err)
		}
		var resp ollamaEmbedResponse
		if err := c.post(ctx, "/api/embed", body, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
				ErrMalformed, len(resp.Embeddings), len(texts))
		}
		for _, v := range resp.Embeddings {
			if c.dimension > 0 && len(v) != c.dimension {
				return nil, fmt.Errorf("%w: embedding dimension %d, want %d",
					ErrMalformed, len(v), c.dimension)
			}
		}
		return resp.Embeddings, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

// Dimension returns the configured embedding dimension.
func (c *OllamaClient) Dimension() int {
	return c.dimension
}

// Model returns the completion model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// HealthCheck verifies the server responds.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama health status %d", storage.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return mapTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return mapStatusError(resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
