package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIClient talks to an OpenAI-compatible API for completions and
// embeddings. All calls go through the circuit breaker.
type OpenAIClient struct {
	baseURL        string
	apiKey         string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	embeddingModel string
	dimension      int
}

// OpenAIConfig holds client configuration.
type OpenAIConfig struct {
	// BaseURL is the API base (default: https://api.openai.com/v1).
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// Model is the chat model.
	Model string

	// EmbeddingModel is the embedding model.
	EmbeddingModel string

	// Dimension is the instance embedding dimension.
	Dimension int

	// Timeout bounds each request (default: 60s).
	Timeout time.Duration

	// Breaker configures the circuit breaker and rate limiter.
	Breaker CircuitBreakerConfig
}

var _ Completer = (*OpenAIClient)(nil)
var _ Embedder = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI-compatible client.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:        config.BaseURL,
		apiKey:         config.APIKey,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreakerWithConfig("openai", config.Breaker),
		model:          config.Model,
		embeddingModel: config.EmbeddingModel,
		dimension:      config.Dimension,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Complete runs a single-string completion as a one-message chat.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		body, err := json.Marshal(chatRequest{
			Model:    c.model,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
		}

		var resp chatResponse
		if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: empty choices", ErrMalformed)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Vector embeds a single text.
func (c *OpenAIClient) Vector(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Vectors(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Vectors embeds a batch in one call.
func (c *OpenAIClient) Vectors(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		body, err := json.Marshal(embeddingsRequest{Model: c.embeddingModel, Input: texts})
		if err != nil {
			return nil, fmt.Errorf("openai: failed to marshal embed request: %w", err)
		}

		var resp embeddingsResponse
		if err := c.post(ctx, "/embeddings", body, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
				ErrMalformed, len(resp.Data), len(texts))
		}

		vectors := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(vectors) {
				return nil, fmt.Errorf("%w: embedding index %d out of range", ErrMalformed, d.Index)
			}
			if c.dimension > 0 && len(d.Embedding) != c.dimension {
				return nil, fmt.Errorf("%w: embedding dimension %d, want %d",
					ErrMalformed, len(d.Embedding), c.dimension)
			}
			vectors[d.Index] = d.Embedding
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

// Dimension returns the configured embedding dimension.
func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

// Model returns the chat model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
