package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrEmptyInput = errors.New("embedding input is empty")

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	// MaxRetries of zero keeps the client default; negative disables retries.
	MaxRetries int
}

// Embedder turns text into vectors through an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

func NewEmbedder(cfg EmbeddingConfig) (*Embedder, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != 0 {
		opts = append(opts, option.WithMaxRetries(max(cfg.MaxRetries, 0)))
	}

	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request. The result is index-aligned with
// texts and every vector has the configured dimension.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyInput
		}
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	result := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(texts) || result[idx] != nil {
			return nil, fmt.Errorf("embedding response has bad index %d", item.Index)
		}
		vec, err := e.toVector(item.Embedding)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", idx, err)
		}
		result[idx] = vec
	}
	return result, nil
}

func (e *Embedder) toVector(values []float64) ([]float32, error) {
	if len(values) != e.dimension {
		return nil, fmt.Errorf("got %d dimensions, want %d", len(values), e.dimension)
	}
	vec := make([]float32, len(values))
	var sumSquares float64
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("component %d is not finite", i)
		}
		vec[i] = float32(v)
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return nil, fmt.Errorf("zero-norm vector")
	}
	return vec, nil
}
