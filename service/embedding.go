package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/casevault/backend/config"
	"github.com/casevault/backend/pkg/logger"
)

// embeddingAPI is the slice of the OpenAI client the embedding service needs.
// *openai.Client satisfies it; tests substitute a fake.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// EmbeddingClient turns text into fixed-dimension vectors via the configured
// embedding provider. Batch calls are sequential to respect provider rate
// limits, and any sub-batch failure aborts the whole call with no partial
// results.
type EmbeddingClient struct {
	api        embeddingAPI
	model      string
	dimensions int
	batchSize  int
	batchDelay time.Duration
	timeout    time.Duration
	maxRetries int
}

// NewEmbeddingClient creates an embedding client from configuration.
func NewEmbeddingClient(api embeddingAPI, cfg *config.OpenAIConfig) *EmbeddingClient {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EmbeddingClient{
		api:        api,
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		batchSize:  batchSize,
		batchDelay: cfg.BatchDelay(),
		timeout:    cfg.EmbedTimeout(),
		maxRetries: cfg.MaxRetries,
	}
}

// Dimensions returns the configured vector dimensionality.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// EmbedOne embeds a single text and returns the vector and the token count
// the provider reported.
func (c *EmbeddingClient) EmbedOne(ctx context.Context, text string) ([]float32, int, error) {
	if isBlank(text) {
		return nil, 0, fmt.Errorf("text: %w", ErrEmptyInput)
	}

	vectors, tokens, err := c.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, 0, err
	}
	return vectors[0], tokens, nil
}

// EmbedMany embeds texts in sequential sub-batches of at most the configured
// batch size, returning vectors in input order and the total token count.
// Every input is validated up front; offending indices are all reported at
// once. If any sub-batch fails the whole call fails and nothing is returned.
func (c *EmbeddingClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, fmt.Errorf("texts: %w", ErrEmptyInput)
	}

	var blank []int
	for i, t := range texts {
		if isBlank(t) {
			blank = append(blank, i)
		}
	}
	if len(blank) > 0 {
		return nil, 0, fmt.Errorf("texts at indices %v are empty: %w", blank, ErrEmptyInput)
	}

	vectors := make([][]float32, 0, len(texts))
	totalTokens := 0

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchVectors, tokens, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, 0, err
		}
		vectors = append(vectors, batchVectors...)
		totalTokens += tokens

		// Brief pause between sub-batches for upstream rate limits.
		if end < len(texts) && c.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(c.batchDelay):
			}
		}
	}

	return vectors, totalTokens, nil
}

// embedBatch performs one provider call with retries, re-ordering the
// response by the provider's returned index so output order always matches
// input order.
func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err = c.api.CreateEmbeddings(callCtx, req)
		cancel()
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < c.maxRetries {
			logger.Warn(ctx, "embedding call failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}
	}
	if err != nil {
		return nil, 0, &DependencyError{Dependency: "embedding", Err: err}
	}

	if len(resp.Data) != len(texts) {
		return nil, 0, &DependencyError{
			Dependency: "embedding",
			Err:        fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, 0, &DependencyError{
				Dependency: "embedding",
				Err:        fmt.Errorf("provider returned out-of-range index %d", item.Index),
			}
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, 0, &DependencyError{
				Dependency: "embedding",
				Err:        fmt.Errorf("provider returned no embedding for index %d", i),
			}
		}
	}

	return vectors, resp.Usage.TotalTokens, nil
}

// retryDelay is an exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
