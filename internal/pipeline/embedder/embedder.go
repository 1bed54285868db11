package embedder

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"DocFlow/internal/models"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/pkg/logger"
	"DocFlow/pkg/retry"
)

const (
	// maxTokensPerRequest is the provider's token limit per text.
	maxTokensPerRequest = 8191
	// charsPerToken is the character proxy used to stay under the token
	// budget without running a tokenizer.
	charsPerToken = 4
)

// Config tunes batching behaviour.
type Config struct {
	// BatchSize is the number of texts per provider request, default 100.
	BatchSize int
	// MaxConcurrentBatches bounds batches in flight, default 4.
	MaxConcurrentBatches int
}

// Embedder derives the embeddable text of each chunk and batches requests to
// the embedding provider. Batches are independent: each is retried on its
// own, and a batch that exhausts its retries fails the whole call rather than
// silently dropping chunks.
type Embedder struct {
	model  interfaces.EmbeddingModel
	cfg    Config
	policy retry.Policy
	log    *logger.Logger
}

// New creates an Embedder. Zero config values fall back to defaults.
func New(model interfaces.EmbeddingModel, cfg Config, policy retry.Policy, log *logger.Logger) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 4
	}
	return &Embedder{model: model, cfg: cfg, policy: policy, log: log}
}

// EmbeddingText returns the canonical embeddable string of a chunk: the
// section context followed by the content, or the generated description for
// image chunks.
func EmbeddingText(chunk *models.ChunkData) string {
	var body string
	if chunk.ChunkType == models.ChunkTypeImage && chunk.ImageSummary != "" {
		body = "Image Description: " + chunk.ImageSummary
	} else {
		body = chunk.Content
	}
	if chunk.SectionTitle == "" {
		return body
	}
	return fmt.Sprintf("Section: %s\n\n%s", chunk.SectionTitle, body)
}

// EmbedChunks embeds the unified chunk sequence and returns one vector per
// chunk, in chunk order.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []*models.ChunkData) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = truncateForBudget(EmbeddingText(chunk))
	}
	return e.EmbedTexts(ctx, texts)
}

// EmbedTexts embeds the given texts in independent fixed-size batches,
// issued concurrently up to the configured limit.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, len(texts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentBatches)

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		start := start
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		g.Go(func() error {
			var result [][]float32
			attempts, err := e.policy.Do(gCtx, func(ctx context.Context) error {
				var callErr error
				result, callErr = e.model.EmbedBatch(ctx, batch)
				return callErr
			})
			if err != nil {
				return &models.ProviderError{Provider: "embedding", Attempts: attempts, Err: err}
			}
			if len(result) != len(batch) {
				return &models.ProviderError{
					Provider: "embedding",
					Attempts: attempts,
					Err:      fmt.Errorf("provider returned %d vectors for %d texts", len(result), len(batch)),
				}
			}
			copy(embeddings[start:end], result)
			if e.log != nil {
				e.log.WithPayload(map[string]interface{}{
					"batch_start": start,
					"batch_size":  len(batch),
				}).Debug("Batch embedded")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.log != nil {
		e.log.WithPayload(map[string]interface{}{"total": len(embeddings)}).Info("Embeddings complete")
	}
	return embeddings, nil
}

// truncateForBudget trims texts that would exceed the provider's token limit,
// using the character proxy.
func truncateForBudget(text string) string {
	maxChars := maxTokensPerRequest * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars]
}
