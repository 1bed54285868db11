package embedding

import "context"

// Embedding is the interface every embedding model implements.
type Embedding interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for a batch of texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelType enumerates supported embedding providers.
type ModelType string

const (
	Google ModelType = "google"
	Gemini ModelType = "gemini"
)
