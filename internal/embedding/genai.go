package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel is a client for the Google GenAI embedding API.
type GoogleModel struct {
	model *genai.EmbeddingModel
}

// NewGoogleModel creates a GoogleModel client for the given model name.
func NewGoogleModel(ctx context.Context, apiKey, modelName string) (*GoogleModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GoogleModel{
		model: client.EmbeddingModel(modelName),
	}, nil
}

// Embed generates an embedding vector for a single text.
func (m *GoogleModel) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	return res.Embedding.Values, nil
}

// EmbedBatch generates embedding vectors for a batch of texts. Results are
// returned in input order.
func (m *GoogleModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := m.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := m.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		embeddings = append(embeddings, emb.Values)
	}
	return embeddings, nil
}

var _ Embedding = (*GoogleModel)(nil)
