package interfaces

import (
	"context"

	"DocFlow/internal/models"
)

// Parser is the interface for the external structural parser. It turns a
// local file into an ordered sequence of typed elements, writing any
// extracted images into imageOutputDir.
type Parser interface {
	Parse(ctx context.Context, filePath, fileType, imageOutputDir string) ([]*models.RawElement, error)
}

// EmbeddingModel is the interface for a text embedding provider.
type EmbeddingModel interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VisionModel is the interface for a vision summarization provider. The
// contextText parameter carries nearby document text to ground the
// description; it may be empty.
type VisionModel interface {
	Describe(ctx context.Context, image []byte, mimeType, contextText string) (string, error)
}

// VectorIndex is the interface for the tenant-partitioned vector index.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []*models.ChunkData, embeddings [][]float32, tenant models.TenantContext) (int, error)
	Query(ctx context.Context, embedding []float32, userID, topicID string, topK int) ([]*models.ChunkData, error)
	DeleteByDocument(ctx context.Context, userID, documentID string) error
	DeleteByTopic(ctx context.Context, userID, topicID string) error
	PurgeUser(ctx context.Context, userID string) error
}

// ObjectStore is the interface for document blob storage.
type ObjectStore interface {
	Download(ctx context.Context, objectKey, localPath string) error
	Upload(ctx context.Context, objectKey, localPath, contentType string) error
	Remove(ctx context.Context, objectKey string) error
}

// StatusSink receives the per-stage status transitions of a pipeline run.
// The production implementation persists them to the document store.
type StatusSink interface {
	SetStatus(ctx context.Context, documentID string, status models.DocumentStatus) error
	SetDone(ctx context.Context, documentID string, chunkCount int) error
	SetFailed(ctx context.Context, documentID string, reason string) error
}
