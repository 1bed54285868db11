package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"DocFlow/internal/database/milvus"
	"DocFlow/internal/models"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/pkg/logger"
	"DocFlow/pkg/retry"
)

const (
	// previewChars is the size of the content preview stored alongside the
	// full content for cheap result rendering.
	previewChars = 500
	// fullContentChars caps the stored full content.
	fullContentChars = 8000
	// maxImageB64Bytes is the largest base64 payload written to the index.
	maxImageB64Bytes = 30000
)

// Record is the flattened, size-capped form of a chunk as it is written to
// the index. Building records is a pure transformation so it can be tested
// without a running Milvus.
type Record struct {
	ID            string
	Embedding     []float32
	UserID        string
	TopicID       string
	TopicName     string
	DocumentID    string
	FileName      string
	FileURL       string
	SectionTitle  string
	ChunkIndex    int64
	ChunkType     string
	HasImage      bool
	Preview       string
	FullContent   string
	ImageSummary  string
	ImageB64      string
	ImageTooLarge bool
}

// BuildRecord flattens one chunk plus its embedding and tenant scope into an
// index record, applying the metadata size caps.
func BuildRecord(chunk *models.ChunkData, embedding []float32, tenant models.TenantContext) Record {
	rec := Record{
		ID:            chunk.ID,
		Embedding:     embedding,
		UserID:        tenant.UserID,
		TopicID:       tenant.TopicID,
		TopicName:     tenant.TopicName,
		DocumentID:    tenant.DocumentID,
		FileName:      tenant.FileName,
		FileURL:       tenant.FileURL,
		SectionTitle:  chunk.SectionTitle,
		ChunkIndex:    int64(chunk.ChunkIndex),
		ChunkType:     string(chunk.ChunkType),
		HasImage:      chunk.HasImage,
		ImageSummary:  chunk.ImageSummary,
		ImageTooLarge: chunk.Metadata.ImageTooLarge,
	}

	content := chunk.Content
	if len(content) > previewChars {
		rec.Preview = content[:previewChars]
	} else {
		rec.Preview = content
	}
	if len(content) > fullContentChars {
		rec.FullContent = content[:fullContentChars] + "..."
	} else {
		rec.FullContent = content
	}

	if chunk.ImageB64 != "" {
		if len(chunk.ImageB64) < maxImageB64Bytes {
			rec.ImageB64 = chunk.ImageB64
		} else {
			rec.ImageTooLarge = true
		}
	}
	return rec
}

// PartitionForUser maps a user ID to its Milvus partition name. Partition
// names must match [A-Za-z0-9_], so UUID hyphens are rewritten.
func PartitionForUser(userID string) string {
	return "user_" + strings.ReplaceAll(userID, "-", "_")
}

// MilvusIndex is the Milvus-backed implementation of the vector index. All
// writes go through Upsert, so re-ingesting a document with the same chunk
// IDs replaces rows instead of duplicating them.
type MilvusIndex struct {
	db        *milvus.MilvusClient
	batchSize int
	policy    retry.Policy
	log       *logger.Logger
}

// New creates a MilvusIndex. batchSize defaults to 100.
func New(db *milvus.MilvusClient, batchSize int, policy retry.Policy, log *logger.Logger) *MilvusIndex {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &MilvusIndex{db: db, batchSize: batchSize, policy: policy, log: log}
}

// Upsert writes the chunks and their embeddings into the tenant's partition
// in fixed-size batches. Returns the number of records written.
func (m *MilvusIndex) Upsert(ctx context.Context, chunks []*models.ChunkData, embeddings [][]float32, tenant models.TenantContext) (int, error) {
	if len(chunks) != len(embeddings) {
		return 0, fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	partition := PartitionForUser(tenant.UserID)
	if err := m.db.EnsurePartition(ctx, partition); err != nil {
		return 0, err
	}

	records := make([]Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = BuildRecord(chunk, embeddings[i], tenant)
	}

	written := 0
	for start := 0; start < len(records); start += m.batchSize {
		end := start + m.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		attempts, err := m.policy.Do(ctx, func(ctx context.Context) error {
			return m.upsertBatch(ctx, partition, batch)
		})
		if err != nil {
			return written, &models.ProviderError{Provider: "milvus", Attempts: attempts, Err: err}
		}
		written += len(batch)
	}

	if err := m.db.Flush(ctx); err != nil {
		return written, err
	}
	m.log.WithPayload(map[string]interface{}{
		"partition":   partition,
		"document_id": tenant.DocumentID,
		"records":     written,
	}).Info("Upserted chunk vectors")
	return written, nil
}

func (m *MilvusIndex) upsertBatch(ctx context.Context, partition string, batch []Record) error {
	n := len(batch)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	userIDs := make([]string, n)
	topicIDs := make([]string, n)
	topicNames := make([]string, n)
	documentIDs := make([]string, n)
	fileNames := make([]string, n)
	fileURLs := make([]string, n)
	sectionTitles := make([]string, n)
	chunkIndexes := make([]int64, n)
	chunkTypes := make([]string, n)
	hasImages := make([]bool, n)
	previews := make([]string, n)
	fullContents := make([]string, n)
	imageSummaries := make([]string, n)
	imageB64s := make([]string, n)
	imageTooLarges := make([]bool, n)

	for i, rec := range batch {
		ids[i] = rec.ID
		vectors[i] = rec.Embedding
		userIDs[i] = rec.UserID
		topicIDs[i] = rec.TopicID
		topicNames[i] = rec.TopicName
		documentIDs[i] = rec.DocumentID
		fileNames[i] = rec.FileName
		fileURLs[i] = rec.FileURL
		sectionTitles[i] = rec.SectionTitle
		chunkIndexes[i] = rec.ChunkIndex
		chunkTypes[i] = rec.ChunkType
		hasImages[i] = rec.HasImage
		previews[i] = rec.Preview
		fullContents[i] = rec.FullContent
		imageSummaries[i] = rec.ImageSummary
		imageB64s[i] = rec.ImageB64
		imageTooLarges[i] = rec.ImageTooLarge
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(milvus.FieldID, ids),
		entity.NewColumnFloatVector(milvus.FieldEmbedding, m.db.Config.Dim, vectors),
		entity.NewColumnVarChar(milvus.FieldUserID, userIDs),
		entity.NewColumnVarChar(milvus.FieldTopicID, topicIDs),
		entity.NewColumnVarChar(milvus.FieldTopicName, topicNames),
		entity.NewColumnVarChar(milvus.FieldDocumentID, documentIDs),
		entity.NewColumnVarChar(milvus.FieldFileName, fileNames),
		entity.NewColumnVarChar(milvus.FieldFileURL, fileURLs),
		entity.NewColumnVarChar(milvus.FieldSectionTitle, sectionTitles),
		entity.NewColumnInt64(milvus.FieldChunkIndex, chunkIndexes),
		entity.NewColumnVarChar(milvus.FieldChunkType, chunkTypes),
		entity.NewColumnBool(milvus.FieldHasImage, hasImages),
		entity.NewColumnVarChar(milvus.FieldPreview, previews),
		entity.NewColumnVarChar(milvus.FieldFullContent, fullContents),
		entity.NewColumnVarChar(milvus.FieldImageSummary, imageSummaries),
		entity.NewColumnVarChar(milvus.FieldImageB64, imageB64s),
		entity.NewColumnBool(milvus.FieldImageTooLarge, imageTooLarges),
	}

	_, err := m.db.Client.Upsert(ctx, m.db.Config.CollectionName, partition, columns...)
	if err != nil {
		return fmt.Errorf("failed to upsert batch into Milvus: %w", err)
	}
	return nil
}

// Query searches the user's partition, optionally narrowed to one topic.
func (m *MilvusIndex) Query(ctx context.Context, embedding []float32, userID, topicID string, topK int) ([]*models.ChunkData, error) {
	partition := PartitionForUser(userID)

	expr := ""
	if topicID != "" {
		expr = fmt.Sprintf(`%s == "%s"`, milvus.FieldTopicID, topicID)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	outputFields := []string{
		milvus.FieldID, milvus.FieldDocumentID, milvus.FieldSectionTitle,
		milvus.FieldChunkIndex, milvus.FieldChunkType, milvus.FieldHasImage,
		milvus.FieldFullContent, milvus.FieldImageSummary, milvus.FieldImageB64,
	}

	results, err := m.db.Client.Search(
		ctx, m.db.Config.CollectionName, []string{partition}, expr, outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		milvus.FieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search Milvus: %w", err)
	}

	var chunks []*models.ChunkData
	for _, res := range results {
		findVarChar := func(name string) []string {
			for _, field := range res.Fields {
				if field.Name() == name {
					if col, ok := field.(*entity.ColumnVarChar); ok {
						return col.Data()
					}
				}
			}
			return nil
		}
		findInt64 := func(name string) []int64 {
			for _, field := range res.Fields {
				if field.Name() == name {
					if col, ok := field.(*entity.ColumnInt64); ok {
						return col.Data()
					}
				}
			}
			return nil
		}
		findBool := func(name string) []bool {
			for _, field := range res.Fields {
				if field.Name() == name {
					if col, ok := field.(*entity.ColumnBool); ok {
						return col.Data()
					}
				}
			}
			return nil
		}

		idData := findVarChar(milvus.FieldID)
		sectionData := findVarChar(milvus.FieldSectionTitle)
		indexData := findInt64(milvus.FieldChunkIndex)
		typeData := findVarChar(milvus.FieldChunkType)
		hasImageData := findBool(milvus.FieldHasImage)
		contentData := findVarChar(milvus.FieldFullContent)
		summaryData := findVarChar(milvus.FieldImageSummary)
		b64Data := findVarChar(milvus.FieldImageB64)

		for i := 0; i < res.ResultCount; i++ {
			chunk := &models.ChunkData{}
			if idData != nil {
				chunk.ID = idData[i]
			}
			if sectionData != nil {
				chunk.SectionTitle = sectionData[i]
			}
			if indexData != nil {
				chunk.ChunkIndex = int(indexData[i])
			}
			if typeData != nil {
				chunk.ChunkType = models.ChunkType(typeData[i])
			}
			if hasImageData != nil {
				chunk.HasImage = hasImageData[i]
			}
			if contentData != nil {
				chunk.Content = contentData[i]
			}
			if summaryData != nil {
				chunk.ImageSummary = summaryData[i]
			}
			if b64Data != nil {
				chunk.ImageB64 = b64Data[i]
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// DeleteByDocument removes every vector of the document from the user's
// partition. Deleting a document that has no vectors is a no-op.
func (m *MilvusIndex) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	expr := fmt.Sprintf(`%s == "%s"`, milvus.FieldDocumentID, documentID)
	return m.deleteByExpr(ctx, userID, expr)
}

// DeleteByTopic removes every vector of the topic from the user's partition.
func (m *MilvusIndex) DeleteByTopic(ctx context.Context, userID, topicID string) error {
	expr := fmt.Sprintf(`%s == "%s"`, milvus.FieldTopicID, topicID)
	return m.deleteByExpr(ctx, userID, expr)
}

func (m *MilvusIndex) deleteByExpr(ctx context.Context, userID, expr string) error {
	partition := PartitionForUser(userID)
	exists, err := m.db.Client.HasPartition(ctx, m.db.Config.CollectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition '%s': %w", partition, err)
	}
	if !exists {
		return nil
	}

	attempts, err := m.policy.Do(ctx, func(ctx context.Context) error {
		return m.db.Client.Delete(ctx, m.db.Config.CollectionName, partition, expr)
	})
	if err != nil {
		return &models.ProviderError{Provider: "milvus", Attempts: attempts, Err: err}
	}
	m.log.WithPayload(map[string]interface{}{"partition": partition, "expr": expr}).Info("Deleted vectors")
	return nil
}

// PurgeUser drops the user's entire partition.
func (m *MilvusIndex) PurgeUser(ctx context.Context, userID string) error {
	return m.db.DropPartition(ctx, PartitionForUser(userID))
}

var _ interfaces.VectorIndex = (*MilvusIndex)(nil)
