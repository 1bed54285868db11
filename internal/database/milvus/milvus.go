package milvus

import (
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"DocFlow/internal/config"
	"DocFlow/pkg/logger"
)

// Collection schema field names. Every chunk vector carries the full tenant
// scope so deletes can be expressed as boolean filters inside a partition.
const (
	FieldID            = "id"
	FieldEmbedding     = "embedding"
	FieldUserID        = "user_id"
	FieldTopicID       = "topic_id"
	FieldTopicName     = "topic_name"
	FieldDocumentID    = "document_id"
	FieldFileName      = "file_name"
	FieldFileURL       = "file_url"
	FieldSectionTitle  = "section_title"
	FieldChunkIndex    = "chunk_index"
	FieldChunkType     = "chunk_type"
	FieldHasImage      = "has_image"
	FieldPreview       = "content_preview"
	FieldFullContent   = "full_content"
	FieldImageSummary  = "image_summary"
	FieldImageB64      = "image_b64"
	FieldImageTooLarge = "image_too_large"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient wraps the raw SDK client with the collection lifecycle
// operations the ingestion service needs.
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig
	log    *logger.Logger
}

// GetClient creates the singleton Milvus client.
func GetClient(ctx context.Context, cfg *config.MilvusConfig, log *logger.Logger) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("failed to connect to Milvus: %w", err)
			return
		}
		log.Info("Connected to Milvus")
		instance = &MilvusClient{Client: c, Config: cfg, log: log}
	})
	return instance, initErr
}

// Close shuts down the connection.
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the connection is alive.
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollection creates the chunk collection, its index, and loads it.
// Safe to call on every startup.
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("Document chunks with embeddings, partitioned per user").
			WithField(entity.NewField().WithName(FieldID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dim))).
			WithField(entity.NewField().WithName(FieldUserID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(FieldTopicID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(FieldTopicName).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldDocumentID).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(FieldFileName).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(FieldFileURL).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
			WithField(entity.NewField().WithName(FieldSectionTitle).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName(FieldChunkIndex).
				WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldChunkType).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
			WithField(entity.NewField().WithName(FieldHasImage).
				WithDataType(entity.FieldTypeBool)).
			WithField(entity.NewField().WithName(FieldPreview).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(2048)).
			WithField(entity.NewField().WithName(FieldFullContent).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(32768)).
			WithField(entity.NewField().WithName(FieldImageSummary).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(32768)).
			WithField(entity.NewField().WithName(FieldImageB64).
				WithDataType(entity.FieldTypeVarChar).WithMaxLength(40960)).
			WithField(entity.NewField().WithName(FieldImageTooLarge).
				WithDataType(entity.FieldTypeBool))

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection '%s': %w", collName, err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 96)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index on '%s': %w", FieldEmbedding, err)
		}
		c.log.WithPayload(map[string]interface{}{"collection": collName}).Info("Created Milvus collection")
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("failed to load collection '%s': %w", collName, err)
	}
	return nil
}

// EnsurePartition creates the partition if it does not exist yet.
func (c *MilvusClient) EnsurePartition(ctx context.Context, partitionName string) error {
	collName := c.Config.CollectionName
	exists, err := c.Client.HasPartition(ctx, collName, partitionName)
	if err != nil {
		return fmt.Errorf("failed to check partition '%s': %w", partitionName, err)
	}
	if exists {
		return nil
	}
	if err := c.Client.CreatePartition(ctx, collName, partitionName); err != nil {
		return fmt.Errorf("failed to create partition '%s': %w", partitionName, err)
	}
	return nil
}

// DropPartition removes a partition and all vectors in it. Dropping a
// partition that does not exist is not an error.
func (c *MilvusClient) DropPartition(ctx context.Context, partitionName string) error {
	collName := c.Config.CollectionName
	exists, err := c.Client.HasPartition(ctx, collName, partitionName)
	if err != nil {
		return fmt.Errorf("failed to check partition '%s': %w", partitionName, err)
	}
	if !exists {
		return nil
	}
	if err := c.Client.ReleasePartitions(ctx, collName, []string{partitionName}); err != nil {
		return fmt.Errorf("failed to release partition '%s': %w", partitionName, err)
	}
	if err := c.Client.DropPartition(ctx, collName, partitionName); err != nil {
		return fmt.Errorf("failed to drop partition '%s': %w", partitionName, err)
	}
	return nil
}

// Flush persists buffered writes for the collection.
func (c *MilvusClient) Flush(ctx context.Context) error {
	collName := c.Config.CollectionName
	if err := c.Client.Flush(ctx, collName, false); err != nil {
		return fmt.Errorf("failed to flush collection '%s': %w", collName, err)
	}
	return nil
}
