package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"DocFlow/internal/ingestion_service/store"
	"DocFlow/internal/models"
	"DocFlow/internal/pipeline"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/pkg/logger"
)

// TaskPublisher defines the interface for enqueueing ingest tasks.
type TaskPublisher interface {
	Publish(ctx context.Context, task models.IngestTask) error
	Close() error
}

// IngestionService provides the business logic of the document ingestion
// API: upload, re-ingest, listing, and tenant-scoped deletion. The heavy
// per-document work happens asynchronously in the pipeline, triggered by
// queue messages.
type IngestionService struct {
	docs      store.DocumentStore
	topics    store.TopicStore
	objects   interfaces.ObjectStore
	index     interfaces.VectorIndex
	publisher TaskPublisher
	pipeline  *pipeline.Pipeline
	logger    *logger.Logger
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(
	docs store.DocumentStore,
	topics store.TopicStore,
	objects interfaces.ObjectStore,
	index interfaces.VectorIndex,
	publisher TaskPublisher,
	pipe *pipeline.Pipeline,
	logger *logger.Logger,
) *IngestionService {
	return &IngestionService{
		docs:      docs,
		topics:    topics,
		objects:   objects,
		index:     index,
		publisher: publisher,
		pipeline:  pipe,
		logger:    logger,
	}
}

// UploadDocument stores the uploaded file, creates its record, and enqueues
// the ingest task. localPath points at the temp file the API layer saved.
func (s *IngestionService) UploadDocument(ctx context.Context, userID, topicID, fileName, localPath string) (*models.DocumentRecord, error) {
	topic, err := s.topics.GetByID(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic.UserID != userID {
		return nil, models.ErrNotFound
	}

	fileType := ""
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		fileType = mt.String()
	}

	docID := uuid.New().String()
	objectKey := fmt.Sprintf("%s/%s/%s%s", userID, topicID, docID, filepath.Ext(fileName))
	if err := s.objects.Upload(ctx, objectKey, localPath, fileType); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upload document to object storage")
		return nil, err
	}

	now := time.Now()
	doc := &models.DocumentRecord{
		ID:        docID,
		UserID:    userID,
		TopicID:   topicID,
		FileName:  fileName,
		FilePath:  objectKey,
		FileType:  fileType,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to create document record")
		return nil, err
	}

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReingestDocument re-runs the pipeline for an already-uploaded document.
func (s *IngestionService) ReingestDocument(ctx context.Context, userID, documentID string) (*models.DocumentRecord, error) {
	doc, err := s.GetDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Terminal() {
		return nil, models.NewValidationError("document %s is still being processed", documentID)
	}

	if err := s.docs.SetStatus(ctx, doc.ID, models.StatusPending); err != nil {
		return nil, err
	}
	doc.Status = models.StatusPending
	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *IngestionService) enqueue(ctx context.Context, doc *models.DocumentRecord) error {
	task := models.IngestTask{DocumentID: doc.ID, SubmittedAt: time.Now()}
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to publish ingest task")
		_ = s.docs.SetFailed(ctx, doc.ID, "failed to enqueue ingest task")
		return err
	}
	return nil
}

// GetDocument retrieves one document, scoped to the requesting user.
func (s *IngestionService) GetDocument(ctx context.Context, userID, documentID string) (*models.DocumentRecord, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		s.logger.WithPayload(map[string]interface{}{
			"document_id": documentID,
			"user_id":     userID,
		}).Warn("User attempted to access another user's document")
		return nil, models.ErrNotFound
	}
	return doc, nil
}

// ListDocuments returns a page of the user's documents, newest first.
func (s *IngestionService) ListDocuments(ctx context.Context, userID string, page, limit int) ([]*models.DocumentRecord, error) {
	return s.docs.GetByUser(ctx, userID, page, limit)
}

// DeleteDocument removes the document's vectors, its stored file, and its
// record. Deleting an unknown document returns models.ErrNotFound.
func (s *IngestionService) DeleteDocument(ctx context.Context, userID, documentID string) error {
	doc, err := s.GetDocument(ctx, userID, documentID)
	if err != nil {
		return err
	}

	if err := s.index.DeleteByDocument(ctx, userID, doc.ID); err != nil {
		return err
	}
	if err := s.objects.Remove(ctx, doc.FilePath); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).
			WithPayload(map[string]interface{}{"object_key": doc.FilePath}).
			Warn("Failed to remove stored file, continuing with record deletion")
	}
	return s.docs.Delete(ctx, doc.ID)
}

// CreateTopic creates a named topic for the user.
func (s *IngestionService) CreateTopic(ctx context.Context, userID, name, description string) (*models.TopicRecord, error) {
	if name == "" {
		return nil, models.NewValidationError("topic name must not be empty")
	}
	topic := &models.TopicRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := s.topics.Create(ctx, topic); err != nil {
		return nil, err
	}
	return topic, nil
}

// ListTopics returns all topics of the user.
func (s *IngestionService) ListTopics(ctx context.Context, userID string) ([]*models.TopicRecord, error) {
	return s.topics.GetByUser(ctx, userID)
}

// DeleteTopic removes the topic, its documents' vectors and files, and the
// document records.
func (s *IngestionService) DeleteTopic(ctx context.Context, userID, topicID string) error {
	topic, err := s.topics.GetByID(ctx, topicID)
	if err != nil {
		return err
	}
	if topic.UserID != userID {
		return models.ErrNotFound
	}

	if err := s.index.DeleteByTopic(ctx, userID, topicID); err != nil {
		return err
	}

	docs, err := s.docs.GetByTopic(ctx, userID, topicID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.objects.Remove(ctx, doc.FilePath); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).
				WithPayload(map[string]interface{}{"object_key": doc.FilePath}).
				Warn("Failed to remove stored file during topic deletion")
		}
		if err := s.docs.Delete(ctx, doc.ID); err != nil {
			return err
		}
	}
	return s.topics.Delete(ctx, topicID)
}

// PurgeUser drops the user's entire vector partition and removes all of
// their records. Files in object storage are removed per document first.
func (s *IngestionService) PurgeUser(ctx context.Context, userID string) error {
	topics, err := s.topics.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, topic := range topics {
		docs, err := s.docs.GetByTopic(ctx, userID, topic.ID)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := s.objects.Remove(ctx, doc.FilePath); err != nil {
				s.logger.WithError(models.ErrorInfo{Message: err.Error()}).
					WithPayload(map[string]interface{}{"object_key": doc.FilePath}).
					Warn("Failed to remove stored file during user purge")
			}
		}
	}

	if err := s.index.PurgeUser(ctx, userID); err != nil {
		return err
	}
	if err := s.docs.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	return s.topics.DeleteByUser(ctx, userID)
}

// HandleTask processes one queue message: it loads the document, rebuilds
// the tenant scope, and runs the pipeline. Unknown document IDs are dropped
// so a poisoned message cannot block the partition.
func (s *IngestionService) HandleTask(ctx context.Context, msg kafka.Message) error {
	var task models.IngestTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to unmarshal ingest task, dropping message")
		return nil
	}

	doc, err := s.docs.GetByID(ctx, task.DocumentID)
	if err != nil {
		if err == models.ErrNotFound {
			s.logger.WithPayload(map[string]interface{}{"document_id": task.DocumentID}).
				Warn("Ingest task references unknown document, dropping")
			return nil
		}
		return err
	}

	topicName := ""
	if topic, err := s.topics.GetByID(ctx, doc.TopicID); err == nil {
		topicName = topic.Name
	}

	tenant := models.TenantContext{
		UserID:     doc.UserID,
		TopicID:    doc.TopicID,
		TopicName:  topicName,
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		FileURL:    doc.FilePath,
	}
	return s.pipeline.Run(ctx, doc, tenant)
}
