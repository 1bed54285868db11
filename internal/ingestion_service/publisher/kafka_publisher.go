package publisher

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"DocFlow/internal/models"
	"DocFlow/pkg/logger"
)

// IngestPublisher publishes ingest tasks to the queue.
type IngestPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewIngestPublisher creates an IngestPublisher on an existing writer.
func NewIngestPublisher(writer *kafka.Writer, logger *logger.Logger) *IngestPublisher {
	return &IngestPublisher{writer: writer, logger: logger}
}

// Publish enqueues one ingest task, keyed by document ID so retries of the
// same document stay on one partition.
func (p *IngestPublisher) Publish(ctx context.Context, task models.IngestTask) error {
	msgBytes, err := json.Marshal(task)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal ingest task")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).
			WithPayload(map[string]interface{}{"document_id": task.DocumentID}).
			Error("Failed to write ingest task to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (p *IngestPublisher) Close() error {
	return p.writer.Close()
}
