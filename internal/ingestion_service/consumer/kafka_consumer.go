package consumer

import (
	"context"

	"github.com/segmentio/kafka-go"

	"DocFlow/internal/models"
	"DocFlow/pkg/logger"
)

// IngestConsumer pulls ingest tasks from the queue and dispatches them to
// the handler with bounded concurrency. A message is committed after its
// handler returns, whether it succeeded or not: pipeline failures are
// recorded on the document, not retried by redelivery.
type IngestConsumer struct {
	reader      *kafka.Reader
	concurrency int
	logger      *logger.Logger
}

// NewIngestConsumer creates an IngestConsumer on an existing reader.
// concurrency bounds documents processed in parallel.
func NewIngestConsumer(reader *kafka.Reader, concurrency int, logger *logger.Logger) *IngestConsumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IngestConsumer{reader: reader, concurrency: concurrency, logger: logger}
}

// Start consumes until the context is cancelled. It blocks, so callers run
// it in a goroutine.
func (c *IngestConsumer) Start(ctx context.Context, handler func(context.Context, kafka.Message) error) {
	sem := make(chan struct{}, c.concurrency)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping ingest consumer")
				return
			}
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			c.logger.Info("Stopping ingest consumer")
			return
		}

		go func(msg kafka.Message) {
			defer func() { <-sem }()

			if err := handler(ctx, msg); err != nil {
				c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("Error handling ingest task")
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
			}
		}(msg)
	}
}

// Close closes the underlying reader.
func (c *IngestConsumer) Close() error {
	return c.reader.Close()
}
