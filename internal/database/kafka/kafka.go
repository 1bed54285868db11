package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"DocFlow/internal/config"
	"DocFlow/pkg/logger"
)

// KafkaClient holds the singleton writer and reader for the ingest queue.
type KafkaClient struct {
	Writer *kafka.Writer
	Reader *kafka.Reader
	Conn   *kafka.Conn // admin connection
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient initializes the singleton Kafka client. On first use it creates
// the ingest topic if it does not exist yet.
func GetClient(cfg *config.KafkaConfig, log *logger.Logger) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("no Kafka brokers configured")
			return
		}
		if cfg.IngestTopic == "" {
			initErr = fmt.Errorf("no Kafka ingest topic configured")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("failed to dial Kafka: %w", err)
			return
		}

		partitions, err := conn.ReadPartitions()
		if err != nil {
			initErr = fmt.Errorf("failed to read Kafka partitions: %w", err)
			conn.Close()
			return
		}
		exists := false
		for _, p := range partitions {
			if p.Topic == cfg.IngestTopic {
				exists = true
				break
			}
		}
		if !exists {
			err = conn.CreateTopics(kafka.TopicConfig{
				Topic:             cfg.IngestTopic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
			if err != nil {
				initErr = fmt.Errorf("failed to create Kafka topic '%s': %w", cfg.IngestTopic, err)
				conn.Close()
				return
			}
			log.WithPayload(map[string]interface{}{"topic": cfg.IngestTopic}).Info("Created Kafka topic")
		}

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.IngestTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.IngestTopic,
			GroupID:     cfg.GroupID,
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
			MaxAttempts: 10,
			Dialer: &kafka.Dialer{
				Timeout: 10 * time.Second,
			},
		})

		log.Info("Initialized Kafka client")
		client = &KafkaClient{Writer: writer, Reader: reader, Conn: conn, Config: cfg}
	})
	return client, initErr
}

// Close shuts down the writer, reader, and admin connection.
func (c *KafkaClient) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka writer: %w", err))
		}
	}
	if c.Reader != nil {
		if err := c.Reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka reader: %w", err))
		}
	}
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Kafka admin connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing Kafka client: %v", errs)
	}
	return nil
}

// HealthCheck verifies the broker is reachable.
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka client is not initialized")
	}
	_, err := c.Conn.Controller()
	return err
}

// ControllerAddr returns the address of the current Kafka controller.
func (c *KafkaClient) ControllerAddr() (string, error) {
	if c == nil || c.Conn == nil {
		return "", fmt.Errorf("kafka client is not initialized")
	}
	controller, err := c.Conn.Controller()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), nil
}
