package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"DocFlow/internal/config"
	"DocFlow/pkg/logger"
)

var (
	client  *mongo.Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns the singleton MongoDB client.
func GetClient(cfg *config.MongoConfig, log *logger.Logger) (*mongo.Client, error) {
	once.Do(func() {
		clientOptions := options.Client().ApplyURI(cfg.Address)
		if cfg.Username != "" && cfg.Password != "" {
			clientOptions.SetAuth(options.Credential{
				Username: cfg.Username,
				Password: cfg.Password,
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		c, err := mongo.Connect(ctx, clientOptions)
		if err != nil {
			initErr = fmt.Errorf("failed to connect to MongoDB: %w", err)
			return
		}
		if err = c.Ping(ctx, nil); err != nil {
			initErr = fmt.Errorf("failed to ping MongoDB: %w", err)
			return
		}

		log.Info("Connected to MongoDB")
		client = c
	})
	return client, initErr
}

// Close disconnects the singleton client.
func Close(ctx context.Context) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck verifies the connection is alive.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MongoDB client is not initialized")
	}
	return client.Ping(ctx, nil)
}
