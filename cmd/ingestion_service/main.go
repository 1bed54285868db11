package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"DocFlow/internal/config"
	"DocFlow/internal/database/kafka"
	"DocFlow/internal/database/milvus"
	"DocFlow/internal/database/minio"
	"DocFlow/internal/database/mongo"
	"DocFlow/internal/embedding"
	"DocFlow/internal/ingestion_service/api"
	"DocFlow/internal/ingestion_service/consumer"
	"DocFlow/internal/ingestion_service/publisher"
	"DocFlow/internal/ingestion_service/service"
	"DocFlow/internal/ingestion_service/store"
	"DocFlow/internal/llm"
	"DocFlow/internal/models"
	"DocFlow/internal/parser"
	"DocFlow/internal/pipeline"
	"DocFlow/internal/pipeline/chunker"
	"DocFlow/internal/pipeline/embedder"
	"DocFlow/internal/pipeline/imagefilter"
	"DocFlow/internal/pipeline/vectorstore"
	"DocFlow/internal/pipeline/vision"
	"DocFlow/pkg/logger"
	"DocFlow/pkg/retry"
)

const (
	documentsCollection = "documents"
	topicsCollection    = "topics"
)

func main() {
	configPath := os.Getenv("DOCFLOW_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New("IngestionService", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backing stores.
	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB, serviceLogger)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MongoDB")
	}
	db := mongoClient.Database(cfg.Databases.MongoDB.Database)

	objectStore, err := minio.NewStore(ctx, &cfg.Databases.MinIO, serviceLogger)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to initialize object storage")
	}

	milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus, serviceLogger)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Milvus")
	}
	if err := milvusClient.EnsureCollection(ctx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to ensure Milvus collection")
	}

	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka, serviceLogger)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to initialize Kafka")
	}

	// Model providers.
	embedModel, err := embedding.NewGoogleModel(ctx, cfg.Embedding.Gemini.APIKey, cfg.Embedding.Gemini.Model)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to initialize embedding model")
	}
	visionModel, err := llm.NewGeminiVision(ctx, cfg.Vision.Gemini.APIKey, cfg.Vision.Gemini.Model)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to initialize vision model")
	}

	// Pipeline assembly.
	policy := retry.DefaultPolicy()
	docStore := store.NewMongoDocumentStore(db, documentsCollection)
	topicStore := store.NewMongoTopicStore(db, topicsCollection)
	index := vectorstore.New(milvusClient, cfg.Pipeline.UpsertBatchSize, policy, serviceLogger)

	pipe := pipeline.New(pipeline.Deps{
		Objects: objectStore,
		Parser:  parser.New(&cfg.Parser, serviceLogger),
		Chunker: chunker.New(chunker.Config{
			MaxCharacters:          cfg.Pipeline.Chunking.MaxCharacters,
			CombineTextUnderNChars: cfg.Pipeline.Chunking.CombineTextUnderNChars,
			NewAfterNChars:         cfg.Pipeline.Chunking.NewAfterNChars,
		}, serviceLogger),
		Filter: imagefilter.New(imagefilter.Config{
			MinFileSizeBytes: cfg.Pipeline.ImageFilter.MinFileSizeBytes,
			MinDimension:     cfg.Pipeline.ImageFilter.MinDimension,
			MinAspectRatio:   cfg.Pipeline.ImageFilter.MinAspectRatio,
			MaxAspectRatio:   cfg.Pipeline.ImageFilter.MaxAspectRatio,
			MinEntropy:       cfg.Pipeline.ImageFilter.MinEntropy,
			DisableDedup:     cfg.Pipeline.ImageFilter.DisableDedup,
		}, serviceLogger),
		Summarizer: vision.New(visionModel, policy, cfg.Pipeline.MaxConcurrentBatches, serviceLogger),
		Embedder: embedder.New(embedModel, embedder.Config{
			BatchSize:            cfg.Pipeline.EmbedBatchSize,
			MaxConcurrentBatches: cfg.Pipeline.MaxConcurrentBatches,
		}, policy, serviceLogger),
		Index:  index,
		Status: docStore,
	}, time.Duration(cfg.Pipeline.DocumentTimeoutSeconds)*time.Second, serviceLogger)

	ingestPublisher := publisher.NewIngestPublisher(kafkaClient.Writer, serviceLogger)
	ingestionService := service.NewIngestionService(docStore, topicStore, objectStore, index, ingestPublisher, pipe, serviceLogger)

	ingestConsumer := consumer.NewIngestConsumer(kafkaClient.Reader, cfg.Pipeline.MaxConcurrentDocuments, serviceLogger)
	go ingestConsumer.Start(ctx, ingestionService.HandleTask)
	serviceLogger.Info("Ingest consumer started")

	// HTTP server.
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	apiHandler := api.NewAPI(ingestionService, serviceLogger)
	api.RegisterRoutes(router, apiHandler)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Server forced to shutdown")
	}

	cancel()
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka client")
	}
	milvusClient.Close()
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
	}

	serviceLogger.Info("Server gracefully stopped")
}
