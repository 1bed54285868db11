package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application information.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // "development" or "production"
}

// LoggerConfig configures the log level ("debug", "info", "warn", "error").
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// MilvusConfig holds the vector index connection and collection settings.
type MilvusConfig struct {
	Address        string `yaml:"address"`
	CollectionName string `yaml:"collectionName"`
	Dim            int    `yaml:"dim"` // embedding dimension of the collection
}

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// MongoConfig holds the document database connection settings.
type MongoConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// KafkaConfig holds the ingest task queue settings.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	IngestTopic string   `yaml:"ingestTopic"`
	GroupID     string   `yaml:"groupID"`
}

// DatabaseConfigs groups the connection settings of all backing stores.
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`
	MinIO   MinIOConfig  `yaml:"minio"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Kafka   KafkaConfig  `yaml:"kafka"`
}

// GeminiConfig holds the settings of one Gemini model.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // currently "gemini"
	Gemini   GeminiConfig `yaml:"gemini"`
}

// VisionConfig selects and configures the vision summarization provider.
type VisionConfig struct {
	Provider string       `yaml:"provider"` // currently "gemini"
	Gemini   GeminiConfig `yaml:"gemini"`
}

// ParserConfig points at the external structural parser service.
type ParserConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	// TimeoutSeconds bounds a single partition call, default 120.
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

// ChunkingConfig holds the title-bounded chunking parameters.
type ChunkingConfig struct {
	MaxCharacters          int `yaml:"maxCharacters"`          // default 1500
	CombineTextUnderNChars int `yaml:"combineTextUnderNChars"` // default maxCharacters/3
	NewAfterNChars         int `yaml:"newAfterNChars"`         // default maxCharacters-200
}

// ImageFilterConfig holds the relevance filter thresholds.
type ImageFilterConfig struct {
	MinFileSizeBytes int     `yaml:"minFileSizeBytes"` // default 30KB
	MinDimension     int     `yaml:"minDimension"`     // default 200px
	MinAspectRatio   float64 `yaml:"minAspectRatio"`   // default 0.2
	MaxAspectRatio   float64 `yaml:"maxAspectRatio"`   // default 5.0
	MinEntropy       float64 `yaml:"minEntropy"`       // default 4.0 bits
	DisableDedup     bool    `yaml:"disableDedup"`
}

// PipelineConfig holds the per-document pipeline tuning knobs.
type PipelineConfig struct {
	Chunking    ChunkingConfig    `yaml:"chunking"`
	ImageFilter ImageFilterConfig `yaml:"imageFilter"`
	// EmbedBatchSize is the number of texts per embedding request, default 100.
	EmbedBatchSize int `yaml:"embedBatchSize"`
	// UpsertBatchSize is the number of vectors per upsert request, default 100.
	UpsertBatchSize int `yaml:"upsertBatchSize"`
	// MaxConcurrentBatches bounds concurrent provider batches, default 4.
	MaxConcurrentBatches int `yaml:"maxConcurrentBatches"`
	// MaxConcurrentDocuments bounds documents processed in parallel, default 4.
	MaxConcurrentDocuments int `yaml:"maxConcurrentDocuments"`
	// DocumentTimeoutSeconds aborts a hung pipeline run, default 600.
	DocumentTimeoutSeconds int `yaml:"documentTimeoutSeconds"`
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App       AppInfo         `yaml:"app"`
	Logger    LoggerConfig    `yaml:"logger"`
	Databases DatabaseConfigs `yaml:"databases"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vision    VisionConfig    `yaml:"vision"`
	Parser    ParserConfig    `yaml:"parser"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	HTTPAddr  string          `yaml:"httpAddr"`
}

// LoadConfig reads and parses the YAML configuration file, then fills in
// defaults for any pipeline knob left at zero.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	p := &c.Pipeline
	if p.Chunking.MaxCharacters <= 0 {
		p.Chunking.MaxCharacters = 1500
	}
	if p.Chunking.CombineTextUnderNChars <= 0 {
		p.Chunking.CombineTextUnderNChars = p.Chunking.MaxCharacters / 3
	}
	if p.Chunking.NewAfterNChars <= 0 {
		p.Chunking.NewAfterNChars = p.Chunking.MaxCharacters - 200
	}
	if p.ImageFilter.MinFileSizeBytes <= 0 {
		p.ImageFilter.MinFileSizeBytes = 30 * 1024
	}
	if p.ImageFilter.MinDimension <= 0 {
		p.ImageFilter.MinDimension = 200
	}
	if p.ImageFilter.MinAspectRatio <= 0 {
		p.ImageFilter.MinAspectRatio = 0.2
	}
	if p.ImageFilter.MaxAspectRatio <= 0 {
		p.ImageFilter.MaxAspectRatio = 5.0
	}
	if p.ImageFilter.MinEntropy <= 0 {
		p.ImageFilter.MinEntropy = 4.0
	}
	if p.EmbedBatchSize <= 0 {
		p.EmbedBatchSize = 100
	}
	if p.UpsertBatchSize <= 0 {
		p.UpsertBatchSize = 100
	}
	if p.MaxConcurrentBatches <= 0 {
		p.MaxConcurrentBatches = 4
	}
	if p.MaxConcurrentDocuments <= 0 {
		p.MaxConcurrentDocuments = 4
	}
	if p.DocumentTimeoutSeconds <= 0 {
		p.DocumentTimeoutSeconds = 600
	}
	if c.Parser.TimeoutSeconds <= 0 {
		c.Parser.TimeoutSeconds = 120
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
}
