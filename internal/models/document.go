package models

import "time"

// DocumentStatus tracks a document through the ingestion state machine.
// Every stage may transition to failed; done and failed are terminal.
type DocumentStatus string

const (
	StatusPending          DocumentStatus = "pending"
	StatusDownloading      DocumentStatus = "downloading"
	StatusParsing          DocumentStatus = "parsing"
	StatusChunking         DocumentStatus = "chunking"
	StatusFilteringImages  DocumentStatus = "filtering_images"
	StatusSummarizingImages DocumentStatus = "summarizing_images"
	StatusEmbedding        DocumentStatus = "embedding"
	StatusUpserting        DocumentStatus = "upserting"
	StatusDone             DocumentStatus = "done"
	StatusFailed           DocumentStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DocumentStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// DocumentRecord is the persisted record of one uploaded document.
type DocumentRecord struct {
	ID           string         `bson:"_id" json:"id"`
	UserID       string         `bson:"user_id" json:"user_id"`
	TopicID      string         `bson:"topic_id" json:"topic_id"`
	FileName     string         `bson:"file_name" json:"file_name"`
	FilePath     string         `bson:"file_path" json:"file_path"` // object key in storage
	FileType     string         `bson:"file_type" json:"file_type"`
	Status       DocumentStatus `bson:"status" json:"status"`
	ChunkCount   int            `bson:"chunk_count" json:"chunk_count"`
	ErrorMessage string         `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at" json:"updated_at"`
}

// TopicRecord groups a user's documents under a named topic.
type TopicRecord struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// IngestTask is the queue message that triggers one document's pipeline run.
type IngestTask struct {
	DocumentID  string    `json:"document_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}
