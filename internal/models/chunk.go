package models

import "github.com/google/uuid"

// ChunkType distinguishes the two kinds of retrievable chunks.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeImage ChunkType = "image"
)

// ChunkMetadata is the small fixed set of optional per-chunk fields. Keeping
// it a typed record (instead of an open map) makes the metadata size budget
// checkable at upsert time.
type ChunkMetadata struct {
	ElementType   string `json:"element_type,omitempty"`
	CharCount     int    `json:"char_count,omitempty"`
	ImagePath     string `json:"image_path,omitempty"`
	ImageTooLarge bool   `json:"image_too_large,omitempty"`
}

// ChunkData is the retrievable unit flowing through the ingestion pipeline.
// For image chunks, Content and ImageSummary both hold the vision-generated
// description once summarization has run.
type ChunkData struct {
	ID           string        `json:"id"`
	Content      string        `json:"content"`
	SectionTitle string        `json:"section_title"`
	ChunkIndex   int           `json:"chunk_index"`
	ChunkType    ChunkType     `json:"chunk_type"`
	HasImage     bool          `json:"has_image"`
	ImageSummary string        `json:"image_summary,omitempty"`
	ImageB64     string        `json:"image_b64,omitempty"`
	Metadata     ChunkMetadata `json:"metadata"`
}

// NewTextChunk creates a text chunk with a fresh identifier.
func NewTextChunk(content, sectionTitle string, index int, elementType string) *ChunkData {
	return &ChunkData{
		ID:           uuid.New().String(),
		Content:      content,
		SectionTitle: sectionTitle,
		ChunkIndex:   index,
		ChunkType:    ChunkTypeText,
		Metadata: ChunkMetadata{
			ElementType: elementType,
			CharCount:   len(content),
		},
	}
}

// NewImageChunk creates an image chunk whose content is a placeholder until
// the visual summarizer fills it in.
func NewImageChunk(placeholder, sectionTitle string, index int, imagePath string) *ChunkData {
	return &ChunkData{
		ID:           uuid.New().String(),
		Content:      placeholder,
		SectionTitle: sectionTitle,
		ChunkIndex:   index,
		ChunkType:    ChunkTypeImage,
		HasImage:     true,
		Metadata: ChunkMetadata{
			ElementType: string(ElementImage),
			ImagePath:   imagePath,
		},
	}
}

// ImageCandidate is a transient record produced during chunking, before the
// relevance filter has run. It never leaves a single pipeline run.
type ImageCandidate struct {
	ImagePath    string
	SectionTitle string
	Position     int
}

// SkipReason names the heuristic that discarded an image candidate.
type SkipReason string

const (
	SkipFileNotFound   SkipReason = "file_not_found"
	SkipTooSmallBytes  SkipReason = "too_small_bytes"
	SkipTooSmallDims   SkipReason = "too_small_dims"
	SkipBadAspectRatio SkipReason = "bad_aspect_ratio"
	SkipLowEntropy     SkipReason = "low_entropy"
	SkipDuplicate      SkipReason = "duplicate"
)

// FilterResult reports the outcome of one image-filtering call.
type FilterResult struct {
	KeptPaths    []string
	SkippedCount int
	SkipReasons  map[SkipReason]int
}

// TenantContext identifies the owner of an ingestion run. Every vector
// written for the run carries these fields in its metadata.
type TenantContext struct {
	UserID     string
	TopicID    string
	TopicName  string
	DocumentID string
	FileName   string
	FileURL    string
}
