package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"DocFlow/internal/models"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/pkg/logger"
	"DocFlow/pkg/retry"
)

const (
	// contextChunkWindow is how many preceding text chunks feed the vision
	// prompt as document context.
	contextChunkWindow = 3
	// contextChunkChars truncates each context chunk.
	contextChunkChars = 200
	// contextMaxChars caps the assembled context string.
	contextMaxChars = 500
	// maxInlineB64Bytes is the largest data-URI we attach to a chunk. It
	// leaves headroom below the index's 40KB metadata limit for the other
	// metadata fields.
	maxInlineB64Bytes = 35000
)

// Summarizer resolves image chunks into text by calling the vision provider,
// one bounded-retry call per image. A failed image degrades to a fallback
// description instead of failing the document.
type Summarizer struct {
	model       interfaces.VisionModel
	policy      retry.Policy
	concurrency int
	log         *logger.Logger
}

// New creates a Summarizer. concurrency bounds parallel provider calls; zero
// means sequential.
func New(model interfaces.VisionModel, policy retry.Policy, concurrency int, log *logger.Logger) *Summarizer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Summarizer{model: model, policy: policy, concurrency: concurrency, log: log}
}

// Summarize fills in Content, ImageSummary and ImageB64 for every image
// chunk. Text chunks supply nearby context for the prompt. The input slice is
// modified in place and returned.
func (s *Summarizer) Summarize(ctx context.Context, imageChunks, textChunks []*models.ChunkData) ([]*models.ChunkData, error) {
	if len(imageChunks) == 0 {
		return imageChunks, nil
	}

	contextText := contextFromTextChunks(textChunks)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, chunk := range imageChunks {
		chunk := chunk
		g.Go(func() error {
			s.summarizeChunk(gCtx, chunk, contextText)
			return nil // per-image failures are absorbed, not propagated
		})
	}
	if err := g.Wait(); err != nil {
		return imageChunks, err
	}
	return imageChunks, nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, chunk *models.ChunkData, contextText string) {
	imagePath := chunk.Metadata.ImagePath
	if imagePath == "" {
		chunk.Content = "[Image: no file path available]"
		chunk.ImageSummary = chunk.Content
		return
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		chunk.Content = "[Image: file not found]"
		chunk.ImageSummary = chunk.Content
		return
	}
	mime := mimeForExtension(imagePath)

	var summary string
	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		summary, callErr = s.model.Describe(ctx, data, mime, contextText)
		return callErr
	})
	if err != nil {
		// Fail soft: one bad image must not abort the document.
		if s.log != nil {
			s.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "vision_error"}).
				WithPayload(map[string]interface{}{"image_path": imagePath, "attempts": attempts}).
				Warn("Vision summarization failed, using fallback description")
		}
		summary = fmt.Sprintf("[Image: unable to analyze - %s]", truncate(err.Error(), 50))
	}

	chunk.Content = summary
	chunk.ImageSummary = summary

	encoded := encodeDataURI(data, mime)
	if len(encoded) > maxInlineB64Bytes {
		// Degrade instead of blowing the index's metadata budget later.
		chunk.ImageB64 = ""
		chunk.Metadata.ImageTooLarge = true
		if s.log != nil {
			s.log.WithPayload(map[string]interface{}{
				"image_path": imagePath,
				"b64_bytes":  len(encoded),
			}).Warn("Encoded image exceeds metadata budget, dropping payload")
		}
		return
	}
	chunk.ImageB64 = encoded
}

// contextFromTextChunks concatenates the tail of the text chunk sequence
// into a bounded context string.
func contextFromTextChunks(textChunks []*models.ChunkData) string {
	if len(textChunks) == 0 {
		return ""
	}
	start := len(textChunks) - contextChunkWindow
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, contextChunkWindow)
	for _, c := range textChunks[start:] {
		parts = append(parts, truncate(c.Content, contextChunkChars))
	}
	return truncate(strings.Join(parts, " "), contextMaxChars)
}

func encodeDataURI(data []byte, mime string) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

func mimeForExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
