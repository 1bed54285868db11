package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"DocFlow/internal/models"
	"DocFlow/internal/pipeline/chunker"
	"DocFlow/internal/pipeline/embedder"
	"DocFlow/internal/pipeline/imagefilter"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/internal/pipeline/vision"
	"DocFlow/pkg/logger"
)

// Pipeline runs one document end to end: download, parse, chunk, filter
// images, summarize them, embed, and upsert into the vector index. Progress
// is reported through the status sink after each stage.
type Pipeline struct {
	objects    interfaces.ObjectStore
	parser     interfaces.Parser
	chunker    *chunker.Chunker
	filter     *imagefilter.Filter
	summarizer *vision.Summarizer
	embedder   *embedder.Embedder
	index      interfaces.VectorIndex
	status     interfaces.StatusSink
	timeout    time.Duration
	log        *logger.Logger
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Objects    interfaces.ObjectStore
	Parser     interfaces.Parser
	Chunker    *chunker.Chunker
	Filter     *imagefilter.Filter
	Summarizer *vision.Summarizer
	Embedder   *embedder.Embedder
	Index      interfaces.VectorIndex
	Status     interfaces.StatusSink
}

// New creates a Pipeline. timeout bounds one document's full run; zero means
// ten minutes.
func New(deps Deps, timeout time.Duration, log *logger.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Pipeline{
		objects:    deps.Objects,
		parser:     deps.Parser,
		chunker:    deps.Chunker,
		filter:     deps.Filter,
		summarizer: deps.Summarizer,
		embedder:   deps.Embedder,
		index:      deps.Index,
		status:     deps.Status,
		timeout:    timeout,
		log:        log,
	}
}

// Run processes one document. On any stage failure the document is marked
// failed with the stage's error and the error is returned. Temp files are
// removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, doc *models.DocumentRecord, tenant models.TenantContext) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "docflow-*")
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("failed to create work dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	log := p.log.WithPayload(map[string]interface{}{
		"document_id": doc.ID,
		"user_id":     tenant.UserID,
		"file_name":   doc.FileName,
	})

	// Download.
	if err := p.setStatus(ctx, doc.ID, models.StatusDownloading); err != nil {
		return err
	}
	localPath := filepath.Join(workDir, filepath.Base(doc.FileName))
	if err := p.objects.Download(ctx, doc.FilePath, localPath); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("download failed: %w", err))
	}

	fileType := doc.FileType
	if fileType == "" {
		if mt, err := mimetype.DetectFile(localPath); err == nil {
			fileType = mt.String()
		}
	}

	// Parse.
	if err := p.setStatus(ctx, doc.ID, models.StatusParsing); err != nil {
		return err
	}
	imageDir := filepath.Join(workDir, "images")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("failed to create image dir: %w", err))
	}
	elements, err := p.parser.Parse(ctx, localPath, fileType, imageDir)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("parsing failed: %w", err))
	}

	// Chunk.
	if err := p.setStatus(ctx, doc.ID, models.StatusChunking); err != nil {
		return err
	}
	textChunks, candidates, err := p.chunker.Chunk(elements)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("chunking failed: %w", err))
	}

	// Filter image candidates.
	if err := p.setStatus(ctx, doc.ID, models.StatusFilteringImages); err != nil {
		return err
	}
	kept := p.filterCandidates(candidates)
	imageChunks := chunker.ImageChunksFromCandidates(kept, len(textChunks))

	if len(textChunks)+len(imageChunks) == 0 {
		return p.fail(ctx, doc.ID, models.NewValidationError("document produced no chunks"))
	}

	// Summarize surviving images.
	if err := p.setStatus(ctx, doc.ID, models.StatusSummarizingImages); err != nil {
		return err
	}
	if _, err := p.summarizer.Summarize(ctx, imageChunks, textChunks); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("image summarization failed: %w", err))
	}

	allChunks := make([]*models.ChunkData, 0, len(textChunks)+len(imageChunks))
	allChunks = append(allChunks, textChunks...)
	allChunks = append(allChunks, imageChunks...)

	// Embed.
	if err := p.setStatus(ctx, doc.ID, models.StatusEmbedding); err != nil {
		return err
	}
	embeddings, err := p.embedder.EmbedChunks(ctx, allChunks)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("embedding failed: %w", err))
	}

	// Upsert. Re-ingesting a document first clears its previous vectors so a
	// shrunk document does not leave stale chunks behind.
	if err := p.setStatus(ctx, doc.ID, models.StatusUpserting); err != nil {
		return err
	}
	if err := p.index.DeleteByDocument(ctx, tenant.UserID, doc.ID); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("clearing previous vectors failed: %w", err))
	}
	written, err := p.index.Upsert(ctx, allChunks, embeddings, tenant)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("upsert failed: %w", err))
	}

	if err := p.status.SetDone(ctx, doc.ID, written); err != nil {
		return err
	}
	log.WithPayload(map[string]interface{}{
		"text_chunks":  len(textChunks),
		"image_chunks": len(imageChunks),
		"written":      written,
	}).Info("Document ingested")
	return nil
}

// filterCandidates runs the relevance filter over the candidate paths and
// returns the surviving candidates in document order.
func (p *Pipeline) filterCandidates(candidates []models.ImageCandidate) []models.ImageCandidate {
	if len(candidates) == 0 {
		return nil
	}
	paths := make([]string, len(candidates))
	for i, cand := range candidates {
		paths[i] = cand.ImagePath
	}
	result := p.filter.Filter(paths)

	keptSet := make(map[string]struct{}, len(result.KeptPaths))
	for _, path := range result.KeptPaths {
		keptSet[path] = struct{}{}
	}
	kept := make([]models.ImageCandidate, 0, len(result.KeptPaths))
	for _, cand := range candidates {
		if _, ok := keptSet[cand.ImagePath]; ok {
			kept = append(kept, cand)
		}
	}
	return kept
}

func (p *Pipeline) setStatus(ctx context.Context, documentID string, status models.DocumentStatus) error {
	if err := p.status.SetStatus(ctx, documentID, status); err != nil {
		return fmt.Errorf("failed to record status %s: %w", status, err)
	}
	return nil
}

// fail marks the document failed and passes the original error through. The
// status write uses a fresh context so a cancelled run can still record why
// it stopped.
func (p *Pipeline) fail(ctx context.Context, documentID string, cause error) error {
	statusCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		statusCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := p.status.SetFailed(statusCtx, documentID, cause.Error()); err != nil {
		p.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "status_error"}).
			WithPayload(map[string]interface{}{"document_id": documentID}).
			Error("Failed to record failure status")
	}
	return cause
}
