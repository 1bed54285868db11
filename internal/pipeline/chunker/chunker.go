package chunker

import (
	"fmt"
	"strings"

	"DocFlow/internal/models"
	"DocFlow/pkg/logger"
)

// sectionSentinel is the section title used before the first heading is seen.
const sectionSentinel = "Document Start"

// maxSectionTitleLen bounds the stored section title length.
const maxSectionTitleLen = 100

// Config holds the title-bounded chunking parameters.
type Config struct {
	// MaxCharacters is the hard upper bound on a chunk's content length.
	MaxCharacters int
	// CombineTextUnderNChars merges trailing sections smaller than this into
	// the previous chunk instead of emitting them alone.
	CombineTextUnderNChars int
	// NewAfterNChars is the soft boundary: once a chunk has grown past it, the
	// next element starts a new chunk.
	NewAfterNChars int
}

// DefaultConfig returns the chunking parameters used in production.
func DefaultConfig() Config {
	return Config{
		MaxCharacters:          1500,
		CombineTextUnderNChars: 500,
		NewAfterNChars:         1300,
	}
}

// Chunker splits parsed elements into title-bounded text chunks and separates
// embedded images into candidates for the relevance filter.
type Chunker struct {
	cfg Config
	log *logger.Logger
}

// New creates a Chunker. Zero config values fall back to defaults.
func New(cfg Config, log *logger.Logger) *Chunker {
	def := DefaultConfig()
	if cfg.MaxCharacters <= 0 {
		cfg.MaxCharacters = def.MaxCharacters
	}
	if cfg.CombineTextUnderNChars <= 0 {
		cfg.CombineTextUnderNChars = cfg.MaxCharacters / 3
	}
	if cfg.NewAfterNChars <= 0 || cfg.NewAfterNChars > cfg.MaxCharacters {
		cfg.NewAfterNChars = cfg.MaxCharacters - 200
	}
	return &Chunker{cfg: cfg, log: log}
}

// Chunk partitions the element sequence into text chunks and image
// candidates. Elements with no extractable text are skipped silently; an
// empty input yields two empty slices and no error.
func (c *Chunker) Chunk(elements []*models.RawElement) ([]*models.ChunkData, []models.ImageCandidate, error) {
	textElements := make([]*models.RawElement, 0, len(elements))
	candidates := make([]models.ImageCandidate, 0)

	// Single pass: separate image elements from text-bearing ones while
	// tracking the section title active at each position, so candidates know
	// where in the document they were found.
	section := sectionSentinel
	for i, el := range elements {
		if el.Type == models.ElementTitle {
			if t := strings.TrimSpace(el.Text); t != "" {
				section = truncate(t, maxSectionTitleLen)
			}
		}

		switch {
		case el.Type == models.ElementImage:
			if el.Metadata.ImagePath != "" {
				candidates = append(candidates, models.ImageCandidate{
					ImagePath:    el.Metadata.ImagePath,
					SectionTitle: section,
					Position:     i,
				})
			}
		case el.IsTextBearing():
			for _, p := range el.Metadata.NestedImagePaths {
				candidates = append(candidates, models.ImageCandidate{
					ImagePath:    p,
					SectionTitle: section,
					Position:     i,
				})
			}
			textElements = append(textElements, el)
		}
	}

	chunks := c.chunkByTitle(textElements)

	if c.log != nil {
		c.log.WithPayload(map[string]interface{}{
			"elements":         len(elements),
			"text_chunks":      len(chunks),
			"image_candidates": len(candidates),
		}).Info("Chunking complete")
	}
	return chunks, candidates, nil
}

// chunkByTitle groups text elements into chunks bounded by title elements and
// the configured size limits.
func (c *Chunker) chunkByTitle(elements []*models.RawElement) []*models.ChunkData {
	var chunks []*models.ChunkData
	section := sectionSentinel

	var (
		parts        []string
		partsLen     int
		rootType     models.ElementType
		sectionTotal int // content accumulated since the current title
	)

	flush := func() {
		if len(parts) == 0 {
			return
		}
		content := strings.Join(parts, "\n\n")
		chunks = append(chunks, models.NewTextChunk(content, section, len(chunks), string(rootType)))
		parts = nil
		partsLen = 0
	}

	for _, el := range elements {
		text := renderElementText(el)
		if text == "" {
			continue // nothing extractable, never emit an empty chunk
		}

		if el.Type == models.ElementTitle {
			// A small trailing section is merged backward instead of standing
			// alone as a near-empty chunk.
			if sectionTotal > 0 && sectionTotal < c.cfg.CombineTextUnderNChars && len(chunks) > 0 && len(parts) > 0 {
				c.mergeIntoPrevious(&chunks, parts)
				parts = nil
				partsLen = 0
			} else {
				flush()
			}
			section = truncate(text, maxSectionTitleLen)
			rootType = el.Type
			parts = append(parts, text)
			partsLen = len(text)
			sectionTotal = len(text)
			continue
		}

		// Size boundaries: hard break when the element would overflow
		// MaxCharacters, soft break once the chunk has passed NewAfterNChars.
		joined := partsLen
		if len(parts) > 0 {
			joined += 2 // separator
		}
		if len(parts) > 0 && (joined+len(text) > c.cfg.MaxCharacters || partsLen >= c.cfg.NewAfterNChars) {
			flush()
		}
		if len(parts) == 0 {
			rootType = el.Type
		}
		parts = append(parts, text)
		if partsLen > 0 {
			partsLen += 2
		}
		partsLen += len(text)
		sectionTotal += len(text)
	}

	// Final section: merge backward if it is too small to stand alone.
	if len(parts) > 0 && sectionTotal < c.cfg.CombineTextUnderNChars && len(chunks) > 0 {
		c.mergeIntoPrevious(&chunks, parts)
	} else {
		flush()
	}

	return chunks
}

// mergeIntoPrevious appends the pending parts to the last emitted chunk.
func (c *Chunker) mergeIntoPrevious(chunks *[]*models.ChunkData, parts []string) {
	prev := (*chunks)[len(*chunks)-1]
	prev.Content = prev.Content + "\n\n" + strings.Join(parts, "\n\n")
	prev.Metadata.CharCount = len(prev.Content)
}

// renderElementText returns the chunkable text of an element. Tables keep a
// [TABLE] marker so tabular origin stays visible after flattening.
func renderElementText(el *models.RawElement) string {
	text := strings.TrimSpace(el.Text)
	if el.Type == models.ElementTable {
		if t := strings.TrimSpace(el.Metadata.TableText); t != "" {
			text = t
		}
		if text == "" {
			return ""
		}
		return fmt.Sprintf("[TABLE]\n%s", text)
	}
	return text
}

// ImageChunksFromCandidates converts filtered candidates into placeholder
// image chunks whose indexes continue the text chunk sequence.
func ImageChunksFromCandidates(candidates []models.ImageCandidate, textChunkCount int) []*models.ChunkData {
	chunks := make([]*models.ChunkData, 0, len(candidates))
	for i, cand := range candidates {
		placeholder := fmt.Sprintf("[Image %d]", i+1)
		chunk := models.NewImageChunk(placeholder, cand.SectionTitle, textChunkCount+i, cand.ImagePath)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
