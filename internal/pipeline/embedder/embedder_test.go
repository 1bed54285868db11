package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"DocFlow/internal/models"
	"DocFlow/pkg/retry"
)

// fakeModel embeds each text as a one-element vector carrying its global
// position, so order can be verified after concurrent batching.
type fakeModel struct {
	mu         sync.Mutex
	batchSizes []int
	texts      []string
	fail       func(batch int) error
	batches    int
}

func (f *fakeModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches++
	batch := f.batches
	f.batchSizes = append(f.batchSizes, len(texts))
	f.texts = append(f.texts, texts...)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(batch); err != nil {
			return nil, err
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		var pos int
		fmt.Sscanf(text, "text-%d", &pos)
		out[i] = []float32{float32(pos)}
	}
	return out, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 1}
}

func TestEmbedTexts_BatchesAndPreservesOrder(t *testing.T) {
	model := &fakeModel{}
	e := New(model, Config{BatchSize: 100, MaxConcurrentBatches: 4}, fastPolicy(), nil)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	embeddings, err := e.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(embeddings) != 250 {
		t.Fatalf("got %d embeddings, want 250", len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != 1 || emb[0] != float32(i) {
			t.Fatalf("embedding %d out of order: %v", i, emb)
		}
	}

	if len(model.batchSizes) != 3 {
		t.Fatalf("got %d batches, want 3", len(model.batchSizes))
	}
	total := 0
	sawPartial := false
	for _, size := range model.batchSizes {
		total += size
		if size == 50 {
			sawPartial = true
		} else if size != 100 {
			t.Errorf("unexpected batch size %d", size)
		}
	}
	if total != 250 || !sawPartial {
		t.Errorf("batch sizes = %v", model.batchSizes)
	}
}

func TestEmbedTexts_RetriesFailedBatch(t *testing.T) {
	var failed bool
	var mu sync.Mutex
	model := &fakeModel{fail: func(batch int) error {
		mu.Lock()
		defer mu.Unlock()
		if !failed {
			failed = true
			return errors.New("rate limited")
		}
		return nil
	}}
	e := New(model, Config{BatchSize: 10, MaxConcurrentBatches: 1}, fastPolicy(), nil)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	embeddings, err := e.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(embeddings) != 20 {
		t.Fatalf("got %d embeddings, want 20", len(embeddings))
	}
}

func TestEmbedTexts_ExhaustedRetriesSurfaceProviderError(t *testing.T) {
	model := &fakeModel{fail: func(int) error { return errors.New("quota exceeded") }}
	e := New(model, Config{BatchSize: 10, MaxConcurrentBatches: 1}, fastPolicy(), nil)

	_, err := e.EmbedTexts(context.Background(), []string{"text-0"})
	if err == nil {
		t.Fatal("expected an error after exhausted retries")
	}

	var provErr *models.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error type = %T, want *models.ProviderError", err)
	}
	if provErr.Provider != "embedding" {
		t.Errorf("Provider = %q", provErr.Provider)
	}
	if provErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", provErr.Attempts)
	}
}

func TestEmbedTexts_VectorCountMismatch(t *testing.T) {
	e := New(&shortModel{}, Config{BatchSize: 10, MaxConcurrentBatches: 1}, fastPolicy(), nil)

	_, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	var provErr *models.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %v, want *models.ProviderError", err)
	}
}

// shortModel returns one vector fewer than requested.
type shortModel struct{}

func (s *shortModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for range texts[:len(texts)-1] {
		out = append(out, []float32{0})
	}
	return out, nil
}

func TestEmbeddingText_SectionContext(t *testing.T) {
	chunk := &models.ChunkData{
		Content:      "body text",
		SectionTitle: "Results",
		ChunkType:    models.ChunkTypeText,
	}
	got := EmbeddingText(chunk)
	want := "Section: Results\n\nbody text"
	if got != want {
		t.Errorf("EmbeddingText() = %q, want %q", got, want)
	}
}

func TestEmbeddingText_ImageChunkUsesDescription(t *testing.T) {
	chunk := &models.ChunkData{
		Content:      "a bar chart of revenue",
		SectionTitle: "Figures",
		ChunkType:    models.ChunkTypeImage,
		ImageSummary: "a bar chart of revenue",
	}
	got := EmbeddingText(chunk)
	want := "Section: Figures\n\nImage Description: a bar chart of revenue"
	if got != want {
		t.Errorf("EmbeddingText() = %q, want %q", got, want)
	}
}

func TestEmbeddingText_NoSection(t *testing.T) {
	chunk := &models.ChunkData{Content: "bare text", ChunkType: models.ChunkTypeText}
	if got := EmbeddingText(chunk); got != "bare text" {
		t.Errorf("EmbeddingText() = %q", got)
	}
}

func TestEmbedChunks_TruncatesLongText(t *testing.T) {
	model := &fakeModel{}
	e := New(model, Config{BatchSize: 10, MaxConcurrentBatches: 1}, fastPolicy(), nil)

	chunk := &models.ChunkData{
		Content:   strings.Repeat("x", 40000),
		ChunkType: models.ChunkTypeText,
	}
	if _, err := e.EmbedChunks(context.Background(), []*models.ChunkData{chunk}); err != nil {
		t.Fatalf("EmbedChunks() error = %v", err)
	}
	if len(model.texts) != 1 {
		t.Fatalf("expected 1 text sent, got %d", len(model.texts))
	}
	if len(model.texts[0]) != 8191*4 {
		t.Errorf("sent text length = %d, want %d", len(model.texts[0]), 8191*4)
	}
}

func TestEmbedTexts_Empty(t *testing.T) {
	model := &fakeModel{}
	e := New(model, Config{}, fastPolicy(), nil)

	embeddings, err := e.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedTexts(nil) error = %v", err)
	}
	if embeddings != nil {
		t.Errorf("expected nil result for empty input")
	}
	if model.batches != 0 {
		t.Errorf("provider called %d times for empty input", model.batches)
	}
}
