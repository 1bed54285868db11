package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: "DocFlow"
databases:
  milvus:
    address: "localhost:19530"
    collectionName: "chunks"
    dim: 768
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	p := cfg.Pipeline
	if p.Chunking.MaxCharacters != 1500 {
		t.Errorf("MaxCharacters = %d, want 1500", p.Chunking.MaxCharacters)
	}
	if p.Chunking.CombineTextUnderNChars != 500 {
		t.Errorf("CombineTextUnderNChars = %d, want 500", p.Chunking.CombineTextUnderNChars)
	}
	if p.Chunking.NewAfterNChars != 1300 {
		t.Errorf("NewAfterNChars = %d, want 1300", p.Chunking.NewAfterNChars)
	}
	if p.ImageFilter.MinFileSizeBytes != 30*1024 {
		t.Errorf("MinFileSizeBytes = %d, want 30KB", p.ImageFilter.MinFileSizeBytes)
	}
	if p.ImageFilter.MinDimension != 200 {
		t.Errorf("MinDimension = %d, want 200", p.ImageFilter.MinDimension)
	}
	if p.ImageFilter.MinAspectRatio != 0.2 || p.ImageFilter.MaxAspectRatio != 5.0 {
		t.Errorf("aspect bounds = %v..%v", p.ImageFilter.MinAspectRatio, p.ImageFilter.MaxAspectRatio)
	}
	if p.ImageFilter.MinEntropy != 4.0 {
		t.Errorf("MinEntropy = %v, want 4.0", p.ImageFilter.MinEntropy)
	}
	if p.EmbedBatchSize != 100 || p.UpsertBatchSize != 100 {
		t.Errorf("batch sizes = %d/%d, want 100/100", p.EmbedBatchSize, p.UpsertBatchSize)
	}
	if p.DocumentTimeoutSeconds != 600 {
		t.Errorf("DocumentTimeoutSeconds = %d, want 600", p.DocumentTimeoutSeconds)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadConfig_DerivedChunkingDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  chunking:
    maxCharacters: 900
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pipeline.Chunking.CombineTextUnderNChars != 300 {
		t.Errorf("CombineTextUnderNChars = %d, want maxCharacters/3", cfg.Pipeline.Chunking.CombineTextUnderNChars)
	}
	if cfg.Pipeline.Chunking.NewAfterNChars != 700 {
		t.Errorf("NewAfterNChars = %d, want maxCharacters-200", cfg.Pipeline.Chunking.NewAfterNChars)
	}
}

func TestLoadConfig_ExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  imageFilter:
    minEntropy: 2.5
    disableDedup: true
  embedBatchSize: 32
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Pipeline.ImageFilter.MinEntropy != 2.5 {
		t.Errorf("MinEntropy = %v, want 2.5", cfg.Pipeline.ImageFilter.MinEntropy)
	}
	if !cfg.Pipeline.ImageFilter.DisableDedup {
		t.Error("DisableDedup should stay true")
	}
	if cfg.Pipeline.EmbedBatchSize != 32 {
		t.Errorf("EmbedBatchSize = %d, want 32", cfg.Pipeline.EmbedBatchSize)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "app: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}
