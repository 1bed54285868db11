package parser

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"DocFlow/internal/config"
	"DocFlow/internal/models"
	"DocFlow/pkg/logger"

	"github.com/sirupsen/logrus"
)

func testParserLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("parser-test", "", "")
}

func writeInputFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatalf("failed to write input file: %v", err)
	}
	return path
}

func newTestClient(serverURL string) *Client {
	return New(&config.ParserConfig{
		Endpoint:       serverURL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	}, testParserLogger())
}

func TestParse_DecodesElementsAndWritesImages(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47}
	encoded := base64.StdEncoding.EncodeToString(imageBytes)

	var gotPath, gotKey, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("unstructured-api-key")
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("request is not multipart: %v", err)
		}
		if r.FormValue("extract_image_block_to_payload") != "true" {
			t.Error("image extraction should be requested in the payload")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"type": "Title", "text": "Revenue", "metadata": {"page_number": 1}},
			{"type": "NarrativeText", "text": "Sales grew.", "metadata": {"page_number": 1}},
			{"type": "Table", "text": "Q1 100", "metadata": {"text_as_html": "<table></table>"}},
			{"type": "Image", "text": "", "metadata": {"image_base64": "` + encoded + `", "image_mime_type": "image/png"}},
			{"type": "SomethingNew", "text": "odd block", "metadata": {}}
		]`))
	}))
	defer server.Close()

	imageDir := t.TempDir()
	elements, err := newTestClient(server.URL).Parse(context.Background(), writeInputFile(t), "application/pdf", imageDir)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if gotPath != "/general/v0/general" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data") {
		t.Errorf("content type = %q", gotContentType)
	}

	if len(elements) != 5 {
		t.Fatalf("got %d elements, want 5", len(elements))
	}
	if elements[0].Type != models.ElementTitle || elements[0].Text != "Revenue" {
		t.Errorf("element[0] = %+v", elements[0])
	}
	if elements[0].Metadata.PageNumber != 1 {
		t.Errorf("page number = %d", elements[0].Metadata.PageNumber)
	}
	if elements[2].Type != models.ElementTable || elements[2].Metadata.TableText == "" {
		t.Errorf("table element = %+v", elements[2])
	}
	if elements[4].Type != models.ElementUnknown {
		t.Errorf("unrecognized type should degrade to Unknown, got %q", elements[4].Type)
	}

	imagePath := elements[3].Metadata.ImagePath
	if imagePath == "" {
		t.Fatal("image element has no local path")
	}
	if filepath.Dir(imagePath) != imageDir {
		t.Errorf("image written outside output dir: %s", imagePath)
	}
	if filepath.Ext(imagePath) != ".png" {
		t.Errorf("image extension = %q, want .png", filepath.Ext(imagePath))
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		t.Fatalf("failed to read extracted image: %v", err)
	}
	if string(data) != string(imageBytes) {
		t.Error("extracted image bytes do not round-trip")
	}
}

func TestParse_NestedImageOnTextElement(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("img"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"type": "Table", "text": "cells", "metadata": {"image_base64": "` + encoded + `", "image_mime_type": "image/jpeg"}}
		]`))
	}))
	defer server.Close()

	elements, err := newTestClient(server.URL).Parse(context.Background(), writeInputFile(t), "application/pdf", t.TempDir())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("got %d elements, want 1", len(elements))
	}
	if elements[0].Metadata.ImagePath != "" {
		t.Error("non-image element must not claim the primary image path")
	}
	if len(elements[0].Metadata.NestedImagePaths) != 1 {
		t.Fatalf("nested image paths = %v", elements[0].Metadata.NestedImagePaths)
	}
	if filepath.Ext(elements[0].Metadata.NestedImagePaths[0]) != ".jpg" {
		t.Errorf("nested image extension = %q, want .jpg", filepath.Ext(elements[0].Metadata.NestedImagePaths[0]))
	}
}

func TestParse_ServiceErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Parse(context.Background(), writeInputFile(t), "application/pdf", t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should carry the status code, got %v", err)
	}
}

func TestParse_MissingInputFile(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Parse(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), "application/pdf", t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}
