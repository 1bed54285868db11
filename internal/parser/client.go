package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"DocFlow/internal/config"
	"DocFlow/internal/models"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/pkg/logger"
)

// partitionPath is the route of the unstructured-compatible partition API.
const partitionPath = "/general/v0/general"

// apiElement is the wire shape of one parsed element returned by the
// partition service.
type apiElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber    int    `json:"page_number"`
		ImageBase64   string `json:"image_base64"`
		ImageMimeType string `json:"image_mime_type"`
		TextAsHTML    string `json:"text_as_html"`
	} `json:"metadata"`
}

// Client calls the external structural parser service. The service receives
// the raw file and returns an ordered element list; embedded images come
// back base64-encoded and are written to a local directory so the rest of
// the pipeline can treat them as files.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *logger.Logger
}

// New creates a parser client from configuration.
func New(cfg *config.ParserConfig, log *logger.Logger) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:      log,
	}
}

// Parse sends the file to the partition service and converts the response
// into the pipeline's element model. Extracted images are written under
// imageOutputDir and referenced by path.
func (c *Client) Parse(ctx context.Context, filePath, fileType, imageOutputDir string) ([]*models.RawElement, error) {
	body, contentType, err := buildMultipartBody(filePath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+partitionPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build partition request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("unstructured-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("partition service returned %d: %s", resp.StatusCode, string(data))
	}

	var apiElements []apiElement
	if err := json.NewDecoder(resp.Body).Decode(&apiElements); err != nil {
		return nil, fmt.Errorf("failed to decode partition response: %w", err)
	}

	elements := make([]*models.RawElement, 0, len(apiElements))
	imageCount := 0
	for _, ae := range apiElements {
		elem := &models.RawElement{
			Type: normalizeType(ae.Type),
			Text: ae.Text,
			Metadata: models.ElementMetadata{
				PageNumber: ae.Metadata.PageNumber,
				TableText:  ae.Metadata.TextAsHTML,
			},
		}

		if ae.Metadata.ImageBase64 != "" {
			imagePath, err := c.writeImage(imageOutputDir, imageCount, ae.Metadata.ImageBase64, ae.Metadata.ImageMimeType)
			if err != nil {
				c.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "parser_image_error"}).
					Warn("Failed to persist extracted image, dropping it")
			} else {
				imageCount++
				if elem.Type == models.ElementImage {
					elem.Metadata.ImagePath = imagePath
				} else {
					elem.Metadata.NestedImagePaths = append(elem.Metadata.NestedImagePaths, imagePath)
				}
			}
		}

		elements = append(elements, elem)
	}

	c.log.WithPayload(map[string]interface{}{
		"file":     filepath.Base(filePath),
		"elements": len(elements),
		"images":   imageCount,
	}).Info("Parsed document")
	return elements, nil
}

// writeImage decodes one embedded image onto disk and returns its path.
func (c *Client) writeImage(dir string, index int, b64, mimeType string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("failed to decode embedded image: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("image_%03d%s", index, extensionForMime(mimeType)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write extracted image: %w", err)
	}
	return path, nil
}

func buildMultipartBody(filePath string) (io.Reader, string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file for parsing: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file into request: %w", err)
	}

	// Ask the service to extract embedded images and table structure.
	_ = writer.WriteField("extract_image_block_types", `["Image"]`)
	_ = writer.WriteField("extract_image_block_to_payload", "true")
	_ = writer.WriteField("strategy", "hi_res")

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// normalizeType maps the service's element type names onto the pipeline's
// element model. Unrecognized types degrade to Unknown, which still carries
// its text through chunking.
func normalizeType(t string) models.ElementType {
	switch t {
	case "Title", "Header":
		return models.ElementTitle
	case "NarrativeText", "Text", "UncategorizedText":
		return models.ElementNarrativeText
	case "ListItem":
		return models.ElementListItem
	case "Table":
		return models.ElementTable
	case "Image", "Figure":
		return models.ElementImage
	case "FigureCaption":
		return models.ElementFigureCaption
	case "PageBreak":
		return models.ElementPageBreak
	default:
		return models.ElementUnknown
	}
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ interfaces.Parser = (*Client)(nil)
