package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// visionPrompt instructs the model to turn figures and tables into
// self-contained textual explanations suitable for single-vector retrieval.
const visionPrompt = `You convert images, figures, diagrams, and tables from documents into
clear, self-contained textual explanations. The output is stored as the full
textual representation of the visual content and embedded for retrieval, so
the reader may never see the image itself.

Structure your answer as:
- Visual Type
- What This Visual Explains (Big Idea)
- Detailed Explanation
- Relationships & Comparisons
- Key Takeaway

Write complete sentences. Describe every meaningful component (nodes, arrows,
axes, rows, columns) and the relationships between them. Do not invent
information that is not visible in the visual.`

// GeminiVision is a multimodal Gemini client used to summarize images.
type GeminiVision struct {
	model *genai.GenerativeModel
}

// NewGeminiVision creates a vision client for the given model name.
func NewGeminiVision(ctx context.Context, apiKey, modelName string) (*GeminiVision, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(visionPrompt)},
	}
	temp := float32(0.3)
	maxTokens := int32(1024)
	model.Temperature = &temp
	model.MaxOutputTokens = &maxTokens

	return &GeminiVision{model: model}, nil
}

// Describe sends the image plus optional surrounding text to the model and
// returns the generated description.
func (g *GeminiVision) Describe(ctx context.Context, image []byte, mimeType, contextText string) (string, error) {
	prompt := "Describe this image in detail:"
	if contextText != "" {
		prompt = fmt.Sprintf("Context from document:\n%s\n\nDescribe this image:", contextText)
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.Text(prompt),
		genai.Blob{MIMEType: mimeType, Data: image},
	)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("vision response was empty")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", fmt.Errorf("vision response contained no text part")
}
