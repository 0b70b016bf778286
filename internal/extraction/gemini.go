package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcribePrompt asks for a faithful plain-text transcription in
// reading order so tokens can be reconstructed line by line.
const transcribePrompt = `Transcribe ALL text visible in this document image.

Rules:
- Output plain text only, one line of output per visual line in the image.
- Preserve the top-to-bottom, left-to-right reading order.
- Do not summarize, translate, correct, or annotate anything.
- Do not use markdown code blocks.`

// geminiDefaultConfidence is assigned to every token because the model
// reports no per-token confidence. 0.6 is deliberately conservative so
// vision-transcribed fields always land in the review band unless the
// recognizer match is equally strong.
const geminiDefaultConfidence = 0.6

// GeminiLocator implements Locator using Gemini vision transcription.
// Bounding boxes are synthesized as horizontal line bands since the
// model returns text, not geometry.
type GeminiLocator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiLocator creates a Gemini-backed locator.
func NewGeminiLocator(apiKey, modelName string) (*GeminiLocator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrEngineUnavailable)
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", ErrEngineUnavailable, err)
	}

	return &GeminiLocator{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Locate transcribes one page and rebuilds tokens from the returned
// lines.
func (g *GeminiLocator) Locate(ctx context.Context, page *PageImage) ([]Token, error) {
	parts := []genai.Part{
		genai.ImageData("png", page.Data),
		genai.Text(transcribePrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrPageTimeout, page.Index, ctx.Err())
		}
		return nil, fmt.Errorf("generating transcription: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no transcription from gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return tokensFromLines(text.String(), page), nil
}

// Close closes the underlying client.
func (g *GeminiLocator) Close() error {
	return g.client.Close()
}

// tokensFromLines splits transcribed text into word tokens. Each line
// gets an equal-height band of the page, each word an equal slice of the
// line width, so downstream positional heuristics (top-of-page vendor,
// bottom-of-page total) still work.
func tokensFromLines(text string, page *PageImage) []Token {
	lines := make([]string, 0)
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 0 {
		return nil
	}

	lineHeight := page.Height / len(lines)
	if lineHeight < 1 {
		lineHeight = 1
	}

	var tokens []Token
	for i, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		wordWidth := page.Width / len(words)
		if wordWidth < 1 {
			wordWidth = 1
		}
		for j, word := range words {
			tokens = append(tokens, Token{
				Text: word,
				BBox: BBox{
					X:      j * wordWidth,
					Y:      i * lineHeight,
					Width:  wordWidth,
					Height: lineHeight,
				},
				Confidence: geminiDefaultConfidence,
				PageIndex:  page.Index,
			})
		}
	}
	return tokens
}
