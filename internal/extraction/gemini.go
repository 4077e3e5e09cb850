package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini implements the Extractor interface using Google Gemini. It is
// the fallback provider: it never reports a restaurant name.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	// The prompt itself pins the output to a bare JSON object; the
	// parser strips any fencing the model adds anyway.
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// imageFormat converts a MIME type to the bare format suffix
// genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
	if format == "" || strings.Contains(format, "/") {
		return "jpeg"
	}
	return format
}

// isRateLimited classifies a Gemini call failure as a quota/throughput
// refusal.
func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(gerr.Message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate")
}

// Extract sends the receipt image to Gemini and parses the returned
// line items.
func (g *Gemini) Extract(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	parts := []genai.Part{
		genai.Text(fallbackPrompt),
		genai.ImageData(imageFormat(mimeType), image),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%v: %w", err, ErrRateLimited)
		}
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return &Result{Items: []Item{}}, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	items, receiptTotal, _, err := parsePayload(text.String())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt payload: %w", err)
	}

	return &Result{
		Items:        items,
		ReceiptTotal: receiptTotal,
	}, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
