package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultClaudeURL   = "https://api.anthropic.com/v1/messages"
	defaultClaudeModel = "claude-sonnet-4-20250514"
	anthropicVersion   = "2023-06-01"
	claudeMaxTokens    = 4096

	requestTimeout = 60 * time.Second
)

// Claude implements the Extractor interface against the Anthropic
// messages API. It is the primary provider and the only one that
// reports a restaurant name.
type Claude struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClaude creates a new Claude Extractor instance. An empty baseURL
// selects the production endpoint.
func NewClaude(apiKey, modelName, baseURL string) (*Claude, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if modelName == "" {
		modelName = defaultClaudeModel
	}
	if baseURL == "" {
		baseURL = defaultClaudeURL
	}

	return &Claude{
		apiKey:  apiKey,
		model:   modelName,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type   string        `json:"type"`
	Source *claudeSource `json:"source,omitempty"`
	Text   string        `json:"text,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *claudeError `json:"error"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// mediaType maps an upload content type onto the media types the
// messages API accepts, defaulting to JPEG.
func mediaType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return "image/jpeg"
	case strings.Contains(ct, "png"):
		return "image/png"
	case strings.Contains(ct, "gif"):
		return "image/gif"
	case strings.Contains(ct, "webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Extract sends the receipt image to the messages API and parses the
// returned line items.
func (c *Claude) Extract(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	reqBody := claudeRequest{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		System:    systemInstruction,
		Messages: []claudeMessage{
			{
				Role: "user",
				Content: []claudeContent{
					{
						Type: "image",
						Source: &claudeSource{
							Type:      "base64",
							MediaType: mediaType(mimeType),
							Data:      base64.StdEncoding.EncodeToString(image),
						},
					},
					{
						Type: "text",
						Text: primaryPrompt,
					},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer resp.Body.Close()

	// Error responses carry a JSON body too, so the body is decoded
	// regardless of status.
	var apiResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if apiResp.Error != nil {
		msg := strings.ToLower(apiResp.Error.Message)
		if apiResp.Error.Type == "rate_limit_error" || strings.Contains(msg, "rate") || strings.Contains(msg, "quota") {
			return nil, fmt.Errorf("%s: %w", apiResp.Error.Message, ErrRateLimited)
		}
		return nil, fmt.Errorf("anthropic API error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Content) == 0 {
		return &Result{Items: []Item{}}, nil
	}

	var text strings.Builder
	for _, part := range apiResp.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}

	items, receiptTotal, restaurantName, err := parsePayload(text.String())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt payload: %w", err)
	}

	return &Result{
		Items:          items,
		ReceiptTotal:   receiptTotal,
		RestaurantName: restaurantName,
	}, nil
}

// Close closes the Claude client (no-op for HTTP client).
func (c *Claude) Close() error {
	return nil
}
