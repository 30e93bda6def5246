// Package llm implements the narrow completion boundary SPEC_FULL.md
// §4.14 describes: a single Complete(ctx, prompt) method over
// google.golang.org/genai, kept free of any reasoning-core import so the
// kernel never depends on a model SDK. Grounded on the teacher's
// internal/core.LLMClient boundary interface and on
// internal/embedding/genai.go's genai.NewClient/Models.* call shape (only
// the client-construction and error-wrapping style is reused; embedding
// generation is a different concern than text completion).
package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"noeta/internal/logging"
)

// DefaultModel is used when Client is constructed without an explicit
// model override.
const DefaultModel = "gemini-2.0-flash"

// Client is the narrow boundary tools call through to reach an LLM
// (cmd/noeta's llmComplete and noteSummary tools); the reasoners do not
// call it.
type Client struct {
	genai *genai.Client
	model string
}

// New constructs a Client. apiKey must be non-empty; model defaults to
// DefaultModel when empty.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &Client{genai: c, model: model}, nil
}

// Complete sends prompt as a single user turn and returns the model's text
// response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, nil)
	latency := time.Since(start)
	if err != nil {
		logging.Get(logging.CategoryReason).Error("llm: GenerateContent failed after %v: %v", latency, err)
		return "", fmt.Errorf("llm: generate content: %w", err)
	}

	text := resp.Text()
	logging.ReasonDebug("llm: completed in %v, response length=%d", latency, len(text))
	return text, nil
}

// Model reports the model name this client calls.
func (c *Client) Model() string { return c.model }
