package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements Generator on top of the Google generative
// AI API. One client is shared by the whole process.
type GeminiClient struct {
	client  *genai.Client
	limiter *RateLimiter
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, apiKey string, rateLimitRPS, timeoutMs int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ai: missing API key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ai: create client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		limiter: NewRateLimiter(rateLimitRPS),
		timeout: time.Duration(timeoutMs) * time.Millisecond,
	}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func (c *GeminiClient) Generate(ctx context.Context, model, prompt string, media *Media) (string, int, error) {
	c.limiter.WaitTurn()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	gm := c.client.GenerativeModel(model)
	gm.SetTemperature(0.1)

	parts := []genai.Part{genai.Text(prompt)}
	if media != nil {
		parts = append(parts, genai.Blob{MIMEType: media.MIMEType, Data: media.Data})
	}

	resp, err := gm.GenerateContent(ctx, parts...)
	if err != nil {
		return "", 0, fmt.Errorf("ai: generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0, fmt.Errorf("ai: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out := sb.String()

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	if tokens == 0 {
		// rough accounting when the API omits usage
		tokens = (len(prompt) + len(out)) / 4
	}
	return out, tokens, nil
}
