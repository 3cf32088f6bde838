package openrouter

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// probeMaxTokens keeps generation calls cheap; a probe only needs a reply.
const probeMaxTokens = 64

// Generator calls a model by id through OpenRouter's OpenAI-compatible
// chat completions endpoint.
type Generator struct {
	client *openai.Client
}

// NewGenerator creates a Generator that shares the client's credentials,
// base URL and HTTP transport.
func (c *Client) NewGenerator() *Generator {
	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.httpClient
	return &Generator{client: openai.NewClientWithConfig(cfg)}
}

// Generate sends prompt as a single user message to modelID and returns the
// first choice's text. Errors keep the provider's message so callers can
// classify them.
func (g *Generator) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: probeMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter: %s: %w", modelID, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter: %s: empty response", modelID)
	}
	return resp.Choices[0].Message.Content, nil
}

// rateLimitSignatures are the lower-cased fragments OpenRouter and upstream
// providers put in per-minute quota errors. Daily quotas do not match: a
// cooldown cannot clear them.
var rateLimitSignatures = []string{
	"free-models-per-min",
	"requests per minute",
	"requests/min",
	"per-minute",
	"per minute",
}

// IsRateLimited reports whether err signals per-minute quota exhaustion. The
// status code alone is not enough: OpenRouter answers 429 for daily quotas
// too, so only the message decides.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
