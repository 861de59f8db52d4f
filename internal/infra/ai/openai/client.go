package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"

	"idealens/internal/domain/analysis"
)

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string // optional, for OpenAI-compatible gateways
	MaxTokens int
}

// Client generates text through the chat-completions API.
type Client struct {
	api   *openai.Client
	model string
	max   int
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	max := cfg.MaxTokens
	if max <= 0 {
		max = 4000
	}
	return &Client{api: openai.NewClientWithConfig(oc), model: cfg.Model, max: max}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	// Reasoning models take MaxCompletionTokens instead of MaxTokens.
	if strings.HasPrefix(c.model, "o1") || strings.HasPrefix(c.model, "o3") ||
		strings.HasPrefix(c.model, "o4") || strings.HasPrefix(c.model, "gpt-5") {
		req.MaxCompletionTokens = c.max
	} else {
		req.MaxTokens = c.max
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("model returned no choices",
			goerr.V("model", c.model), goerr.T(analysis.TagMalformed))
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return goerr.Wrap(err, "model rejected credentials", goerr.T(analysis.TagAuth))
		case 429:
			return goerr.Wrap(err, "model rate limited", goerr.T(analysis.TagRateLimited))
		}
	}
	return goerr.Wrap(err, "chat completion failed")
}
