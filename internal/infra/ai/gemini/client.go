package gemini

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Client is the fallback text generator, used when the primary model
// stays unreachable through its retry budget.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to init gemini client")
	}
	return &Client{client: c, model: model}, nil
}

func NewClientFromClient(c *genai.Client, model string) *Client {
	return &Client{client: c, model: model}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", goerr.Wrap(err, "gemini generation failed", goerr.V("model", c.model))
	}
	return resp.Text(), nil
}
