package rewriter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type anthropicBackend struct {
	httpClient *http.Client
	baseURL    string
}

func (b *anthropicBackend) complete(ctx context.Context, creds Credentials, system, user string) (string, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
		option.WithHTTPClient(b.httpClient),
		option.WithMaxRetries(0),
	}
	if b.baseURL != "" {
		opts = append(opts, option.WithBaseURL(b.baseURL))
	}
	client := anthropic.NewClient(opts...)

	model := creds.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no text in anthropic response")
	}
	return out.String(), nil
}
