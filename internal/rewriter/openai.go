package rewriter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIBackend struct {
	httpClient *http.Client
	baseURL    string
}

func (b *openAIBackend) complete(ctx context.Context, creds Credentials, system, user string) (string, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
		option.WithHTTPClient(b.httpClient),
		option.WithMaxRetries(0),
	}
	if b.baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(b.baseURL, "/")+"/v1/"))
	}
	client := openai.NewClient(opts...)

	model := creds.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.4),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			endpoint := ""
			if apiErr.Request != nil {
				endpoint = apiErr.Request.URL.String()
			}
			return "", &APIError{StatusCode: apiErr.StatusCode, Message: msg, Endpoint: endpoint}
		}
		return "", fmt.Errorf("openai API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
