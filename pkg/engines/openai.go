package engines

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// maxAnswerTokens bounds answer length for every provider.
const maxAnswerTokens = 1024

const systemMessage = "You are a helpful assistant answering a search query. Be specific and cite sources."

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
// ChatGPT, Perplexity and Azure-hosted Copilot models are all reached this way.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Client = (*OpenAIClient)(nil)

// OpenAIConfig holds the settings for an OpenAI-compatible client.
type OpenAIConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	Model   string
	APIKey  string
	// Azure selects api-key authentication and deployment-style URLs.
	Azure bool
}

// NewOpenAIClient creates an OpenAI-compatible chat client.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	var clientConfig openai.ClientConfig
	if cfg.Azure {
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, baseURL)
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("openai"),
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Ask sends prompt as a single user turn. Provider errors are returned
// unwrapped so ClassifyError can read their status codes.
func (c *OpenAIClient) Ask(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxAnswerTokens,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Type: ErrorTypeEmpty, Message: "no choices in response", Retryable: true, Model: c.model}
	}

	c.logger.Debug("Chat completion finished",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return &Answer{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
	}, nil
}
