package engines

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient asks Gemini with Google Search grounding enabled so answers
// carry the web sources they were built from.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

var _ Client = (*GeminiClient)(nil)

// GeminiConfig holds the settings for a Gemini client.
type GeminiConfig struct {
	BaseURL string // optional
	Model   string
	APIKey  string
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		logger: logger.Named("gemini"),
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Ask generates a grounded answer. Grounding sources are returned as citations.
func (c *GeminiClient) Ask(ctx context.Context, prompt string) (*Answer, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemMessage, genai.RoleUser),
			MaxOutputTokens:   maxAnswerTokens,
			Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		})
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		Text:  resp.Text(),
		Model: resp.ModelVersion,
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
			if chunk == nil {
				continue
			}
			if citation := groundingCitation(chunk.Web); citation != "" {
				answer.Citations = append(answer.Citations, citation)
			}
		}
	}

	c.logger.Debug("Content generated",
		zap.String("model", resp.ModelVersion),
		zap.Int("grounding_chunks", len(answer.Citations)))

	return answer, nil
}

// groundingRedirectHost serves the opaque redirect links Google Search
// grounding returns in place of source URLs.
const groundingRedirectHost = "vertexaisearch.cloud.google.com"

// groundingCitation returns the source URL for a grounding chunk. Redirect
// links are replaced by the source site, which the API reports in Domain or,
// on the Gemini API, in Title.
func groundingCitation(web *genai.GroundingChunkWeb) string {
	if web == nil || web.URI == "" {
		return ""
	}
	u, err := url.Parse(web.URI)
	if err != nil || !strings.EqualFold(u.Hostname(), groundingRedirectHost) {
		return web.URI
	}
	for _, site := range []string{web.Domain, web.Title} {
		site = strings.ToLower(strings.TrimSpace(site))
		if site != "" && !strings.ContainsAny(site, " /") && strings.Contains(site, ".") {
			return "https://" + site
		}
	}
	return web.URI
}
