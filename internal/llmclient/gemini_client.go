// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// GeminiClient implements schemas.LLMClient on the Google Gen AI SDK.
type GeminiClient struct {
	client *genai.Client
	config config.LLMModelConfig
	logger *zap.Logger
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient builds a client against the Gemini API. A non empty
// cfg.Endpoint replaces the SDK's base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends one prompt and returns the concatenated text of the first
// candidate. An empty completion is an error.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.UserPrompt), c.generationConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		reason := "unknown"
		if len(resp.Candidates) > 0 {
			reason = string(resp.Candidates[0].FinishReason)
		}
		return "", fmt.Errorf("gemini returned an empty completion (finish reason: %s)", reason)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(start)), zap.String("model", c.config.Model)}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	c.logger.Debug("LLM generation complete.", fields...)
	return text, nil
}

func (c *GeminiClient) generationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temp := float32(req.Options.Temperature)
	if req.Options.Temperature == 0 {
		temp = c.config.Temperature
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](temp),
	}
	if maxTokens > 0 {
		gc.MaxOutputTokens = int32(maxTokens)
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		gc.ResponseMIMEType = "application/json"
	}
	return gc
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *GeminiClient) Close() error {
	return nil
}
