package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// OpenAIClient implements schemas.LLMClient for OpenAI and any endpoint that
// speaks the chat completions protocol.
type OpenAIClient struct {
	client openai.Client
	config config.LLMModelConfig
	tokens *TokenCounter
	logger *zap.Logger
}

var _ schemas.LLMClient = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The agent loop owns failure handling; a failed call becomes a fallback plan.
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: cfg,
		tokens: NewTokenCounter(cfg.Model),
		logger: logger.Named("llm_client.openai"),
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if c.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.APITimeout)
		defer cancel()
	}

	if c.logger.Core().Enabled(zap.DebugLevel) {
		if n, err := c.tokens.Count(req.SystemPrompt + req.UserPrompt); err == nil {
			c.logger.Debug("Prompt size estimated.", zap.Int("prompt_tokens_estimate", n))
		}
	}

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned an empty completion (finish reason: %s)", completion.Choices[0].FinishReason)
	}

	c.logger.Debug("LLM generation complete.",
		zap.Duration("duration", time.Since(start)),
		zap.String("model", c.config.Model),
		zap.Int64("prompt_tokens", completion.Usage.PromptTokens),
		zap.Int64("completion_tokens", completion.Usage.CompletionTokens),
	)
	return text, nil
}

func (c *OpenAIClient) params(req schemas.GenerationRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	temp := req.Options.Temperature
	if temp == 0 {
		temp = float64(c.config.Temperature)
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	p := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.config.Model),
		Messages:    messages,
		Temperature: openai.Float(temp),
	}
	if maxTokens > 0 {
		p.MaxTokens = openai.Int(int64(maxTokens))
	}
	if req.Options.ForceJSONFormat {
		p.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return p
}

func (c *OpenAIClient) Close() error {
	return nil
}
