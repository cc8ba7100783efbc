// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// keyHint names the environment variable users are expected to set.
var keyHint = map[config.LLMProvider]string{
	config.ProviderGemini: "GEMINI_API_KEY",
	config.ProviderOpenAI: "OPENAI_API_KEY",
}

// NewClient builds the planner client for cfg.Provider, wrapped in a rate
// limiter when cfg.RequestsPerMinute is positive.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LLM configuration: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %q: set %s or WEBPILOT_API_KEY", cfg.Provider, keyHint[cfg.Provider])
	}

	var (
		client schemas.LLMClient
		err    error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q. Supported: [%s, %s]", cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		logger.Debug("Planner rate limit enabled.", zap.Int("requests_per_minute", cfg.RequestsPerMinute))
		client = NewRateLimitedClient(client, cfg.RequestsPerMinute)
	}
	return client, nil
}
