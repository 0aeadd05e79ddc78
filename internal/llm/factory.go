package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dyike/StockChat/config"
)

const defaultDeepSeekModel = "deepseek-chat"

// New builds the client for cfg.LLMProvider. cfg should already carry
// environment overrides.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Client, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewResponsesClient(apiKey, cfg.LLMModel,
			WithBaseURL(cfg.LLMBaseURL),
			WithTimeout(cfg.LLMTimeout()),
			WithMaxTokens(cfg.MaxTokens),
		), nil
	case config.ProviderOpenAIChat:
		return NewOpenAIChatClient(ctx, apiKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.MaxTokens, logger)
	case config.ProviderDeepSeek:
		model := cfg.LLMModel
		if model == "" || model == config.Defaults().LLMModel {
			model = defaultDeepSeekModel
		}
		return NewDeepSeekClient(ctx, apiKey, cfg.LLMBaseURL, model, cfg.MaxTokens, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}
