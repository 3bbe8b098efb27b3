// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
)

// NewClient is a factory function that creates an LLMClient based on the
// model configuration. The limiter is shared between clients built for the
// same provider account so the combined request rate stays within quota.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, limiter *rate.Limiter, logger *zap.Logger) (schemas.LLMClient, error) {
	// Using constants defined in config package to avoid magic strings.
	switch cfg.Provider {
	case config.ProviderGroq:
		return NewGroqClient(cfg, limiter, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, limiter, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGroq, config.ProviderGemini)
	}
}
