// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
)

// contentGenerator is the slice of the genai SDK the client depends on.
// Tests substitute it; production code passes the genai client's Models.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements the schemas.LLMClient interface on top of the
// official genai SDK.
type GeminiClient struct {
	model          string
	models         contentGenerator
	logger         *zap.Logger
	config         config.LLMModelConfig
	limiter        *rate.Limiter
	backoffFactory func() backoff.BackOff
}

// NewGeminiClient initializes the SDK client. A nil limiter disables
// client-side rate limiting.
func NewGeminiClient(ctx context.Context, cfg config.LLMModelConfig, limiter *rate.Limiter, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &GeminiClient{
		model:   cfg.Model,
		models:  client.Models,
		config:  cfg,
		limiter: limiter,
		logger:  logger.Named("llm_client.gemini"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Minute
			b.MaxInterval = 30 * time.Second
			return b
		},
	}, nil
}

// Generate sends the prompts to the Gemini API and returns the generated
// content with retries.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genCfg := c.buildGenerationConfig(req)
	contents := genai.Text(req.UserPrompt)

	var responseContent string

	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		startTime := time.Now()
		resp, err := c.models.GenerateContent(ctx, c.model, contents, genCfg)
		duration := time.Since(startTime)

		if err != nil {
			return c.classifyError(err)
		}

		if len(resp.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := resp.Candidates[0]
		text := resp.Text()
		if text == "" {
			if candidate.FinishReason == genai.FinishReasonSafety ||
				candidate.FinishReason == genai.FinishReasonProhibitedContent {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content (Reason: %s)", candidate.FinishReason)
		}

		fields := []zap.Field{
			zap.String("model", c.model),
			zap.Duration("duration", duration),
		}
		if usage := resp.UsageMetadata; usage != nil {
			fields = append(fields,
				zap.Int64("prompt_tokens", int64(usage.PromptTokenCount)),
				zap.Int64("completion_tokens", int64(usage.CandidatesTokenCount)),
				zap.Int64("total_tokens", int64(usage.TotalTokenCount)),
			)
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", err
	}

	return responseContent, nil
}

// Close is a no-op; the SDK client holds no resources that need explicit
// release.
func (c *GeminiClient) Close() error { return nil }

func (c *GeminiClient) buildGenerationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temperature := float32(req.Options.Temperature)
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens),
	}
	if c.config.TopP != 0 {
		genCfg.TopP = genai.Ptr(c.config.TopP)
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	return genCfg
}

// classifyError sorts SDK failures into retryable and permanent buckets.
// Anything that is not a recognizable API error is assumed to be a network
// problem and retried.
func (c *GeminiClient) classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("Gemini API returned error status",
			zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
		switch apiErr.Code {
		case 429, 500, 503:
			return err // Transient errors, retry.
		default:
			return backoff.Permanent(err)
		}
	}

	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return err
}
