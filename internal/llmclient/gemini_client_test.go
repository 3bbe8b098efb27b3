package llmclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"
)

// -- Test Setup Helpers --

// fakeContentGenerator stands in for the genai Models service so tests can
// script responses without network access.
type fakeContentGenerator struct {
	calls     int32
	responses []fakeGenerateResult
}

type fakeGenerateResult struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	attempt := int(atomic.AddInt32(&f.calls, 1)) - 1
	if attempt >= len(f.responses) {
		attempt = len(f.responses) - 1
	}
	r := f.responses[attempt]
	return r.resp, r.err
}

func (f *fakeContentGenerator) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

// setupGeminiClient assembles a GeminiClient around a scripted generator.
// It returns the client, the fake and a log observer.
func setupGeminiClient(t *testing.T, fake *fakeContentGenerator) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()

	loggerCore, observedLogs := observer.New(zap.InfoLevel)
	logger := zap.New(loggerCore)

	cfg := getValidLLMConfig()
	client := &GeminiClient{
		model:   cfg.Model,
		models:  fake,
		logger:  logger.Named("llm_client.gemini"),
		config:  cfg,
		limiter: nil,
		backoffFactory: func() backoff.BackOff {
			return backoff.NewConstantBackOff(10 * time.Millisecond)
		},
	}
	return client, observedLogs
}

// textResponse builds a response carrying a single text part.
func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: text}},
				},
				FinishReason: reason,
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 60,
			TotalTokenCount:      180,
		},
	}
}

// -- Test Cases: Initialization (NewGeminiClient) --

func TestNewGeminiClient_Failure_MissingAPIKey(t *testing.T) {
	logger := setupTestLogger(t)
	cfg := getValidLLMConfig()
	cfg.APIKey = ""

	client, err := NewGeminiClient(context.Background(), cfg, nil, logger)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "Gemini API Key is required")
}

// -- Test Cases: Generation Config (buildGenerationConfig) --

func TestBuildGenerationConfig_Standard(t *testing.T) {
	client, _ := setupGeminiClient(t, &fakeContentGenerator{})
	client.config.TopP = 0.9
	client.config.MaxTokens = 2048

	req := createTestRequest()
	req.Options.Temperature = 0.5

	genCfg := client.buildGenerationConfig(req)

	require.NotNil(t, genCfg.Temperature)
	assert.InDelta(t, 0.5, float64(*genCfg.Temperature), 1e-6)
	require.NotNil(t, genCfg.TopP)
	assert.InDelta(t, 0.9, float64(*genCfg.TopP), 1e-6)
	assert.Equal(t, int32(2048), genCfg.MaxOutputTokens)
	require.NotNil(t, genCfg.SystemInstruction)
	assert.Empty(t, genCfg.ResponseMIMEType)
}

func TestBuildGenerationConfig_Defaults(t *testing.T) {
	client, _ := setupGeminiClient(t, &fakeContentGenerator{})

	req := createTestRequest()
	req.Options.Temperature = 0
	req.Options.MaxTokens = 0
	req.SystemPrompt = ""

	genCfg := client.buildGenerationConfig(req)

	require.NotNil(t, genCfg.Temperature)
	assert.InDelta(t, float64(client.config.Temperature), float64(*genCfg.Temperature), 1e-6)
	assert.Equal(t, int32(client.config.MaxTokens), genCfg.MaxOutputTokens)
	assert.Nil(t, genCfg.SystemInstruction)
}

func TestBuildGenerationConfig_ForceJSON(t *testing.T) {
	client, _ := setupGeminiClient(t, &fakeContentGenerator{})

	req := createTestRequest()
	req.Options.ForceJSONFormat = true

	genCfg := client.buildGenerationConfig(req)

	assert.Equal(t, "application/json", genCfg.ResponseMIMEType)
}

// -- Test Cases: Response Generation (Generate) - Success Scenarios --

func TestGeminiGenerate_Success(t *testing.T) {
	expectedResponseText := "This is the generated policy."
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{resp: textResponse(expectedResponseText, genai.FinishReasonStop)},
	}}

	client, observedLogs := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.NoError(t, err)
	assert.Equal(t, expectedResponseText, response)
	assert.Equal(t, int32(1), fake.callCount())

	// Verify Logging Details (Token usage and duration)
	require.Equal(t, 1, observedLogs.Len(), "Expected one log entry for successful generation")
	logEntry := observedLogs.All()[0]
	assert.Equal(t, "LLM generation complete (Gemini)", logEntry.Message)
	assert.Equal(t, int64(120), logEntry.ContextMap()["prompt_tokens"])
	assert.Equal(t, int64(60), logEntry.ContextMap()["completion_tokens"])
	assert.NotNil(t, logEntry.ContextMap()["duration"])
}

func TestGeminiGenerate_Success_WithoutUsageMetadata(t *testing.T) {
	resp := textResponse("content", genai.FinishReasonStop)
	resp.UsageMetadata = nil
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{{resp: resp}}}

	client, observedLogs := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.NoError(t, err)
	assert.Equal(t, "content", response)

	require.Equal(t, 1, observedLogs.Len())
	_, hasTokens := observedLogs.All()[0].ContextMap()["prompt_tokens"]
	assert.False(t, hasTokens, "Token fields should be omitted when usage metadata is absent")
}

// -- Test Cases: Response Generation (Generate) - Error Handling & Retries --

func TestGeminiGenerate_RetryOnTransientAPIErrors(t *testing.T) {
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{err: genai.APIError{Code: 503, Message: "overloaded", Status: "UNAVAILABLE"}},
		{err: genai.APIError{Code: 429, Message: "rate limited", Status: "RESOURCE_EXHAUSTED"}},
		{resp: textResponse("Success after retry", genai.FinishReasonStop)},
	}}

	client, observedLogs := setupGeminiClient(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	response, err := client.Generate(ctx, createTestRequest())

	assert.NoError(t, err)
	assert.Equal(t, "Success after retry", response)
	assert.Equal(t, int32(3), fake.callCount(), "The request should have been retried until success")

	errorLogs := observedLogs.FilterLevelExact(zap.ErrorLevel)
	assert.Equal(t, 2, errorLogs.Len(), "Expected ERROR logs for the failed attempts")
	assert.Equal(t, "Gemini API returned error status", errorLogs.All()[0].Message)
}

func TestGeminiGenerate_RetryOnNetworkError(t *testing.T) {
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{err: fmt.Errorf("connection reset by peer")},
		{resp: textResponse("recovered", genai.FinishReasonStop)},
	}}

	client, observedLogs := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.NoError(t, err)
	assert.Equal(t, "recovered", response)
	assert.Equal(t, int32(2), fake.callCount())

	warnLogs := observedLogs.FilterLevelExact(zap.WarnLevel)
	require.Equal(t, 1, warnLogs.Len(), "Expected a WARN log for the network error")
	assert.Contains(t, warnLogs.All()[0].Message, "Network error during LLM request, retrying...")
}

func TestGeminiGenerate_NoRetryOnPermanentErrors(t *testing.T) {
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{err: genai.APIError{Code: 400, Message: "invalid argument", Status: "INVALID_ARGUMENT"}},
	}}

	client, observedLogs := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Empty(t, response)
	assert.Equal(t, int32(1), fake.callCount(), "Permanent errors must not trigger retries")

	var apiErr genai.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Code)

	errorLogs := observedLogs.FilterLevelExact(zap.ErrorLevel)
	require.Equal(t, 1, errorLogs.Len())
	assert.Equal(t, int64(400), errorLogs.All()[0].ContextMap()["status"])
}

func TestGeminiGenerate_Failure_SafetyBlockIsPermanent(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{FinishReason: genai.FinishReasonSafety},
		},
	}
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{{resp: blocked}}}

	client, _ := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Empty(t, response)
	assert.Contains(t, err.Error(), "gemini API blocked the request")
	assert.Equal(t, int32(1), fake.callCount(), "Safety blocks must not trigger retries")
}

func TestGeminiGenerate_Failure_EmptyContentIsTransient(t *testing.T) {
	empty := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{FinishReason: genai.FinishReasonMaxTokens},
		},
	}
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{resp: empty},
		{resp: textResponse("filled in on retry", genai.FinishReasonStop)},
	}}

	client, _ := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.NoError(t, err)
	assert.Equal(t, "filled in on retry", response)
	assert.Equal(t, int32(2), fake.callCount(), "Empty content should be retried")
}

func TestGeminiGenerate_Failure_NoCandidates(t *testing.T) {
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{resp: &genai.GenerateContentResponse{}},
	}}

	client, _ := setupGeminiClient(t, fake)

	response, err := client.Generate(context.Background(), createTestRequest())

	assert.Error(t, err)
	assert.Empty(t, response)
	assert.Contains(t, err.Error(), "gemini API returned no candidates")
	assert.Equal(t, int32(1), fake.callCount())
}

func TestGeminiGenerate_ContextCancellation(t *testing.T) {
	// A generator that always fails transiently, forcing continuous retries.
	fake := &fakeContentGenerator{responses: []fakeGenerateResult{
		{err: genai.APIError{Code: 503, Message: "overloaded", Status: "UNAVAILABLE"}},
	}}

	client, _ := setupGeminiClient(t, fake)

	// Inject a long backoff strategy to ensure cancellation happens during the wait.
	client.backoffFactory = func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	startTime := time.Now()
	response, err := client.Generate(ctx, createTestRequest())
	duration := time.Since(startTime)

	assert.Error(t, err)
	assert.Empty(t, response)
	assert.Less(t, duration, 1*time.Second, "Operation should abort quickly upon cancellation")
}

func TestGeminiClose_NoOp(t *testing.T) {
	client, _ := setupGeminiClient(t, &fakeContentGenerator{})
	assert.NoError(t, client.Close())
}
