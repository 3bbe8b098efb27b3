package drafter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/llmutil"
)

const (
	draftTemperature = 0.3
	draftMaxTokens   = 1500

	defaultDraftTimeout = 45 * time.Second
	minDraftTimeout     = 30 * time.Second
	maxDraftTimeout     = 60 * time.Second

	defaultFastModel     = "llama-3.1-8b-instant"
	defaultPowerfulModel = "llama-3.3-70b-versatile"
)

// Config carries the drafter's tunables. The timeout applies per generation
// attempt, not per record; a record that times out once is retried once.
type Config struct {
	Timeout       time.Duration
	FastModel     string
	PowerfulModel string
}

// Drafter generates one policy document per vulnerability record. It owns
// prompt selection, model tiering, the per-attempt timeout, and the mapping
// of cited controls back to the retrieved set. Scoring is left to the
// caller so a draft stays valid even when no reference policy is available.
type Drafter struct {
	llm       schemas.LLMClient
	retriever schemas.ContextRetriever
	logger    *zap.Logger
	timeout   time.Duration
	models    map[schemas.ModelTier]string
}

// New builds a Drafter. The retriever may be nil, in which case every draft
// runs in degraded mode. Timeouts outside 30s-60s are clamped.
func New(llm schemas.LLMClient, retriever schemas.ContextRetriever, cfg Config, logger *zap.Logger) (*Drafter, error) {
	if llm == nil {
		return nil, errors.New("an LLM client must be provided")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	switch {
	case timeout <= 0:
		timeout = defaultDraftTimeout
	case timeout < minDraftTimeout:
		timeout = minDraftTimeout
	case timeout > maxDraftTimeout:
		timeout = maxDraftTimeout
	}

	fast := cfg.FastModel
	if fast == "" {
		fast = defaultFastModel
	}
	powerful := cfg.PowerfulModel
	if powerful == "" {
		powerful = defaultPowerfulModel
	}

	return &Drafter{
		llm:       llm,
		retriever: retriever,
		logger:    logger.Named("drafter"),
		timeout:   timeout,
		models: map[schemas.ModelTier]string{
			schemas.TierFast:     fast,
			schemas.TierPowerful: powerful,
		},
	}, nil
}

// TierFor selects the model tier for a source type. Code and dependency
// findings need the stronger model for compliance reasoning; web findings
// are more formulaic and run on the fast tier.
func TierFor(st schemas.SourceType) schemas.ModelTier {
	if st == schemas.SourceDAST {
		return schemas.TierFast
	}
	return schemas.TierPowerful
}

// ModelFor reports the model name recorded for a tier.
func (d *Drafter) ModelFor(tier schemas.ModelTier) string {
	return d.models[tier]
}

// Draft produces the policy document for a single record. The returned
// document has no quality scores; the caller scores it afterwards.
func (d *Drafter) Draft(ctx context.Context, rec schemas.VulnerabilityRecord, opts schemas.RunOptions) (schemas.PolicyDocument, error) {
	contexts, degraded, err := d.RetrieveContexts(ctx, rec)
	if err != nil {
		return schemas.PolicyDocument{}, err
	}
	return d.DraftWithContexts(ctx, rec, contexts, degraded, opts)
}

// DraftWithContexts generates a policy from an already-retrieved context
// set. Callers that report retrieval and generation as separate steps use
// this together with RetrieveContexts; Draft composes the two.
func (d *Drafter) DraftWithContexts(ctx context.Context, rec schemas.VulnerabilityRecord, contexts []schemas.ComplianceContext, degraded bool, opts schemas.RunOptions) (schemas.PolicyDocument, error) {
	expertise := opts.Expertise
	if !expertise.Valid() {
		expertise = schemas.ExpertiseIntermediate
	}

	tier := TierFor(rec.SourceType)
	req := schemas.GenerationRequest{
		SystemPrompt: SystemPrompt,
		UserPrompt:   BuildUserPrompt(rec, FormatContexts(contexts), expertise),
		Tier:         tier,
		Options: schemas.GenerationOptions{
			Temperature: draftTemperature,
			MaxTokens:   draftMaxTokens,
		},
	}

	start := time.Now()
	text, err := d.generateOnce(ctx, req)
	if schemas.IsTimeout(err) {
		d.logger.Warn("Draft generation timed out, retrying once",
			zap.String("vulnerability_id", rec.ID),
			zap.Duration("timeout", d.timeout),
		)
		text, err = d.generateOnce(ctx, req)
	}
	if err != nil {
		return schemas.PolicyDocument{}, err
	}

	text = llmutil.CleanPolicyOutput(text)
	if text == "" {
		return schemas.PolicyDocument{}, schemas.NewValidationError("model returned an empty policy for vulnerability '%s'", rec.ID)
	}

	retrieved := make([]string, 0, len(contexts))
	for _, c := range contexts {
		retrieved = append(retrieved, c.ControlID)
	}
	cited := append(llmutil.ExtractNISTControls(text), llmutil.ExtractISOControls(text)...)
	mapped := matchControls(cited, retrieved)
	if len(mapped) == 0 && !degraded {
		// The model cited nothing recognizable; attribute the draft to
		// everything it was shown rather than claiming no coverage.
		mapped = retrieved
	}

	doc := schemas.PolicyDocument{
		PolicyID:           uuid.NewString(),
		VulnerabilityID:    rec.ID,
		VulnerabilityTitle: rec.Title,
		SourceType:         rec.SourceType,
		Severity:           rec.Severity,
		GeneratedText:      text,
		MappedControls:     mapped,
		RetrievedControls:  retrieved,
		ModelUsed:          d.models[tier],
		DegradedRetrieval:  degraded,
		CreatedAt:          time.Now().UTC(),
	}

	d.logger.Info("Policy drafted",
		zap.String("policy_id", doc.PolicyID),
		zap.String("vulnerability_id", rec.ID),
		zap.String("tier", string(tier)),
		zap.String("model", doc.ModelUsed),
		zap.Int("mapped_controls", len(mapped)),
		zap.Bool("degraded_retrieval", degraded),
		zap.Duration("duration", time.Since(start)),
	)
	return doc, nil
}

// RetrieveContexts fetches compliance passages for the record. Retrieval
// failures degrade the draft instead of failing it, unless the run itself
// is already cancelled; the second return value reports degradation.
func (d *Drafter) RetrieveContexts(ctx context.Context, rec schemas.VulnerabilityRecord) ([]schemas.ComplianceContext, bool, error) {
	if d.retriever == nil || !d.retriever.Ready() {
		return nil, true, nil
	}

	contexts, err := d.retriever.Retrieve(ctx, rec, 0)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		d.logger.Warn("Compliance retrieval failed, drafting without context",
			zap.String("vulnerability_id", rec.ID),
			zap.Error(err),
		)
		return nil, true, nil
	}
	return contexts, false, nil
}

// generateOnce runs a single generation attempt under the per-attempt
// timeout and classifies the failure. A cancelled or expired parent context
// is passed through untouched so callers can tell run-level aborts from
// per-item timeouts.
func (d *Drafter) generateOnce(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	text, err := d.llm.Generate(genCtx, req)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "", schemas.NewTimeoutError("llm", err)
	}
	return "", schemas.NewExternalServiceError("llm", err)
}

// matchControls intersects the controls the model cited with the controls
// retrieval actually produced. Citations may be more specific than the
// retrieved id ("PR.AC-4" against a retrieved "PR.AC" category); in that
// case the retrieved id is what gets mapped, so the mapping never names a
// control the retriever did not supply.
func matchControls(cited, retrieved []string) []string {
	if len(cited) == 0 || len(retrieved) == 0 {
		return nil
	}

	mapped := make([]string, 0, len(retrieved))
	for _, r := range retrieved {
		for _, c := range cited {
			if c == r || strings.HasPrefix(c, r+"-") || strings.HasPrefix(c, r+".") {
				mapped = append(mapped, r)
				break
			}
		}
	}
	if len(mapped) == 0 {
		return nil
	}
	return mapped
}
