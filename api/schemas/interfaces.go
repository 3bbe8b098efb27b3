package schemas

import (
	"context"
)

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a
// preference for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text
// generation process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	MaxTokens       int     `json:"max_tokens"`        // Hard cap on the completion length.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
}

// GenerationRequest encapsulates a complete request to the LLM, including
// the system and user prompts, the desired model tier, and generation
// options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// -- Retrieval Interface --

// ContextRetriever finds compliance passages relevant to a vulnerability.
// Implementations must be deterministic: the same record against the same
// corpus always yields the same contexts in the same order.
type ContextRetriever interface {
	// Retrieve returns up to topK contexts ranked by descending relevance.
	Retrieve(ctx context.Context, rec VulnerabilityRecord, topK int) ([]ComplianceContext, error)
	// Ready reports whether the underlying index is usable. When false the
	// pipeline runs in degraded mode and policies are flagged.
	Ready() bool
}

// -- Target Resolution Interface --

// TargetResolver turns a resolve request into a scannable DAST target, or
// an UNAVAILABLE outcome with remediation guidance. Resolution never
// returns an error for "no target found"; errors are reserved for the
// resolver's own failures (e.g. cancelled context).
type TargetResolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (*ScanTarget, error)
}

// -- Tracking Store Interface --

// TrackingStore persists cross-run remediation state per policy. Updates
// are last-write-wins at document granularity; every mutation appends a
// timeline entry recording who changed what, and when.
type TrackingStore interface {
	// SaveAll upserts the given records.
	SaveAll(ctx context.Context, records []TrackingRecord) error
	// List returns all records.
	List(ctx context.Context) ([]TrackingRecord, error)
	// Get returns the record for policyID, or an error when absent.
	Get(ctx context.Context, policyID string) (*TrackingRecord, error)
	// UpdateStatus atomically moves the record to a new lifecycle state.
	UpdateStatus(ctx context.Context, policyID string, status PolicyStatus, actor, details string) (*TrackingRecord, error)
	// UpdateAssignment atomically reassigns the record.
	UpdateAssignment(ctx context.Context, policyID string, assignee, actor string) (*TrackingRecord, error)
	// Stats aggregates the store.
	Stats(ctx context.Context) (*TrackingStats, error)
	// Close releases the backing resources.
	Close()
}
