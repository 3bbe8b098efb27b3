package schemas

import "time"

// -- Progress Schemas --

// Phase names a pipeline stage for progress reporting.
type Phase string

const (
	PhaseParsing    Phase = "PARSING"
	PhaseRetrieval  Phase = "RETRIEVAL"
	PhaseGeneration Phase = "GENERATION"
	PhaseScoring    Phase = "SCORING"
	PhasePersisting Phase = "PERSISTING"
	PhaseComplete   Phase = "COMPLETE"
)

// EventStatus is the state an item or phase is reported in.
type EventStatus string

const (
	StatusPending    EventStatus = "PENDING"
	StatusInProgress EventStatus = "IN_PROGRESS"
	StatusCompleted  EventStatus = "COMPLETED"
	StatusError      EventStatus = "ERROR"
)

// ProgressEvent is one observable step of a pipeline run. Events are
// published in execution order; Seq is monotonically increasing within a
// single publisher so consumers can detect gaps after a dropped window.
type ProgressEvent struct {
	Seq       uint64         `json:"seq"`
	RunID     string         `json:"run_id"`
	Phase     Phase          `json:"phase"`
	Status    EventStatus    `json:"status"`
	ItemID    string         `json:"item_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
