package schemas

import "time"

// -- Policy Tracking Schemas --

// PolicyStatus is the remediation lifecycle state of a tracked policy.
type PolicyStatus string

const (
	PolicyNotStarted  PolicyStatus = "NOT_STARTED"
	PolicyInProgress  PolicyStatus = "IN_PROGRESS"
	PolicyUnderReview PolicyStatus = "UNDER_REVIEW"
	PolicyFixed       PolicyStatus = "FIXED"
	PolicyVerified    PolicyStatus = "VERIFIED"
	PolicyReopened    PolicyStatus = "REOPENED"
)

// ValidPolicyStatus reports whether s is a known lifecycle state.
func ValidPolicyStatus(s PolicyStatus) bool {
	switch s {
	case PolicyNotStarted, PolicyInProgress, PolicyUnderReview,
		PolicyFixed, PolicyVerified, PolicyReopened:
		return true
	}
	return false
}

// TimelineEvent is one append-only entry in a tracking record's history.
type TimelineEvent struct {
	EventType  string       `json:"event_type"`
	Timestamp  time.Time    `json:"timestamp"`
	Actor      string       `json:"actor"`
	FromStatus PolicyStatus `json:"from_status,omitempty"`
	ToStatus   PolicyStatus `json:"to_status,omitempty"`
	Details    string       `json:"details,omitempty"`
}

// TrackingRecord is the cross-run remediation state kept per policy. It is
// the only state that survives between pipeline runs; everything else in a
// run is scoped to that run.
type TrackingRecord struct {
	PolicyID           string          `json:"policy_id"`
	VulnerabilityTitle string          `json:"vulnerability_title"`
	VulnerabilityType  SourceType      `json:"vulnerability_type"`
	Severity           Severity        `json:"severity"`
	Status             PolicyStatus    `json:"status"`
	AssignedTo         string          `json:"assigned_to,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DueDate            time.Time       `json:"due_date"`
	Timeline           []TimelineEvent `json:"timeline"`
	NISTCSFControls    []string        `json:"nist_csf_controls"`
	ISO27001Controls   []string        `json:"iso27001_controls"`
	FilePath           string          `json:"file_path,omitempty"`
	Priority           int             `json:"priority"`
}

// Overdue reports whether the record has passed its due date without
// reaching a terminal state.
func (r *TrackingRecord) Overdue(now time.Time) bool {
	if r.Status == PolicyFixed || r.Status == PolicyVerified {
		return false
	}
	return !r.DueDate.IsZero() && now.After(r.DueDate)
}

// TrackingStats aggregates the tracking store for dashboards.
type TrackingStats struct {
	Total          int                  `json:"total"`
	ByStatus       map[PolicyStatus]int `json:"by_status"`
	BySeverity     map[Severity]int     `json:"by_severity"`
	Overdue        int                  `json:"overdue"`
	CompletionRate float64              `json:"completion_rate"`
}
