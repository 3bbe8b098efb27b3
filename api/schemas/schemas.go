package schemas

import "time"

// -- Vulnerability Schemas --

// Severity defines the normalized severity level of a vulnerability.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank returns the ordering weight of a severity. Higher is more severe.
// Unknown values rank below LOW so malformed input never outranks real
// findings.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// SourceType identifies the class of scanner a vulnerability came from.
type SourceType string

const (
	SourceSAST SourceType = "SAST"
	SourceSCA  SourceType = "SCA"
	SourceDAST SourceType = "DAST"
)

// PackageRef describes the affected dependency for SCA findings.
type PackageRef struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Ecosystem       string `json:"ecosystem"`
	PURL            string `json:"purl,omitempty"`
	VulnerableRange string `json:"vulnerable_range,omitempty"`
	FixedVersion    string `json:"fixed_version,omitempty"`
}

// VulnerabilityRecord is the normalized form every report adapter produces.
// Records are immutable once parsed; downstream stages only read them.
type VulnerabilityRecord struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Severity       Severity    `json:"severity"`
	SourceType     SourceType  `json:"source_type"`
	Category       string      `json:"category"`
	Location       string      `json:"location"`
	Identifier     string      `json:"identifier"`
	Recommendation string      `json:"recommendation,omitempty"`
	Confidence     string      `json:"confidence,omitempty"`
	Package        *PackageRef `json:"package,omitempty"`
	Endpoint       string      `json:"endpoint,omitempty"`
	Method         string      `json:"method,omitempty"`

	// ReportIndex is the record's position within its source report. It is
	// carried so severity truncation can break ties by original order.
	ReportIndex int `json:"-"`
}

// -- Compliance Schemas --

// Framework names a supported compliance framework.
type Framework string

const (
	FrameworkNISTCSF  Framework = "NIST_CSF"
	FrameworkISO27001 Framework = "ISO27001"
)

// ComplianceContext is one retrieved compliance passage, ranked by relevance
// to a vulnerability.
type ComplianceContext struct {
	Framework      Framework `json:"framework"`
	ControlID      string    `json:"control_id"`
	ControlName    string    `json:"control_name"`
	TextSnippet    string    `json:"text_snippet"`
	RelevanceScore float64   `json:"relevance_score"`
}

// -- Policy Schemas --

// ExpertiseLevel selects the audience the drafted policy is written for.
type ExpertiseLevel string

const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseAdvanced     ExpertiseLevel = "advanced"
)

// Valid reports whether the level is one of the known values.
func (e ExpertiseLevel) Valid() bool {
	switch e {
	case ExpertiseBeginner, ExpertiseIntermediate, ExpertiseAdvanced:
		return true
	}
	return false
}

// QualityScores holds the automated quality assessment of one drafted
// policy. All score fields are in [0, 1].
type QualityScores struct {
	BLEU         float64 `json:"bleu"`
	ROUGEL       float64 `json:"rouge_l"`
	TermCoverage float64 `json:"term_coverage"`
	Structure    float64 `json:"structure"`
	Overall      float64 `json:"overall"`
	Grade        string  `json:"overall_grade"`
	NeedsReview  bool    `json:"needs_review"`
}

// PolicyDocument is the drafted security policy for a single vulnerability.
// MappedControls only ever names control IDs that were retrieved for the
// vulnerability; when retrieval was degraded it is empty and
// DegradedRetrieval is set.
type PolicyDocument struct {
	PolicyID           string        `json:"policy_id"`
	VulnerabilityID    string        `json:"vulnerability_id"`
	VulnerabilityTitle string        `json:"vulnerability_title"`
	SourceType         SourceType    `json:"source_type"`
	Severity           Severity      `json:"severity"`
	GeneratedText      string        `json:"generated_text"`
	MappedControls     []string      `json:"mapped_controls"`
	RetrievedControls  []string      `json:"retrieved_controls"`
	ModelUsed          string        `json:"model_used"`
	DegradedRetrieval  bool          `json:"degraded_retrieval"`
	Quality            QualityScores `json:"quality"`
	CreatedAt          time.Time     `json:"created_at"`
}

// -- Run Schemas --

// ReportSet carries the raw report payloads for one pipeline run. Every
// field is optional but at least one must be set.
type ReportSet struct {
	SAST []byte
	SCA  []byte
	DAST []byte
}

// Empty reports whether no report payload was provided at all.
func (r ReportSet) Empty() bool {
	return len(r.SAST) == 0 && len(r.SCA) == 0 && len(r.DAST) == 0
}

// RunOptions tunes a single pipeline run.
type RunOptions struct {
	// MaxPerType caps how many vulnerabilities per source type proceed to
	// policy generation. Zero means no cap.
	MaxPerType int `json:"max_per_type"`
	// Expertise selects the prompt template family.
	Expertise ExpertiseLevel `json:"expertise"`
	// ReferencePath optionally points at a reference policy used for
	// quality scoring instead of the built-in one.
	ReferencePath string `json:"reference_path,omitempty"`
	// Actor is recorded on tracking timeline entries created by the run.
	Actor string `json:"actor,omitempty"`
}

// ItemError records a per-vulnerability failure that did not abort the run.
type ItemError struct {
	VulnerabilityID string `json:"vulnerability_id"`
	Title           string `json:"title"`
	Phase           Phase  `json:"phase"`
	Message         string `json:"message"`
}

// RunResult is the terminal outcome of one pipeline run.
type RunResult struct {
	RunID             string             `json:"run_id"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	Counts            map[SourceType]int `json:"counts"`
	Policies          []PolicyDocument   `json:"policies"`
	ItemErrors        []ItemError        `json:"item_errors"`
	DegradedRetrieval bool               `json:"degraded_retrieval"`
	OutputPaths       []string           `json:"output_paths,omitempty"`
	Cancelled         bool               `json:"cancelled,omitempty"`
}

// TotalParsed sums the per-type parse counts.
func (r *RunResult) TotalParsed() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}
