package scoring

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/securai/api/schemas"
)

// Weights of the individual metrics in the overall score. Term coverage
// weighs heaviest: a policy that reads well but drops the reference's
// security vocabulary is the failure mode we most want flagged.
const (
	weightBLEU      = 0.25
	weightROUGEL    = 0.25
	weightTerms     = 0.30
	weightStructure = 0.20

	// reviewThreshold marks policies for human review.
	reviewThreshold = 0.5
)

// securityTerms is the fixed lexicon checked for coverage. Matching is
// case-insensitive substring search so multi-word terms count too.
var securityTerms = []string{
	"authentication", "authorization", "encryption", "access control",
	"vulnerability", "patch", "update", "secure", "security",
	"confidentiality", "integrity", "availability", "audit", "logging",
	"monitoring", "incident", "response", "recovery", "backup",
	"firewall", "network", "permission", "privilege", "password",
	"credential", "token", "session", "ssl", "tls", "https",
	"injection", "xss", "csrf", "sql", "sanitization", "validation",
	"compliance", "policy", "procedure", "control", "risk",
	"threat", "mitigation", "prevention", "detection", "protection",
}

// requiredSections is the canonical section vocabulary a complete policy
// document is expected to carry.
var requiredSections = []string{
	"Executive Summary", "Purpose", "Scope", "Policy Statement",
	"Risk Assessment", "Security Controls", "Implementation",
	"Roles and Responsibilities", "Compliance", "Monitoring",
	"Review", "Enforcement", "References",
}

// Section header shapes: "Title:", ALL CAPS lines, "1. Title" / "1.1 Title",
// and markdown headings.
var (
	sectionColonRe    = regexp.MustCompile(`^([A-Z][A-Za-z\s]+):\s*$`)
	sectionCapsRe     = regexp.MustCompile(`^([A-Z\s]{3,})$`)
	sectionNumberedRe = regexp.MustCompile(`^\d+\.?\d*\s+([A-Z][A-Za-z\s]+)`)
	sectionMarkdownRe = regexp.MustCompile(`^#{1,4}\s+(.+?)\s*$`)
)

// Score grades a generated policy against a reference policy. All component
// scores and the overall score are in [0, 1].
func Score(generated, reference string) schemas.QualityScores {
	bleu := BLEU(generated, reference)
	rougeL := ROUGEL(generated, reference)
	terms := TermCoverage(generated, reference)
	structure := StructureSimilarity(generated, reference)

	overall := bleu*weightBLEU + rougeL*weightROUGEL + terms*weightTerms + structure*weightStructure

	return schemas.QualityScores{
		BLEU:         bleu,
		ROUGEL:       rougeL,
		TermCoverage: terms,
		Structure:    structure,
		Overall:      overall,
		Grade:        Grade(overall),
		NeedsReview:  overall < reviewThreshold,
	}
}

// Grade converts an overall score into a letter grade.
func Grade(overall float64) string {
	switch {
	case overall >= 0.8:
		return "A"
	case overall >= 0.6:
		return "B"
	case overall >= 0.4:
		return "C"
	case overall >= 0.2:
		return "D"
	default:
		return "F"
	}
}

// TermCoverage measures how much of the reference's security vocabulary the
// generated policy retains: |terms in both| / |terms in reference|. When
// the reference mentions no known terms the coverage is vacuously 1.
func TermCoverage(generated, reference string) float64 {
	genLower := strings.ToLower(generated)
	refLower := strings.ToLower(reference)

	var refCount, bothCount int
	for _, term := range securityTerms {
		if !strings.Contains(refLower, term) {
			continue
		}
		refCount++
		if strings.Contains(genLower, term) {
			bothCount++
		}
	}
	if refCount == 0 {
		return 1
	}
	return float64(bothCount) / float64(refCount)
}

// StructureSimilarity measures section-level agreement: of the required
// sections present in the reference, the share also present in the
// generated policy. Vacuously 1 when the reference has none.
func StructureSimilarity(generated, reference string) float64 {
	genSections := requiredIn(ExtractSections(generated))
	refSections := requiredIn(ExtractSections(reference))

	if len(refSections) == 0 {
		return 1
	}
	common := 0
	for section := range refSections {
		if genSections[section] {
			common++
		}
	}
	return float64(common) / float64(len(refSections))
}

// requiredIn maps each required section to whether any extracted header
// contains it (case-insensitive).
func requiredIn(sections []string) map[string]bool {
	present := make(map[string]bool)
	for _, required := range requiredSections {
		requiredLower := strings.ToLower(required)
		for _, s := range sections {
			if strings.Contains(strings.ToLower(s), requiredLower) {
				present[required] = true
				break
			}
		}
	}
	return present
}

// ExtractSections pulls section headers out of a policy text.
func ExtractSections(text string) []string {
	seen := make(map[string]bool)
	var sections []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			sections = append(sections, s)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := sectionMarkdownRe.FindStringSubmatch(line); m != nil {
			add(strings.TrimSuffix(m[1], ":"))
			continue
		}
		if m := sectionColonRe.FindStringSubmatch(line); m != nil {
			add(m[1])
			continue
		}
		if m := sectionCapsRe.FindStringSubmatch(line); m != nil && len(line) < 50 {
			add(line)
			continue
		}
		if m := sectionNumberedRe.FindStringSubmatch(line); m != nil {
			add(m[1])
		}
	}
	return sections
}

// AssessLength buckets the candidate/reference word ratio into a
// human-readable judgement for the rendered report.
func AssessLength(generated, reference string) string {
	genWords := len(strings.Fields(generated))
	refWords := len(strings.Fields(reference))
	if refWords == 0 {
		return "No reference to compare length against"
	}
	ratio := float64(genWords) / float64(refWords)
	switch {
	case ratio < 0.5:
		return "Too short - generated policy is significantly shorter than the reference"
	case ratio < 0.8:
		return "Somewhat short - consider adding more detail"
	case ratio <= 1.2:
		return "Appropriate length - similar to the reference policy"
	case ratio <= 1.5:
		return "Somewhat long - consider condensing"
	default:
		return "Too long - generated policy is significantly longer than the reference"
	}
}
