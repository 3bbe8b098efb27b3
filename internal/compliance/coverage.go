// File: internal/compliance/coverage.go
package compliance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xkilldash9x/securai/api/schemas"
)

// nistCategory is one CSF category and the number of subcategory controls
// it contains. IDs expand to "<Category>-1" .. "<Category>-<Controls>".
type nistCategory struct {
	ID       string
	Name     string
	Controls int
}

// nistFunction groups categories under one of the five CSF functions.
type nistFunction struct {
	Name       string
	Categories []nistCategory
}

// nistCatalog is the NIST CSF v1.1 control catalog, 108 subcategories.
var nistCatalog = []nistFunction{
	{"Identify", []nistCategory{
		{"ID.AM", "Asset Management", 6},
		{"ID.BE", "Business Environment", 5},
		{"ID.GV", "Governance", 4},
		{"ID.RA", "Risk Assessment", 6},
		{"ID.RM", "Risk Management Strategy", 3},
		{"ID.SC", "Supply Chain Risk Management", 5},
	}},
	{"Protect", []nistCategory{
		{"PR.AC", "Identity Management and Access Control", 7},
		{"PR.AT", "Awareness and Training", 5},
		{"PR.DS", "Data Security", 8},
		{"PR.IP", "Information Protection Processes", 12},
		{"PR.MA", "Maintenance", 2},
		{"PR.PT", "Protective Technology", 5},
	}},
	{"Detect", []nistCategory{
		{"DE.AE", "Anomalies and Events", 5},
		{"DE.CM", "Security Continuous Monitoring", 8},
		{"DE.DP", "Detection Processes", 5},
	}},
	{"Respond", []nistCategory{
		{"RS.RP", "Response Planning", 1},
		{"RS.CO", "Communications", 5},
		{"RS.AN", "Analysis", 5},
		{"RS.MI", "Mitigation", 3},
		{"RS.IM", "Improvements", 2},
	}},
	{"Recover", []nistCategory{
		{"RC.RP", "Recovery Planning", 1},
		{"RC.IM", "Improvements", 2},
		{"RC.CO", "Communications", 3},
	}},
}

// isoSection is one numbered clause within an Annex A domain, e.g. A.9.2
// with 6 controls expands to A.9.2.1 .. A.9.2.6.
type isoSection struct {
	Section  int
	Controls int
}

// isoDomain is one Annex A domain.
type isoDomain struct {
	ID       string
	Name     string
	Sections []isoSection
}

// isoCatalog is the ISO/IEC 27001:2013 Annex A catalog, 114 controls.
var isoCatalog = []isoDomain{
	{"A.5", "Information security policies", []isoSection{{1, 2}}},
	{"A.6", "Organization of information security", []isoSection{{1, 5}, {2, 2}}},
	{"A.7", "Human resource security", []isoSection{{1, 2}, {2, 3}, {3, 1}}},
	{"A.8", "Asset management", []isoSection{{1, 4}, {2, 3}, {3, 3}}},
	{"A.9", "Access control", []isoSection{{1, 2}, {2, 6}, {3, 1}, {4, 5}}},
	{"A.10", "Cryptography", []isoSection{{1, 2}}},
	{"A.11", "Physical and environmental security", []isoSection{{1, 6}, {2, 9}}},
	{"A.12", "Operations security", []isoSection{{1, 4}, {2, 1}, {3, 1}, {4, 4}, {5, 1}, {6, 2}, {7, 1}}},
	{"A.13", "Communications security", []isoSection{{1, 3}, {2, 4}}},
	{"A.14", "System acquisition, development and maintenance", []isoSection{{1, 3}, {2, 9}, {3, 1}}},
	{"A.15", "Supplier relationships", []isoSection{{1, 3}, {2, 2}}},
	{"A.16", "Information security incident management", []isoSection{{1, 7}}},
	{"A.17", "Business continuity management", []isoSection{{1, 3}, {2, 1}}},
	{"A.18", "Compliance", []isoSection{{1, 5}, {2, 3}}},
}

func (c nistCategory) controlIDs() []string {
	ids := make([]string, 0, c.Controls)
	for i := 1; i <= c.Controls; i++ {
		ids = append(ids, fmt.Sprintf("%s-%d", c.ID, i))
	}
	return ids
}

func (d isoDomain) controlIDs() []string {
	var ids []string
	for _, sec := range d.Sections {
		for i := 1; i <= sec.Controls; i++ {
			ids = append(ids, fmt.Sprintf("%s.%d.%d", d.ID, sec.Section, i))
		}
	}
	return ids
}

// GroupCoverage is the covered/total tally for one CSF function or one
// Annex A domain.
type GroupCoverage struct {
	Total      int     `json:"total"`
	Covered    int     `json:"covered"`
	Percentage float64 `json:"percentage"`
}

// FrameworkCoverage summarizes one framework. ByFunction is populated for
// NIST CSF, ByDomain for ISO 27001.
type FrameworkCoverage struct {
	TotalControls      int                      `json:"total_controls"`
	CoveredControls    int                      `json:"covered_controls"`
	CoveragePercentage float64                  `json:"coverage_percentage"`
	Covered            []string                 `json:"covered"`
	Gaps               []string                 `json:"gaps"`
	ByFunction         map[string]GroupCoverage `json:"by_function,omitempty"`
	ByDomain           map[string]GroupCoverage `json:"by_domain,omitempty"`
}

// CoverageReport is the full cross-framework coverage result.
type CoverageReport struct {
	NISTCSF      FrameworkCoverage `json:"nist_csf"`
	ISO27001     FrameworkCoverage `json:"iso_27001"`
	OverallScore float64           `json:"overall_score"`
}

// AnalyzeCoverage computes control coverage from tracked policies. A control
// counts as covered when any record maps it; ids are matched against the
// catalogs after trimming and uppercasing, and unknown ids are ignored so a
// hallucinated citation can never inflate the score.
func AnalyzeCoverage(records []schemas.TrackingRecord) CoverageReport {
	nistCited := make(map[string]struct{})
	isoCited := make(map[string]struct{})
	for _, rec := range records {
		for _, id := range rec.NISTCSFControls {
			nistCited[strings.ToUpper(strings.TrimSpace(id))] = struct{}{}
		}
		for _, id := range rec.ISO27001Controls {
			isoCited[strings.ToUpper(strings.TrimSpace(id))] = struct{}{}
		}
	}

	nist := analyzeNIST(nistCited)
	iso := analyzeISO(isoCited)

	var nistFrac, isoFrac float64
	if nist.TotalControls > 0 {
		nistFrac = float64(nist.CoveredControls) / float64(nist.TotalControls)
	}
	if iso.TotalControls > 0 {
		isoFrac = float64(iso.CoveredControls) / float64(iso.TotalControls)
	}

	return CoverageReport{
		NISTCSF:      nist,
		ISO27001:     iso,
		OverallScore: round1((nistFrac + isoFrac) / 2 * 100),
	}
}

func analyzeNIST(cited map[string]struct{}) FrameworkCoverage {
	cov := FrameworkCoverage{ByFunction: make(map[string]GroupCoverage, len(nistCatalog))}
	for _, fn := range nistCatalog {
		group := GroupCoverage{}
		for _, cat := range fn.Categories {
			for _, id := range cat.controlIDs() {
				group.Total++
				if _, ok := cited[id]; ok {
					group.Covered++
					cov.Covered = append(cov.Covered, id)
				} else {
					cov.Gaps = append(cov.Gaps, id)
				}
			}
		}
		group.Percentage = percentage(group.Covered, group.Total)
		cov.ByFunction[fn.Name] = group
		cov.TotalControls += group.Total
		cov.CoveredControls += group.Covered
	}
	finishCoverage(&cov)
	return cov
}

func analyzeISO(cited map[string]struct{}) FrameworkCoverage {
	cov := FrameworkCoverage{ByDomain: make(map[string]GroupCoverage, len(isoCatalog))}
	for _, dom := range isoCatalog {
		group := GroupCoverage{}
		for _, id := range dom.controlIDs() {
			group.Total++
			if _, ok := cited[id]; ok {
				group.Covered++
				cov.Covered = append(cov.Covered, id)
			} else {
				cov.Gaps = append(cov.Gaps, id)
			}
		}
		group.Percentage = percentage(group.Covered, group.Total)
		cov.ByDomain[dom.ID] = group
		cov.TotalControls += group.Total
		cov.CoveredControls += group.Covered
	}
	finishCoverage(&cov)
	return cov
}

func finishCoverage(cov *FrameworkCoverage) {
	sort.Strings(cov.Covered)
	sort.Strings(cov.Gaps)
	cov.CoveragePercentage = percentage(cov.CoveredControls, cov.TotalControls)
}

func percentage(covered, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(covered) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// RenderCoverage formats the report for terminal output.
func RenderCoverage(report CoverageReport) string {
	var b strings.Builder
	b.WriteString("COMPLIANCE COVERAGE\n")
	b.WriteString("===================\n\n")
	fmt.Fprintf(&b, "Overall score: %.1f%%\n\n", report.OverallScore)

	fmt.Fprintf(&b, "NIST CSF: %d/%d controls (%.1f%%)\n",
		report.NISTCSF.CoveredControls, report.NISTCSF.TotalControls, report.NISTCSF.CoveragePercentage)
	for _, fn := range nistCatalog {
		g := report.NISTCSF.ByFunction[fn.Name]
		fmt.Fprintf(&b, "  %-10s %3d/%3d (%.1f%%)\n", fn.Name, g.Covered, g.Total, g.Percentage)
	}

	fmt.Fprintf(&b, "\nISO 27001: %d/%d controls (%.1f%%)\n",
		report.ISO27001.CoveredControls, report.ISO27001.TotalControls, report.ISO27001.CoveragePercentage)
	for _, dom := range isoCatalog {
		g := report.ISO27001.ByDomain[dom.ID]
		fmt.Fprintf(&b, "  %-5s %-50s %2d/%2d (%.1f%%)\n", dom.ID, dom.Name, g.Covered, g.Total, g.Percentage)
	}

	if len(report.NISTCSF.Covered) > 0 || len(report.ISO27001.Covered) > 0 {
		b.WriteString("\nCovered controls:\n")
		for _, id := range report.NISTCSF.Covered {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
		for _, id := range report.ISO27001.Covered {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
	}
	return b.String()
}
