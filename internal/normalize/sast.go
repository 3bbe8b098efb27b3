// File: internal/normalize/sast.go
package normalize

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// semgrepReport mirrors the subset of `semgrep --json` output we consume.
type semgrepReport struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
			Fix      string `json:"fix"`
			Metadata struct {
				// CWE is a string or a list of strings depending on the rule.
				CWE        any    `json:"cwe"`
				Confidence string `json:"confidence"`
			} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
}

// sonarReport mirrors the subset of a SonarQube issues export we consume.
type sonarReport struct {
	Issues []struct {
		Rule      string `json:"rule"`
		Severity  string `json:"severity"`
		Type      string `json:"type"`
		Component string `json:"component"`
		Line      int    `json:"line"`
		Message   string `json:"message"`
	} `json:"issues"`
}

// parseSAST detects the SAST tool by the report's top-level shape and
// normalizes its findings. Semgrep reports carry "results", SonarQube
// exports carry "issues".
func (p *Parser) parseSAST(data []byte) ([]schemas.VulnerabilityRecord, error) {
	probe, err := topLevelKeys(data)
	if err != nil {
		return nil, schemas.NewValidationError("SAST report is not valid JSON: %v", err)
	}
	if _, ok := probe["results"]; ok {
		return p.parseSemgrep(data)
	}
	if _, ok := probe["issues"]; ok {
		return p.parseSonarQube(data)
	}
	return nil, schemas.NewValidationError("unrecognized SAST report format: expected semgrep or sonarqube output")
}

func (p *Parser) parseSemgrep(data []byte) ([]schemas.VulnerabilityRecord, error) {
	var report semgrepReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, schemas.NewValidationError("failed to decode semgrep report: %v", err)
	}

	records := make([]schemas.VulnerabilityRecord, 0, len(report.Results))
	for i, res := range report.Results {
		if res.CheckID == "" {
			p.logger.Warn("Skipping semgrep result without check_id", zap.Int("index", i))
			continue
		}
		rec := schemas.VulnerabilityRecord{
			ID:             newRecordID(),
			Title:          titleFromCheckID(res.CheckID),
			Description:    orDefault(res.Extra.Message, "No description"),
			Severity:       NormalizeSeverity(res.Extra.Severity),
			SourceType:     schemas.SourceSAST,
			Category:       ExtractCategory(res.CheckID),
			Location:       fmt.Sprintf("%s:%d", orDefault(res.Path, "Unknown"), res.Start.Line),
			Identifier:     stringsOrFirst(res.Extra.Metadata.CWE),
			Recommendation: orDefault(res.Extra.Fix, "Review and fix this vulnerability"),
			Confidence:     orDefault(res.Extra.Metadata.Confidence, "HIGH"),
			ReportIndex:    len(records),
		}
		records = append(records, rec)
	}
	p.logger.Info("Parsed semgrep report",
		zap.Int("findings", len(report.Results)),
		zap.Int("records", len(records)))
	return records, nil
}

func (p *Parser) parseSonarQube(data []byte) ([]schemas.VulnerabilityRecord, error) {
	var report sonarReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, schemas.NewValidationError("failed to decode sonarqube report: %v", err)
	}

	records := make([]schemas.VulnerabilityRecord, 0, len(report.Issues))
	for _, issue := range report.Issues {
		location := orDefault(issue.Component, "Unknown")
		if issue.Line > 0 {
			location = fmt.Sprintf("%s:%d", location, issue.Line)
		}
		records = append(records, schemas.VulnerabilityRecord{
			ID:             newRecordID(),
			Title:          orDefault(issue.Rule, "Unknown Issue"),
			Description:    orDefault(issue.Message, "No description"),
			Severity:       NormalizeSeverity(issue.Severity),
			SourceType:     schemas.SourceSAST,
			Category:       orDefault(issue.Type, "Security Issue"),
			Location:       location,
			Identifier:     issue.Rule,
			Recommendation: "Fix according to SonarQube recommendations",
			Confidence:     "HIGH",
			ReportIndex:    len(records),
		})
	}
	p.logger.Info("Parsed sonarqube report",
		zap.Int("issues", len(report.Issues)),
		zap.Int("records", len(records)))
	return records, nil
}

// titleFromCheckID turns a dotted rule path such as
// "javascript.express.security.audit.xss-detected" into "Xss Detected".
func titleFromCheckID(checkID string) string {
	last := checkID
	if idx := strings.LastIndex(checkID, "."); idx >= 0 {
		last = checkID[idx+1:]
	}
	return titleCase(strings.ReplaceAll(last, "-", " "))
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
