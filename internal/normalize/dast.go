// File: internal/normalize/dast.go
package normalize

import (
	"strings"

	"github.com/beevik/etree"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// dastJSONReport mirrors the generic JSON shape emitted by ZAP's JSON export
// and similar scanners. Tools disagree on field names, so several carry
// aliases resolved during normalization.
type dastJSONReport struct {
	Issues   []dastJSONIssue `json:"issues"`
	Findings []dastJSONIssue `json:"findings"`
}

type dastJSONIssue struct {
	URL         string `json:"url"`
	Endpoint    string `json:"endpoint"`
	Path        string `json:"path"`
	Method      string `json:"method"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Remediation string `json:"remediation"`
	CWE         string `json:"cwe"`
}

// parseDAST detects the report encoding by its first byte: XML for ZAP's
// native export, JSON otherwise. A payload that decodes as neither is a
// ValidationError.
func (p *Parser) parseDAST(data []byte) ([]schemas.VulnerabilityRecord, error) {
	if data[0] == '<' {
		return p.parseZAPXML(data)
	}
	records, jsonErr := p.parseDASTJSON(data)
	if jsonErr == nil {
		return records, nil
	}
	// Some scanners emit XML without a declaration or leading whitespace
	// that survived trimming; give XML one more chance before giving up.
	if records, xmlErr := p.parseZAPXML(data); xmlErr == nil {
		return records, nil
	}
	return nil, schemas.NewValidationError("DAST report is neither valid JSON nor ZAP XML: %v", jsonErr)
}

func (p *Parser) parseZAPXML(data []byte) ([]schemas.VulnerabilityRecord, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, schemas.NewValidationError("failed to parse ZAP XML report: %v", err)
	}
	// etree tolerates rootless character data, so a nil root is the only
	// signal that the payload was not XML at all.
	if doc.Root() == nil {
		return nil, schemas.NewValidationError("ZAP XML report has no root element")
	}

	alerts := doc.FindElements("//alertitem")
	records := make([]schemas.VulnerabilityRecord, 0, len(alerts))
	for _, alert := range alerts {
		riskCode := childText(alert, "riskcode")
		if riskCode == "" {
			riskCode = "1"
		}

		identifier := ""
		if cweID := childText(alert, "cweid"); cweID != "" {
			identifier = "CWE-" + cweID
		}

		url, method := "Unknown", "GET"
		if instance := alert.FindElement(".//instance"); instance != nil {
			if uri := childText(instance, "uri"); uri != "" {
				url = uri
			}
			if m := childText(instance, "method"); m != "" {
				method = m
			}
		}

		title := orDefault(childText(alert, "alert"), "Unknown Issue")
		records = append(records, schemas.VulnerabilityRecord{
			ID:             newRecordID(),
			Title:          title,
			Description:    orDefault(childText(alert, "desc"), "No description"),
			Severity:       riskSeverity(riskCode),
			SourceType:     schemas.SourceDAST,
			Category:       ExtractCategory(title),
			Location:       url,
			Identifier:     identifier,
			Recommendation: orDefault(childText(alert, "solution"), "Review and fix"),
			Confidence:     orDefault(childText(alert, "confidence"), "MEDIUM"),
			Endpoint:       extractEndpoint(url),
			Method:         method,
			ReportIndex:    len(records),
		})
	}
	p.logger.Info("Parsed ZAP XML report",
		zap.Int("alerts", len(alerts)),
		zap.Int("records", len(records)))
	return records, nil
}

func (p *Parser) parseDASTJSON(data []byte) ([]schemas.VulnerabilityRecord, error) {
	var report dastJSONReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, schemas.NewValidationError("failed to decode DAST JSON report: %v", err)
	}

	issues := report.Issues
	if len(issues) == 0 {
		issues = report.Findings
	}

	records := make([]schemas.VulnerabilityRecord, 0, len(issues))
	for _, issue := range issues {
		title := issue.Title
		if title == "" {
			title = orDefault(issue.Name, "Unknown")
		}
		endpoint := issue.Endpoint
		if endpoint == "" {
			endpoint = orDefault(issue.Path, "/")
		}
		records = append(records, schemas.VulnerabilityRecord{
			ID:             newRecordID(),
			Title:          title,
			Description:    orDefault(issue.Description, "No description"),
			Severity:       riskSeverity(orDefault(issue.Severity, "MEDIUM")),
			SourceType:     schemas.SourceDAST,
			Category:       ExtractCategory(title),
			Location:       orDefault(issue.URL, "Unknown"),
			Identifier:     issue.CWE,
			Recommendation: firstNonEmpty(issue.Solution, issue.Remediation, "Review and fix"),
			Confidence:     orDefault(issue.Confidence, "MEDIUM"),
			Endpoint:       endpoint,
			Method:         orDefault(issue.Method, "GET"),
			ReportIndex:    len(records),
		})
	}
	p.logger.Info("Parsed DAST JSON report",
		zap.Int("issues", len(issues)),
		zap.Int("records", len(records)))
	return records, nil
}

// riskSeverity folds ZAP risk codes and textual risk levels into the
// canonical severity scale. ZAP encodes risk as 3=High, 2=Medium, 1=Low,
// 0=Informational.
func riskSeverity(risk string) schemas.Severity {
	switch strings.ToUpper(strings.TrimSpace(risk)) {
	case "3", "HIGH":
		return schemas.SeverityHigh
	case "2", "MEDIUM":
		return schemas.SeverityMedium
	case "1", "LOW", "0", "INFO", "INFORMATIONAL":
		return schemas.SeverityLow
	default:
		return schemas.SeverityMedium
	}
}

// extractEndpoint reduces a full URL to its path, dropping scheme, host and
// query string. Inputs without a scheme pass through untouched.
func extractEndpoint(url string) string {
	_, rest, found := strings.Cut(url, "://")
	if !found {
		return url
	}
	_, path, found := strings.Cut(rest, "/")
	if !found {
		return url
	}
	path = "/" + path
	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}
	return path
}

func childText(parent *etree.Element, tag string) string {
	if child := parent.SelectElement(tag); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
