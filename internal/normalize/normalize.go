// Package normalize turns raw scanner reports into uniform vulnerability
// records. Adapters are tolerant: unknown fields are ignored and malformed
// entries are skipped with a warning, never a fatal error, so one bad
// finding cannot sink a whole report.
package normalize

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser dispatches raw report bytes to the adapter for their source type.
type Parser struct {
	logger *zap.Logger
}

// New creates a report parser.
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("normalize")}
}

// Parse normalizes one report. A report with zero findings is a valid input
// and yields zero records; an unrecognizable format is a ValidationError.
func (p *Parser) Parse(source schemas.SourceType, data []byte) ([]schemas.VulnerabilityRecord, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		p.logger.Warn("Report is empty, producing zero records", zap.String("source", string(source)))
		return nil, nil
	}

	switch source {
	case schemas.SourceSAST:
		return p.parseSAST(data)
	case schemas.SourceSCA:
		return p.parseSCA(data)
	case schemas.SourceDAST:
		return p.parseDAST(data)
	default:
		return nil, schemas.NewValidationError("unknown report source type %q", source)
	}
}

// topLevelKeys probes a JSON object's top-level keys without decoding the
// full document, which is how the adapters detect tool formats.
func topLevelKeys(data []byte) (map[string]json.RawMessage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	return probe, nil
}

// NormalizeSeverity folds the severity vocabularies of the supported tools
// into the four canonical levels. Unknown input lands on MEDIUM rather than
// dropping the finding or inflating it.
func NormalizeSeverity(raw string) schemas.Severity {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CRITICAL":
		return schemas.SeverityCritical
	case "HIGH", "ERROR":
		return schemas.SeverityHigh
	case "MEDIUM", "MODERATE", "WARNING":
		return schemas.SeverityMedium
	case "LOW", "INFO", "INFORMATIONAL":
		return schemas.SeverityLow
	default:
		return schemas.SeverityMedium
	}
}

// ExtractCategory derives a human-readable vulnerability category from a
// tool rule identifier or finding title.
func ExtractCategory(ruleID string) string {
	id := strings.ToLower(ruleID)
	switch {
	case strings.Contains(id, "sqli"), strings.Contains(id, "sql-injection"):
		return "SQL Injection"
	case strings.Contains(id, "xss"), strings.Contains(id, "cross-site-scripting"):
		return "Cross-Site Scripting (XSS)"
	case strings.Contains(id, "csrf"):
		return "Cross-Site Request Forgery (CSRF)"
	case strings.Contains(id, "path-traversal"), strings.Contains(id, "directory-traversal"):
		return "Path Traversal"
	case strings.Contains(id, "command-injection"):
		return "Command Injection"
	case strings.Contains(id, "hardcoded"), strings.Contains(id, "secret"):
		return "Hardcoded Secrets"
	case strings.Contains(id, "crypto"):
		return "Cryptographic Issue"
	case strings.Contains(id, "session"):
		return "Session Management"
	case strings.Contains(id, "helmet"), strings.Contains(id, "header"):
		return "Security Headers"
	case strings.Contains(id, "random"):
		return "Weak Randomness"
	case strings.Contains(id, "redirect"):
		return "Open Redirect"
	default:
		return "Security Vulnerability"
	}
}

// titleCase capitalizes the first letter of every space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// newRecordID mints record identifiers; a variable so tests can pin it.
var newRecordID = uuid.NewString

// stringsOrFirst coerces a JSON field that tools emit as either a string or
// a list of strings into its first non-empty value.
func stringsOrFirst(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
