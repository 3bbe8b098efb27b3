// Package reporting renders finished pipeline runs into human- and
// machine-readable report files, and formats compliance coverage summaries
// for the CLI.
package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/compliance"
)

// DefaultOutputDir receives reports when no directory is configured.
const DefaultOutputDir = "securai-reports"

// Writer renders a RunResult into an output directory as a JSON document
// plus Markdown and HTML renderings. The directory is created on demand.
type Writer struct {
	dir string
	log *zap.Logger

	// now is swapped in tests for deterministic file names.
	now func() time.Time
}

// NewWriter returns a Writer targeting dir, falling back to
// DefaultOutputDir when dir is empty.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	if dir == "" {
		dir = DefaultOutputDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		dir: dir,
		log: logger.Named("reporting"),
		now: time.Now,
	}
}

// Write renders the result as policies_<run_id>_<timestamp>.{json,md,html}
// and returns the written paths in that order. On failure it returns the
// paths written so far along with the error, so callers can still surface
// partial output.
func (w *Writer) Write(result *schemas.RunResult) ([]string, error) {
	if result == nil {
		return nil, fmt.Errorf("no run result to render")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory '%s': %w", w.dir, err)
	}

	base := fmt.Sprintf("policies_%s_%s", result.RunID, w.now().UTC().Format("20060102_150405"))
	var paths []string

	jsonPath := filepath.Join(w.dir, base+".json")
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return paths, fmt.Errorf("failed to encode run result: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return paths, fmt.Errorf("failed to write JSON report: %w", err)
	}
	paths = append(paths, jsonPath)

	mdPath := filepath.Join(w.dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(renderMarkdown(result)), 0o644); err != nil {
		return paths, fmt.Errorf("failed to write Markdown report: %w", err)
	}
	paths = append(paths, mdPath)

	htmlPath := filepath.Join(w.dir, base+".html")
	html, err := renderHTML(result, w.now().UTC())
	if err != nil {
		return paths, fmt.Errorf("failed to render HTML report: %w", err)
	}
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return paths, fmt.Errorf("failed to write HTML report: %w", err)
	}
	paths = append(paths, htmlPath)

	w.log.Info("Run report written",
		zap.String("run_id", result.RunID),
		zap.Int("policies", len(result.Policies)),
		zap.Strings("paths", paths),
	)
	return paths, nil
}

// -- Markdown --

func renderMarkdown(result *schemas.RunResult) string {
	var b strings.Builder

	b.WriteString("# Security Policy Report\n\n")
	fmt.Fprintf(&b, "- **Run ID**: %s\n", result.RunID)
	fmt.Fprintf(&b, "- **Started**: %s\n", result.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Finished**: %s\n", result.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Findings**: %d SAST, %d SCA, %d DAST\n",
		result.Counts[schemas.SourceSAST], result.Counts[schemas.SourceSCA], result.Counts[schemas.SourceDAST])
	fmt.Fprintf(&b, "- **Policies generated**: %d\n", len(result.Policies))
	if result.DegradedRetrieval {
		b.WriteString("- **Warning**: compliance retrieval was degraded; control mappings are incomplete\n")
	}
	if result.Cancelled {
		b.WriteString("- **Warning**: the run was cancelled before completing\n")
	}
	b.WriteString("\n")

	for i, p := range result.Policies {
		fmt.Fprintf(&b, "---\n\n## Policy %d: %s\n\n", i+1, p.VulnerabilityTitle)
		fmt.Fprintf(&b, "- **Source**: %s | **Severity**: %s\n", p.SourceType, p.Severity)
		fmt.Fprintf(&b, "- **Model**: %s\n", p.ModelUsed)
		if len(p.MappedControls) > 0 {
			fmt.Fprintf(&b, "- **Mapped controls**: %s\n", strings.Join(p.MappedControls, ", "))
		}
		if quality := qualityLine(p.Quality); quality != "" {
			fmt.Fprintf(&b, "- **Quality**: %s\n", quality)
		}
		fmt.Fprintf(&b, "\n%s\n\n", strings.TrimSpace(p.GeneratedText))
	}

	if len(result.ItemErrors) > 0 {
		b.WriteString("---\n\n## Failed Items\n\n")
		for _, item := range result.ItemErrors {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", item.Title, item.Phase, item.Message)
		}
	}
	return b.String()
}

func qualityLine(q schemas.QualityScores) string {
	if q.Overall == 0 && q.BLEU == 0 && q.ROUGEL == 0 {
		return ""
	}
	line := fmt.Sprintf("overall %.2f (%s), BLEU %.2f, ROUGE-L %.2f", q.Overall, q.Grade, q.BLEU, q.ROUGEL)
	if q.NeedsReview {
		line += ", needs review"
	}
	return line
}

// -- HTML --

type policyView struct {
	Number    int
	Type      string
	TypeClass string
	Severity  string
	Title     string
	Text      string
	Controls  string
	Quality   string
	Model     string
}

type htmlData struct {
	RunID         string
	Generated     string
	SAST          int
	SCA           int
	DAST          int
	TotalPolicies int
	Models        []string
	Degraded      bool
	Cancelled     bool
	Policies      []policyView
	ItemErrors    []schemas.ItemError
}

func renderHTML(result *schemas.RunResult, now time.Time) ([]byte, error) {
	data := htmlData{
		RunID:         result.RunID,
		Generated:     now.Format("January 2, 2006 at 15:04:05 MST"),
		SAST:          result.Counts[schemas.SourceSAST],
		SCA:           result.Counts[schemas.SourceSCA],
		DAST:          result.Counts[schemas.SourceDAST],
		TotalPolicies: len(result.Policies),
		Degraded:      result.DegradedRetrieval,
		Cancelled:     result.Cancelled,
		ItemErrors:    result.ItemErrors,
	}

	models := make(map[string]struct{})
	for i, p := range result.Policies {
		if p.ModelUsed != "" {
			models[p.ModelUsed] = struct{}{}
		}
		data.Policies = append(data.Policies, policyView{
			Number:    i + 1,
			Type:      string(p.SourceType),
			TypeClass: strings.ToLower(string(p.SourceType)),
			Severity:  string(p.Severity),
			Title:     p.VulnerabilityTitle,
			Text:      strings.TrimSpace(p.GeneratedText),
			Controls:  strings.Join(p.MappedControls, ", "),
			Quality:   qualityLine(p.Quality),
			Model:     p.ModelUsed,
		})
	}
	for m := range models {
		data.Models = append(data.Models, m)
	}
	sort.Strings(data.Models)

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var htmlTemplate = template.Must(template.New("report").Parse(htmlReport))

const htmlReport = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Security Policy Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            padding: 40px 20px;
            color: #333;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 20px;
            overflow: hidden;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 50px 40px;
            text-align: center;
        }
        .header h1 { font-size: 2.2em; margin-bottom: 12px; }
        .header p { opacity: 0.95; }
        .stats {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 20px;
            padding: 40px;
            background: #f8f9fa;
        }
        .stat-card {
            background: white;
            padding: 25px;
            border-radius: 12px;
            text-align: center;
            border-left: 5px solid #2c3e50;
        }
        .stat-card.sast { border-color: #667eea; }
        .stat-card.sca { border-color: #f093fb; }
        .stat-card.dast { border-color: #4facfe; }
        .stat-card h3 { font-size: 2.2em; margin-bottom: 8px; color: #2c3e50; }
        .stat-card p { color: #666; font-size: 0.9em; text-transform: uppercase; letter-spacing: 1px; }
        .content { padding: 40px; }
        .banner {
            background: #fff3cd;
            border: 1px solid #ffc107;
            border-radius: 10px;
            padding: 16px 20px;
            margin-bottom: 30px;
            color: #664d03;
        }
        .llm-info {
            background: #2c3e50;
            color: white;
            padding: 25px;
            border-radius: 12px;
            margin-bottom: 30px;
        }
        .llm-info h2 { margin-bottom: 12px; font-size: 1.3em; }
        .llm-info li { list-style: none; padding: 4px 0; }
        .policy {
            background: white;
            border: 2px solid #e1e8ed;
            border-radius: 12px;
            padding: 25px;
            margin-bottom: 25px;
        }
        .policy-header { margin-bottom: 15px; padding-bottom: 15px; border-bottom: 2px solid #f0f0f0; }
        .policy-number { font-size: 1.4em; font-weight: 700; color: #2c3e50; margin-right: 12px; }
        .policy-type {
            display: inline-block;
            padding: 6px 16px;
            border-radius: 16px;
            font-weight: 600;
            font-size: 0.8em;
            text-transform: uppercase;
            letter-spacing: 1px;
            color: white;
            background: #2c3e50;
        }
        .policy-type.sast { background: #667eea; }
        .policy-type.sca { background: #f5576c; }
        .policy-type.dast { background: #4facfe; }
        .severity {
            display: inline-block;
            padding: 5px 14px;
            border-radius: 12px;
            font-weight: 600;
            font-size: 0.75em;
            margin-left: 8px;
        }
        .severity.CRITICAL { background: #dc3545; color: white; }
        .severity.HIGH { background: #fd7e14; color: white; }
        .severity.MEDIUM { background: #ffc107; color: #000; }
        .severity.LOW { background: #28a745; color: white; }
        .policy-title { font-size: 1.3em; font-weight: 600; margin-bottom: 12px; color: #2c3e50; }
        .policy-content {
            line-height: 1.7;
            color: #555;
            white-space: pre-wrap;
            background: #f8f9fa;
            padding: 20px;
            border-radius: 10px;
            border-left: 4px solid #667eea;
        }
        .policy-meta { margin-top: 12px; color: #0066cc; font-size: 0.85em; }
        .errors {
            background: #f8d7da;
            border: 1px solid #dc3545;
            border-radius: 12px;
            padding: 25px;
            color: #58151c;
        }
        .errors h2 { margin-bottom: 12px; }
        .errors li { margin-left: 20px; padding: 3px 0; }
        .footer { background: #2c3e50; color: white; text-align: center; padding: 25px; font-size: 0.9em; }
        @media print { body { background: white; padding: 0; } }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Security Policy Report</h1>
            <p>Run {{.RunID}} &middot; Generated {{.Generated}}</p>
        </div>
        <div class="stats">
            <div class="stat-card sast"><h3>{{.SAST}}</h3><p>SAST Findings</p></div>
            <div class="stat-card sca"><h3>{{.SCA}}</h3><p>SCA Findings</p></div>
            <div class="stat-card dast"><h3>{{.DAST}}</h3><p>DAST Findings</p></div>
            <div class="stat-card"><h3>{{.TotalPolicies}}</h3><p>Policies</p></div>
        </div>
        <div class="content">
{{- if .Degraded}}
            <div class="banner">Compliance retrieval was degraded for this run; control mappings are incomplete.</div>
{{- end}}
{{- if .Cancelled}}
            <div class="banner">This run was cancelled before completing; results are partial.</div>
{{- end}}
{{- if .Models}}
            <div class="llm-info">
                <h2>Models Used</h2>
                <ul>
{{- range .Models}}
                    <li>{{.}}</li>
{{- end}}
                </ul>
            </div>
{{- end}}
{{- range .Policies}}
            <div class="policy">
                <div class="policy-header">
                    <span class="policy-number">Policy #{{.Number}}</span>
                    <span class="policy-type {{.TypeClass}}">{{.Type}}</span>
                    <span class="severity {{.Severity}}">{{.Severity}}</span>
                </div>
                <div class="policy-title">{{.Title}}</div>
                <div class="policy-content">{{.Text}}</div>
{{- if .Controls}}
                <div class="policy-meta">Controls: {{.Controls}}</div>
{{- end}}
{{- if .Quality}}
                <div class="policy-meta">Quality: {{.Quality}}</div>
{{- end}}
                <div class="policy-meta">Generated by {{.Model}}</div>
            </div>
{{- end}}
{{- if .ItemErrors}}
            <div class="errors">
                <h2>Failed Items</h2>
                <ul>
{{- range .ItemErrors}}
                    <li><strong>{{.Title}}</strong> ({{.Phase}}): {{.Message}}</li>
{{- end}}
                </ul>
            </div>
{{- end}}
        </div>
        <div class="footer">SecurAI &middot; AI-assisted security policy generation</div>
    </div>
</body>
</html>
`

// -- Coverage --

// RenderCoverage formats a coverage report for terminal output.
func RenderCoverage(report compliance.CoverageReport) string {
	var b strings.Builder

	b.WriteString("# Compliance Coverage\n\n")
	fmt.Fprintf(&b, "Overall score: %.1f%%\n\n", report.OverallScore)
	renderFramework(&b, "NIST CSF", report.NISTCSF, report.NISTCSF.ByFunction)
	b.WriteString("\n")
	renderFramework(&b, "ISO/IEC 27001", report.ISO27001, report.ISO27001.ByDomain)
	return b.String()
}

func renderFramework(b *strings.Builder, name string, cov compliance.FrameworkCoverage, groups map[string]compliance.GroupCoverage) {
	fmt.Fprintf(b, "## %s: %d/%d controls (%.1f%%)\n\n", name, cov.CoveredControls, cov.TotalControls, cov.CoveragePercentage)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		g := groups[k]
		fmt.Fprintf(b, "- %s: %d/%d (%.1f%%)\n", k, g.Covered, g.Total, g.Percentage)
	}
	if len(cov.Gaps) > 0 {
		fmt.Fprintf(b, "\nGaps: %s\n", strings.Join(cov.Gaps, ", "))
	}
}
