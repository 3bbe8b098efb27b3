package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/securai/api/schemas"
)

const semgrepFixture = `{
  "results": [
    {
      "check_id": "javascript.express.security.audit.sqli.node-mysql-sqli",
      "path": "src/routes/users.js",
      "start": {"line": 42},
      "end": {"line": 44},
      "extra": {
        "message": "Detected string concatenation with a non-literal variable in a mysql query.",
        "severity": "ERROR",
        "fix": "Use parameterized queries.",
        "metadata": {
          "cwe": ["CWE-89: Improper Neutralization of Special Elements used in an SQL Command"],
          "confidence": "HIGH"
        }
      }
    },
    {
      "check_id": "javascript.express.security.audit.helmet-missing",
      "path": "src/app.js",
      "start": {"line": 1},
      "extra": {
        "severity": "WARNING",
        "metadata": {
          "cwe": "CWE-693"
        }
      }
    },
    {
      "path": "src/orphan.js",
      "start": {"line": 7},
      "extra": {"severity": "ERROR"}
    }
  ]
}`

func TestParseSemgrep(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	records, err := p.Parse(schemas.SourceSAST, []byte(semgrepFixture))
	require.NoError(t, err)
	require.Len(t, records, 2, "the result without a check_id must be skipped")

	sqli := records[0]
	assert.NotEmpty(t, sqli.ID)
	assert.Equal(t, "Node Mysql Sqli", sqli.Title)
	assert.Equal(t, schemas.SeverityHigh, sqli.Severity)
	assert.Equal(t, schemas.SourceSAST, sqli.SourceType)
	assert.Equal(t, "SQL Injection", sqli.Category)
	assert.Equal(t, "src/routes/users.js:42", sqli.Location)
	assert.Equal(t, "CWE-89: Improper Neutralization of Special Elements used in an SQL Command", sqli.Identifier)
	assert.Equal(t, "Use parameterized queries.", sqli.Recommendation)
	assert.Equal(t, "HIGH", sqli.Confidence)
	assert.Equal(t, 0, sqli.ReportIndex)

	helmet := records[1]
	assert.Equal(t, "Helmet Missing", helmet.Title)
	assert.Equal(t, schemas.SeverityMedium, helmet.Severity)
	assert.Equal(t, "Security Headers", helmet.Category)
	assert.Equal(t, "CWE-693", helmet.Identifier, "string-typed cwe metadata must be accepted")
	assert.Equal(t, "No description", helmet.Description)
	assert.Equal(t, "Review and fix this vulnerability", helmet.Recommendation)
	assert.Equal(t, "HIGH", helmet.Confidence)
	assert.Equal(t, 1, helmet.ReportIndex)
}

const sonarFixture = `{
  "issues": [
    {
      "rule": "javasecurity:S3649",
      "severity": "CRITICAL",
      "type": "VULNERABILITY",
      "component": "src/main/java/UserDao.java",
      "line": 88,
      "message": "Change this code to not construct SQL queries directly from user-controlled data."
    },
    {
      "rule": "java:S2068",
      "severity": "MINOR",
      "type": "SECURITY_HOTSPOT",
      "component": "src/main/resources/application.yml",
      "message": "Remove this hard-coded password."
    }
  ]
}`

func TestParseSonarQube(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	records, err := p.Parse(schemas.SourceSAST, []byte(sonarFixture))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "javasecurity:S3649", first.Title)
	assert.Equal(t, schemas.SeverityCritical, first.Severity)
	assert.Equal(t, "VULNERABILITY", first.Category)
	assert.Equal(t, "src/main/java/UserDao.java:88", first.Location)
	assert.Equal(t, "Fix according to SonarQube recommendations", first.Recommendation)
	assert.Equal(t, "HIGH", first.Confidence)

	second := records[1]
	assert.Equal(t, schemas.SeverityMedium, second.Severity, "MINOR is outside the canonical map and defaults to MEDIUM")
	assert.Equal(t, "src/main/resources/application.yml", second.Location, "no line suffix when the issue has no line")
}

func TestParseSAST_FormatDetection(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	testCases := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "unknown_shape",
			input:   `{"alerts": []}`,
			wantErr: "unrecognized SAST report format",
		},
		{
			name:    "not_json",
			input:   `results: []`,
			wantErr: "not valid JSON",
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Parse(schemas.SourceSAST, []byte(tt.input))
			require.Error(t, err)
			assert.True(t, schemas.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSemgrep_EmptyResults(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	records, err := p.Parse(schemas.SourceSAST, []byte(`{"results": []}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}
