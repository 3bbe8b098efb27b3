package normalize

import (
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/securai/api/schemas"
)

const npmAuditFixture = `{
  "auditReportVersion": 2,
  "vulnerabilities": {
    "lodash": {
      "name": "lodash",
      "severity": "high",
      "title": "Prototype Pollution in lodash",
      "cwe": ["CWE-1321"],
      "url": "https://github.com/advisories/GHSA-p6mc-m468-83gw",
      "range": "<4.17.21",
      "findings": [{"version": "4.17.20", "paths": ["lodash"]}],
      "fixAvailable": {"name": "lodash", "version": "4.17.21", "isSemVerMajor": false}
    },
    "express": [
      {
        "severity": "moderate",
        "title": "Open Redirect in express",
        "cwe": [],
        "url": "https://github.com/advisories/GHSA-rv95-896h-c2vc/",
        "range": "<4.19.2",
        "findings": [{"version": "4.17.1"}],
        "fixAvailable": true
      }
    ]
  }
}`

func TestParseNPMAudit(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	records, err := p.Parse(schemas.SourceSCA, []byte(npmAuditFixture))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Packages are walked in sorted order, so express comes first.
	express := records[0]
	assert.Equal(t, "express vulnerability", express.Title)
	assert.Equal(t, "Open Redirect in express", express.Description)
	assert.Equal(t, schemas.SeverityMedium, express.Severity)
	assert.Equal(t, schemas.SourceSCA, express.SourceType)
	assert.Equal(t, "Vulnerable Dependency", express.Category)
	assert.Equal(t, "express@4.17.1", express.Location)
	assert.Equal(t, "GHSA-rv95-896h-c2vc", express.Identifier, "advisory id must come from the URL when the CWE list is empty")
	require.NotNil(t, express.Package)
	assert.Equal(t, "pkg:npm/express@4.17.1", express.Package.PURL)
	assert.Empty(t, express.Package.FixedVersion, "a bare fixAvailable=true names no version")
	assert.Equal(t, "No fix available yet; monitor the advisory for updates", express.Recommendation)
	assert.Equal(t, 0, express.ReportIndex)

	lodash := records[1]
	assert.Equal(t, "lodash vulnerability", lodash.Title)
	assert.Equal(t, schemas.SeverityHigh, lodash.Severity)
	assert.Equal(t, "CWE-1321", lodash.Identifier)
	require.NotNil(t, lodash.Package)
	assert.Equal(t, "lodash", lodash.Package.Name)
	assert.Equal(t, "4.17.20", lodash.Package.Version)
	assert.Equal(t, "npm", lodash.Package.Ecosystem)
	assert.Equal(t, "<4.17.21", lodash.Package.VulnerableRange)
	assert.Equal(t, "4.17.21", lodash.Package.FixedVersion)
	assert.Equal(t, "Upgrade lodash to version 4.17.21", lodash.Recommendation)
	assert.Equal(t, 1, lodash.ReportIndex)
}

const pipAuditFixture = `{
  "dependencies": [
    {
      "name": "django",
      "version": "3.2.0",
      "vulns": [
        {
          "id": "PYSEC-2021-98",
          "severity": "HIGH",
          "description": "Potential directory traversal via uploaded files.",
          "vulnerable_versions": ">=3.2,<3.2.4",
          "fixed_version": "3.2.4"
        }
      ]
    },
    {
      "name": "requests",
      "version": "2.31.0",
      "vulns": []
    }
  ]
}`

func TestParsePipAudit(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	records, err := p.Parse(schemas.SourceSCA, []byte(pipAuditFixture))
	require.NoError(t, err)
	require.Len(t, records, 1, "dependencies without vulns produce no records")

	django := records[0]
	assert.Equal(t, "django vulnerability", django.Title)
	assert.Equal(t, "PYSEC-2021-98", django.Identifier)
	assert.Equal(t, schemas.SeverityHigh, django.Severity)
	assert.Equal(t, "django@3.2.0", django.Location)
	assert.Equal(t, "Upgrade django to version 3.2.4", django.Recommendation)
	require.NotNil(t, django.Package)
	assert.Equal(t, "pypi", django.Package.Ecosystem)
	assert.Equal(t, "pkg:pypi/django@3.2.0", django.Package.PURL)
	assert.Equal(t, ">=3.2,<3.2.4", django.Package.VulnerableRange)
}

func TestParseSCA_FormatDetection(t *testing.T) {
	t.Parallel()
	p := New(zaptest.NewLogger(t))

	_, err := p.Parse(schemas.SourceSCA, []byte(`{"packages": []}`))
	require.Error(t, err)
	assert.True(t, schemas.IsValidation(err))
	assert.Contains(t, err.Error(), "unrecognized SCA report format")
}

func TestGHSAFromURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		url  string
		want string
	}{
		{"https://github.com/advisories/GHSA-p6mc-m468-83gw", "GHSA-p6mc-m468-83gw"},
		{"https://github.com/advisories/GHSA-rv95-896h-c2vc/", "GHSA-rv95-896h-c2vc"},
		{"https://nvd.nist.gov/vuln/detail/CVE-2021-23337", ""},
		{"", ""},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ghsaFromURL(tt.url))
		})
	}
}

func TestNPMFix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		raw           string
		wantAvailable bool
		wantVersion   string
	}{
		{"object_with_version", `{"name": "lodash", "version": "4.17.21"}`, true, "4.17.21"},
		{"object_without_version", `{"name": "lodash"}`, true, ""},
		{"bool_true", `true`, false, ""},
		{"bool_false", `false`, false, ""},
		{"absent", ``, false, ""},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			available, version := npmFix(json.RawMessage(tt.raw))
			assert.Equal(t, tt.wantAvailable, available)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestDecodeAdvisories_BothShapes(t *testing.T) {
	t.Parallel()

	single, err := decodeAdvisories(json.RawMessage(`{"severity": "high"}`))
	require.NoError(t, err)
	require.Len(t, single, 1)

	list, err := decodeAdvisories(json.RawMessage(`[{"severity": "high"}, {"severity": "low"}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = decodeAdvisories(json.RawMessage(`"not an advisory"`))
	assert.Error(t, err)
}

func TestBuildPURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pkg:npm/express@4.17.1", buildPURL("npm", "express", "4.17.1"))
	assert.Equal(t, "pkg:npm/express", buildPURL("npm", "express", "Unknown"))
	assert.Equal(t, "pkg:pypi/django@3.2.0", buildPURL("pypi", "django", "3.2.0"))

	scoped := buildPURL("npm", "@babel/traverse", "7.23.2")
	assert.True(t, strings.HasPrefix(scoped, "pkg:npm/"), scoped)
	assert.Contains(t, scoped, "babel")
	assert.Contains(t, scoped, "traverse@7.23.2")
}
