// File: cmd/resolve_test.go
package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/securai/api/schemas"
)

func TestResolveCmd_RequiresASource(t *testing.T) {
	resetForTest(t)

	_, err := executeCommandNoPreRun(t, "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to resolve")
}

func TestPrintResolution_ContainerizedTarget(t *testing.T) {
	target := &schemas.ScanTarget{
		RepoURL:     "https://github.com/acme/shop",
		ResolvedURL: "http://localhost:49631",
		Tier:        schemas.TierContainerized,
		Detection: schemas.Detection{
			Framework:           "flask",
			Port:                5000,
			Image:               "securai-dast-1a2b3c",
			ContainerID:         "c0ffee",
			DockerfileGenerated: true,
			TierNotes:           []string{"no target URL provided"},
		},
	}

	var buf bytes.Buffer
	printResolution(&buf, target)
	out := buf.String()

	assert.Contains(t, out, "Resolution tier: CONTAINERIZED")
	assert.Contains(t, out, "Scan target: http://localhost:49631")
	assert.Contains(t, out, "Detected framework: flask (port 5000)")
	assert.Contains(t, out, "Image: securai-dast-1a2b3c")
	assert.Contains(t, out, "Container: c0ffee")
	assert.Contains(t, out, "synthesized")
	assert.Contains(t, out, "note: no target URL provided")
}

func TestPrintResolution_UserProvidedTarget(t *testing.T) {
	target := &schemas.ScanTarget{
		ResolvedURL: "https://staging.acme.dev",
		Tier:        schemas.TierUserProvided,
	}

	var buf bytes.Buffer
	printResolution(&buf, target)
	out := buf.String()

	assert.Contains(t, out, "Resolution tier: USER_PROVIDED")
	assert.Contains(t, out, "Scan target: https://staging.acme.dev")
	assert.NotContains(t, out, "Detected framework")
	assert.NotContains(t, out, "No scannable target")
}

func TestPrintResolution_UnavailablePrintsGuidance(t *testing.T) {
	target := &schemas.ScanTarget{
		Tier: schemas.TierUnavailable,
		Detection: schemas.Detection{
			TierNotes: []string{"URL probe failed", "no hosted deployment detected"},
			Guidance:  []string{"Provide a live deployment URL for immediate scanning"},
		},
	}

	var buf bytes.Buffer
	printResolution(&buf, target)
	out := buf.String()

	assert.Contains(t, out, "Resolution tier: UNAVAILABLE")
	assert.NotContains(t, out, "Scan target:")
	assert.Contains(t, out, "note: URL probe failed")
	assert.Contains(t, out, "No scannable target could be resolved")
	assert.Contains(t, out, "- Provide a live deployment URL")
}
