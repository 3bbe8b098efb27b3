package tracking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
)

// testRecord builds a deterministic record the way the pipeline would,
// via NewRecord, so every test exercises the real construction path.
func testRecord(id string, severity schemas.Severity, created time.Time) schemas.TrackingRecord {
	return NewRecord(schemas.PolicyDocument{
		PolicyID:           id,
		VulnerabilityID:    "vuln-" + id,
		VulnerabilityTitle: "SQL Injection in login handler",
		SourceType:         schemas.SourceSAST,
		Severity:           severity,
		GeneratedText:      "# Policy\nUse parameterized queries.",
		MappedControls:     []string{"PR.AC", "DE.CM-7", "A.14.2.5"},
		ModelUsed:          "llama-3.3-70b-versatile",
	}, "", created)
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	doc := schemas.PolicyDocument{
		PolicyID:           "pol-001",
		VulnerabilityID:    "sast-001",
		VulnerabilityTitle: "SQL Injection",
		SourceType:         schemas.SourceSAST,
		Severity:           schemas.SeverityCritical,
		MappedControls:     []string{"PR.AC", "A.14.2.5", "DE.CM-7"},
		ModelUsed:          "llama-3.3-70b-versatile",
	}

	rec := NewRecord(doc, "", now)

	assert.Equal(t, "pol-001", rec.PolicyID)
	assert.Equal(t, "SQL Injection", rec.VulnerabilityTitle)
	assert.Equal(t, schemas.SourceSAST, rec.VulnerabilityType)
	assert.Equal(t, schemas.SeverityCritical, rec.Severity)
	assert.Equal(t, schemas.PolicyNotStarted, rec.Status)
	assert.Empty(t, rec.AssignedTo)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, now, rec.UpdatedAt)
	assert.Equal(t, now.Add(48*time.Hour), rec.DueDate)
	assert.Equal(t, 1, rec.Priority)

	assert.Equal(t, []string{"PR.AC", "DE.CM-7"}, rec.NISTCSFControls,
		"NIST ids keep their retrieval order")
	assert.Equal(t, []string{"A.14.2.5"}, rec.ISO27001Controls)

	require.Len(t, rec.Timeline, 1)
	event := rec.Timeline[0]
	assert.Equal(t, EventCreated, event.EventType)
	assert.Equal(t, PipelineActor, event.Actor, "empty actor falls back to the pipeline")
	assert.Equal(t, now, event.Timestamp)
	assert.Equal(t, schemas.PolicyNotStarted, event.ToStatus)
	assert.Contains(t, event.Details, "llama-3.3-70b-versatile")

	named := NewRecord(doc, "alice", now)
	assert.Equal(t, "alice", named.Timeline[0].Actor)
}

func TestNewRecord_DueDatesFollowSeverity(t *testing.T) {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		severity schemas.Severity
		window   time.Duration
		priority int
	}{
		{"Critical", schemas.SeverityCritical, 48 * time.Hour, 1},
		{"High", schemas.SeverityHigh, 7 * 24 * time.Hour, 2},
		{"Medium", schemas.SeverityMedium, 14 * 24 * time.Hour, 3},
		{"Low", schemas.SeverityLow, 30 * 24 * time.Hour, 4},
		{"Unknown", schemas.Severity("BOGUS"), 30 * 24 * time.Hour, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := NewRecord(schemas.PolicyDocument{PolicyID: "p", Severity: tc.severity}, "", now)
			assert.Equal(t, now.Add(tc.window), rec.DueDate)
			assert.Equal(t, tc.priority, rec.Priority)
		})
	}
}

func TestNewRecord_NormalizesToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := time.Date(2026, 2, 10, 9, 30, 0, 0, loc)

	rec := NewRecord(schemas.PolicyDocument{PolicyID: "p"}, "", local)

	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.True(t, rec.CreatedAt.Equal(local))
}

func TestSplitControls(t *testing.T) {
	nist, iso := splitControls([]string{"PR.AC-4", "A.14.2.5", "DE.CM-7", "A.9.4.1", "ID.AM"})

	assert.Equal(t, []string{"PR.AC-4", "DE.CM-7", "ID.AM"}, nist)
	assert.Equal(t, []string{"A.14.2.5", "A.9.4.1"}, iso)

	nist, iso = splitControls(nil)
	assert.Nil(t, nist)
	assert.Nil(t, iso)
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	t.Run("EmptyStoreHasAllKeys", func(t *testing.T) {
		stats := computeStats(nil, now)

		assert.Zero(t, stats.Total)
		assert.Zero(t, stats.Overdue)
		assert.Zero(t, stats.CompletionRate)
		assert.Len(t, stats.ByStatus, 6)
		assert.Len(t, stats.BySeverity, 4)
		assert.Equal(t, 0, stats.ByStatus[schemas.PolicyReopened])
	})

	t.Run("MixedRecords", func(t *testing.T) {
		old := now.Add(-60 * 24 * time.Hour)

		fixed := testRecord("pol-fixed", schemas.SeverityCritical, old)
		fixed.Status = schemas.PolicyFixed

		verified := testRecord("pol-verified", schemas.SeverityHigh, old)
		verified.Status = schemas.PolicyVerified

		overdue := testRecord("pol-overdue", schemas.SeverityMedium, old)

		fresh := testRecord("pol-fresh", schemas.SeverityLow, now)

		stats := computeStats([]schemas.TrackingRecord{fixed, verified, overdue, fresh}, now)

		assert.Equal(t, 4, stats.Total)
		assert.Equal(t, 1, stats.ByStatus[schemas.PolicyFixed])
		assert.Equal(t, 1, stats.ByStatus[schemas.PolicyVerified])
		assert.Equal(t, 2, stats.ByStatus[schemas.PolicyNotStarted])
		assert.Equal(t, 1, stats.BySeverity[schemas.SeverityCritical])
		assert.Equal(t, 1, stats.BySeverity[schemas.SeverityLow])
		assert.InDelta(t, 50.0, stats.CompletionRate, 0.001)

		// Only the open record past its due date counts; completed ones
		// are never overdue no matter how old.
		assert.Equal(t, 1, stats.Overdue)
	})
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("FileBackend", func(t *testing.T) {
		cfg := config.TrackingConfig{
			Backend: config.TrackingFile,
			Path:    filepath.Join(t.TempDir(), "tracking.json"),
		}

		store, err := New(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer store.Close()

		require.IsType(t, &FileStore{}, store)

		rec := testRecord("pol-001", schemas.SeverityHigh, time.Now().UTC())
		require.NoError(t, store.SaveAll(ctx, []schemas.TrackingRecord{rec}))

		got, err := store.Get(ctx, "pol-001")
		require.NoError(t, err)
		assert.Equal(t, rec.PolicyID, got.PolicyID)
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := New(ctx, config.TrackingConfig{Backend: "etcd"}, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tracking backend")
	})

	t.Run("BadPostgresURL", func(t *testing.T) {
		cfg := config.TrackingConfig{
			Backend:     config.TrackingPostgres,
			DatabaseURL: "://not-a-url",
		}
		_, err := New(ctx, cfg, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tracking database config")
	})
}
