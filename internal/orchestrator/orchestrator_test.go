package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/reporting"
)

// -- Stub Dependencies --

// stubParser decodes fixtures holding a plain JSON array of records, the
// same shape every real normalizer reduces its report to.
type stubParser struct{}

func (stubParser) Parse(source schemas.SourceType, data []byte) ([]schemas.VulnerabilityRecord, error) {
	var recs []schemas.VulnerabilityRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, schemas.NewValidationError("unrecognized %s report format", source)
	}
	for i := range recs {
		recs[i].SourceType = source
		recs[i].ReportIndex = i
	}
	return recs, nil
}

type stubDrafter struct {
	mu       sync.Mutex
	drafted  []string
	contexts []schemas.ComplianceContext
	degraded bool
	delay    time.Duration

	// draftErr, when set, decides per record whether drafting fails.
	draftErr func(rec schemas.VulnerabilityRecord) error

	// firstDone, when set, is closed after the first successful draft.
	firstDone chan struct{}
	once      sync.Once
}

func (s *stubDrafter) RetrieveContexts(ctx context.Context, rec schemas.VulnerabilityRecord) ([]schemas.ComplianceContext, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	return s.contexts, s.degraded, nil
}

func (s *stubDrafter) DraftWithContexts(ctx context.Context, rec schemas.VulnerabilityRecord, contexts []schemas.ComplianceContext, degraded bool, opts schemas.RunOptions) (schemas.PolicyDocument, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return schemas.PolicyDocument{}, schemas.NewExternalServiceError("llm", ctx.Err())
		case <-time.After(s.delay):
		}
	}
	if s.draftErr != nil {
		if err := s.draftErr(rec); err != nil {
			return schemas.PolicyDocument{}, err
		}
	}

	s.mu.Lock()
	s.drafted = append(s.drafted, rec.ID)
	s.mu.Unlock()

	retrieved := make([]string, 0, len(contexts))
	for _, c := range contexts {
		retrieved = append(retrieved, c.ControlID)
	}
	doc := schemas.PolicyDocument{
		PolicyID:           "pol-" + rec.ID,
		VulnerabilityID:    rec.ID,
		VulnerabilityTitle: rec.Title,
		SourceType:         rec.SourceType,
		Severity:           rec.Severity,
		GeneratedText:      "# Policy\nRemediate " + rec.Title,
		MappedControls:     retrieved,
		RetrievedControls:  retrieved,
		ModelUsed:          s.ModelFor(schemas.TierPowerful),
		DegradedRetrieval:  degraded,
		CreatedAt:          time.Now().UTC(),
	}
	if s.firstDone != nil {
		s.once.Do(func() { close(s.firstDone) })
	}
	return doc, nil
}

func (s *stubDrafter) ModelFor(tier schemas.ModelTier) string {
	if tier == schemas.TierFast {
		return "fast-model"
	}
	return "powerful-model"
}

func (s *stubDrafter) draftedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.drafted...)
}

type stubStore struct {
	mu      sync.Mutex
	saved   []schemas.TrackingRecord
	saveErr error
}

func (s *stubStore) SaveAll(ctx context.Context, records []schemas.TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, records...)
	return nil
}

func (s *stubStore) List(ctx context.Context) ([]schemas.TrackingRecord, error) { return nil, nil }
func (s *stubStore) Get(ctx context.Context, policyID string) (*schemas.TrackingRecord, error) {
	return nil, nil
}
func (s *stubStore) UpdateStatus(ctx context.Context, policyID string, status schemas.PolicyStatus, actor, details string) (*schemas.TrackingRecord, error) {
	return nil, nil
}
func (s *stubStore) UpdateAssignment(ctx context.Context, policyID string, assignee, actor string) (*schemas.TrackingRecord, error) {
	return nil, nil
}
func (s *stubStore) Stats(ctx context.Context) (*schemas.TrackingStats, error) { return nil, nil }
func (s *stubStore) Close()                                                    {}

func (s *stubStore) savedRecords() []schemas.TrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.TrackingRecord(nil), s.saved...)
}

type failingWriter struct{ err error }

func (w *failingWriter) Write(result *schemas.RunResult) ([]string, error) { return nil, w.err }

// captureHub records every published event for inspection.
type captureHub struct {
	mu     sync.Mutex
	events []schemas.ProgressEvent
}

func (h *captureHub) Publish(ev schemas.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *captureHub) snapshot() []schemas.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schemas.ProgressEvent(nil), h.events...)
}

func statusesFor(events []schemas.ProgressEvent, itemID string, phase schemas.Phase) []schemas.EventStatus {
	var out []schemas.EventStatus
	for _, ev := range events {
		if ev.ItemID == itemID && ev.Phase == phase {
			out = append(out, ev.Status)
		}
	}
	return out
}

// -- Fixture --

type fixture struct {
	orch    *Orchestrator
	drafter *stubDrafter
	store   *stubStore
	hub     *captureHub
	dir     string
}

func newFixture(t *testing.T, cfg config.PipelineConfig) *fixture {
	t.Helper()
	dir := t.TempDir()
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(dir, "reports")
	}

	f := &fixture{
		drafter: &stubDrafter{},
		store:   &stubStore{},
		hub:     &captureHub{},
		dir:     dir,
	}
	writer := reporting.NewWriter(cfg.OutputDir, zaptest.NewLogger(t))

	orch, err := New(cfg, zaptest.NewLogger(t), stubParser{}, f.drafter, f.store, writer, f.hub)
	require.NoError(t, err)
	orch.newRunID = func() string { return "run-test" }
	f.orch = orch
	return f
}

func (f *fixture) writeRecords(t *testing.T, name string, recs []schemas.VulnerabilityRecord) string {
	t.Helper()
	data, err := json.Marshal(recs)
	require.NoError(t, err)
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (f *fixture) writeRaw(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func sastRecords() []schemas.VulnerabilityRecord {
	return []schemas.VulnerabilityRecord{
		{ID: "sast-1", Title: "SQL Injection", Severity: schemas.SeverityCritical},
		{ID: "sast-2", Title: "Weak Hashing", Severity: schemas.SeverityMedium},
	}
}

// -- Tests --

func TestNew_RejectsNilDependencies(t *testing.T) {
	logger := zaptest.NewLogger(t)
	parser := stubParser{}
	d := &stubDrafter{}
	store := &stubStore{}
	writer := reporting.NewWriter(t.TempDir(), logger)
	hub := &captureHub{}
	cfg := config.PipelineConfig{}

	_, err := New(cfg, logger, nil, d, store, writer, hub)
	require.ErrorContains(t, err, "parser")

	_, err = New(cfg, logger, parser, nil, store, writer, hub)
	require.ErrorContains(t, err, "drafter")

	_, err = New(cfg, logger, parser, d, nil, writer, hub)
	require.ErrorContains(t, err, "store")

	_, err = New(cfg, logger, parser, d, store, nil, hub)
	require.ErrorContains(t, err, "writer")

	_, err = New(cfg, logger, parser, d, store, writer, nil)
	require.ErrorContains(t, err, "publisher")
}

func TestRun_RequiresAtLeastOneInput(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	_, err := f.orch.Run(context.Background(), Inputs{}, schemas.RunOptions{})
	require.Error(t, err)
	assert.True(t, schemas.IsInput(err))
	assert.Empty(t, f.hub.snapshot(), "no events before the run is accepted")
}

func TestRun_MissingReportFileIsInputError(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	_, err := f.orch.Run(context.Background(), Inputs{SASTPath: filepath.Join(f.dir, "nope.json")}, schemas.RunOptions{})
	require.Error(t, err)
	assert.True(t, schemas.IsInput(err))
}

func TestRun_MissingReferencePolicyIsInputError(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	sast := f.writeRecords(t, "sast.json", sastRecords())

	_, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast},
		schemas.RunOptions{ReferencePath: filepath.Join(f.dir, "missing-reference.md")})
	require.Error(t, err)
	assert.True(t, schemas.IsInput(err))
}

func TestRun_GeneratesPoliciesEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, config.PipelineConfig{Workers: 2})
	f.drafter.contexts = []schemas.ComplianceContext{
		{ControlID: "PR.AC", Framework: schemas.FrameworkNISTCSF},
	}
	sast := f.writeRecords(t, "sast.json", sastRecords())
	dast := f.writeRecords(t, "dast.json", []schemas.VulnerabilityRecord{
		{ID: "dast-1", Title: "Missing CSP Header", Severity: schemas.SeverityLow},
	})

	result, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast, DASTPath: dast},
		schemas.RunOptions{Actor: "alice"})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "run-test", result.RunID)
	assert.Equal(t, 2, result.Counts[schemas.SourceSAST])
	assert.Equal(t, 1, result.Counts[schemas.SourceDAST])
	assert.Equal(t, 3, result.TotalParsed())
	assert.False(t, result.Cancelled)
	assert.False(t, result.DegradedRetrieval)
	assert.Empty(t, result.ItemErrors)

	require.Len(t, result.Policies, 3)
	assert.Equal(t, "sast-1", result.Policies[0].VulnerabilityID,
		"policies come back in dispatch order")
	assert.Equal(t, "sast-2", result.Policies[1].VulnerabilityID)
	assert.Equal(t, "dast-1", result.Policies[2].VulnerabilityID)
	for _, p := range result.Policies {
		assert.NotEmpty(t, p.Quality.Grade, "every policy is scored")
	}

	require.Len(t, result.OutputPaths, 3)
	for _, p := range result.OutputPaths {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr)
	}

	saved := f.store.savedRecords()
	require.Len(t, saved, 3)
	assert.Equal(t, schemas.PolicyNotStarted, saved[0].Status)
	assert.Equal(t, "alice", saved[0].Timeline[0].Actor,
		"run actor lands on the created timeline entry")

	events := f.hub.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, schemas.PhaseComplete, events[len(events)-1].Phase,
		"the completion event is published last")

	for _, phase := range []schemas.Phase{schemas.PhaseRetrieval, schemas.PhaseGeneration, schemas.PhaseScoring} {
		assert.Equal(t,
			[]schemas.EventStatus{schemas.StatusPending, schemas.StatusInProgress, schemas.StatusCompleted},
			statusesFor(events, "sast-1", phase),
			"item events for %s arrive pending, in progress, completed", phase)
	}

	var genCompleted *schemas.ProgressEvent
	for i := range events {
		if events[i].ItemID == "sast-1" && events[i].Phase == schemas.PhaseGeneration && events[i].Status == schemas.StatusCompleted {
			genCompleted = &events[i]
			break
		}
	}
	require.NotNil(t, genCompleted)
	assert.Equal(t, "powerful-model", genCompleted.Payload["llm_model"])
	assert.Contains(t, genCompleted.Payload["policy_preview"], "SQL Injection")
	assert.Contains(t, genCompleted.Payload, "progress_percentage")
	assert.Equal(t, 3, genCompleted.Payload["total"])
	assert.Equal(t, "SQL Injection", genCompleted.Payload["current_vuln"])
}

func TestRun_ItemFailuresDoNotAbortTheRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, config.PipelineConfig{Workers: 1})
	f.drafter.draftErr = func(rec schemas.VulnerabilityRecord) error {
		if rec.ID == "sast-2" {
			return schemas.NewExternalServiceError("llm", errors.New("model overloaded"))
		}
		return nil
	}
	sast := f.writeRecords(t, "sast.json", sastRecords())

	result, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast}, schemas.RunOptions{})
	require.NoError(t, err)

	require.Len(t, result.Policies, 1)
	assert.Equal(t, "sast-1", result.Policies[0].VulnerabilityID)

	require.Len(t, result.ItemErrors, 1)
	assert.Equal(t, "sast-2", result.ItemErrors[0].VulnerabilityID)
	assert.Equal(t, "Weak Hashing", result.ItemErrors[0].Title)
	assert.Equal(t, schemas.PhaseGeneration, result.ItemErrors[0].Phase)
	assert.Contains(t, result.ItemErrors[0].Message, "model overloaded")

	statuses := statusesFor(f.hub.snapshot(), "sast-2", schemas.PhaseGeneration)
	assert.Equal(t,
		[]schemas.EventStatus{schemas.StatusPending, schemas.StatusInProgress, schemas.StatusError},
		statuses)
	assert.Empty(t, statusesFor(f.hub.snapshot(), "sast-2", schemas.PhaseScoring),
		"a failed item never reaches scoring")
}

func TestRun_FailsOnlyWhenNothingParses(t *testing.T) {
	t.Run("AllReportsUnparseable", func(t *testing.T) {
		f := newFixture(t, config.PipelineConfig{})
		bad := f.writeRaw(t, "garbage.json", "definitely not a report")

		result, err := f.orch.Run(context.Background(), Inputs{SASTPath: bad}, schemas.RunOptions{})
		require.Error(t, err)
		assert.True(t, schemas.IsInput(err))
		assert.Nil(t, result)

		events := f.hub.snapshot()
		last := events[len(events)-1]
		assert.Equal(t, schemas.PhaseParsing, last.Phase)
		assert.Equal(t, schemas.StatusError, last.Status)
	})

	t.Run("OneGoodReportCarriesTheRun", func(t *testing.T) {
		f := newFixture(t, config.PipelineConfig{})
		bad := f.writeRaw(t, "garbage.json", "definitely not a report")
		good := f.writeRecords(t, "dast.json", []schemas.VulnerabilityRecord{
			{ID: "dast-1", Title: "Open Redirect", Severity: schemas.SeverityMedium},
		})

		result, err := f.orch.Run(context.Background(), Inputs{SASTPath: bad, DASTPath: good}, schemas.RunOptions{})
		require.NoError(t, err)

		require.Len(t, result.Policies, 1)
		require.Len(t, result.ItemErrors, 1)
		assert.Equal(t, schemas.PhaseParsing, result.ItemErrors[0].Phase)
		assert.Equal(t, "garbage.json", result.ItemErrors[0].Title)
	})

	t.Run("EmptyReportIsFine", func(t *testing.T) {
		f := newFixture(t, config.PipelineConfig{})
		empty := f.writeRecords(t, "sast.json", []schemas.VulnerabilityRecord{})

		result, err := f.orch.Run(context.Background(), Inputs{SASTPath: empty}, schemas.RunOptions{})
		require.NoError(t, err)
		assert.Empty(t, result.Policies)
		assert.Empty(t, result.ItemErrors)
		assert.Len(t, result.OutputPaths, 3, "reports are written even for an empty run")
	})
}

func TestRun_TruncationKeepsHighestSeverity(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{Workers: 1})
	sast := f.writeRecords(t, "sast.json", []schemas.VulnerabilityRecord{
		{ID: "low", Title: "Verbose Errors", Severity: schemas.SeverityLow},
		{ID: "crit", Title: "RCE", Severity: schemas.SeverityCritical},
		{ID: "med", Title: "Weak Cipher", Severity: schemas.SeverityMedium},
		{ID: "high", Title: "XXE", Severity: schemas.SeverityHigh},
	})

	result, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast},
		schemas.RunOptions{MaxPerType: 2})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Counts[schemas.SourceSAST],
		"counts reflect what was parsed, not what survived the cap")
	require.Len(t, result.Policies, 2)
	assert.Equal(t, "crit", result.Policies[0].VulnerabilityID)
	assert.Equal(t, "high", result.Policies[1].VulnerabilityID)
}

func TestTruncatePerType(t *testing.T) {
	rec := func(id string, st schemas.SourceType, sev schemas.Severity, idx int) schemas.VulnerabilityRecord {
		return schemas.VulnerabilityRecord{ID: id, SourceType: st, Severity: sev, ReportIndex: idx}
	}

	t.Run("ZeroLimitKeepsEverything", func(t *testing.T) {
		records := []schemas.VulnerabilityRecord{
			rec("a", schemas.SourceSAST, schemas.SeverityLow, 0),
			rec("b", schemas.SourceSAST, schemas.SeverityLow, 1),
		}
		assert.Equal(t, records, truncatePerType(records, 0))
	})

	t.Run("SurvivorsKeepReportOrder", func(t *testing.T) {
		records := []schemas.VulnerabilityRecord{
			rec("low", schemas.SourceSAST, schemas.SeverityLow, 0),
			rec("high", schemas.SourceSAST, schemas.SeverityHigh, 1),
			rec("crit", schemas.SourceSAST, schemas.SeverityCritical, 2),
		}
		kept := truncatePerType(records, 2)
		require.Len(t, kept, 2)
		assert.Equal(t, "high", kept[0].ID, "selected records return to report order")
		assert.Equal(t, "crit", kept[1].ID)
	})

	t.Run("TiesKeepEarlierRecord", func(t *testing.T) {
		records := []schemas.VulnerabilityRecord{
			rec("m0", schemas.SourceSCA, schemas.SeverityMedium, 0),
			rec("m1", schemas.SourceSCA, schemas.SeverityMedium, 1),
			rec("m2", schemas.SourceSCA, schemas.SeverityMedium, 2),
		}
		kept := truncatePerType(records, 2)
		require.Len(t, kept, 2)
		assert.Equal(t, "m0", kept[0].ID)
		assert.Equal(t, "m1", kept[1].ID)
	})

	t.Run("CapAppliesPerSourceType", func(t *testing.T) {
		records := []schemas.VulnerabilityRecord{
			rec("s0", schemas.SourceSAST, schemas.SeverityHigh, 0),
			rec("s1", schemas.SourceSAST, schemas.SeverityLow, 1),
			rec("d0", schemas.SourceDAST, schemas.SeverityLow, 0),
			rec("d1", schemas.SourceDAST, schemas.SeverityHigh, 1),
		}
		kept := truncatePerType(records, 1)
		require.Len(t, kept, 2)
		assert.Equal(t, "s0", kept[0].ID)
		assert.Equal(t, "d1", kept[1].ID)
	})
}

func TestRun_CancellationProducesPartialResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, config.PipelineConfig{Workers: 1})
	f.drafter.delay = 50 * time.Millisecond
	f.drafter.firstDone = make(chan struct{})

	records := make([]schemas.VulnerabilityRecord, 6)
	for i := range records {
		records[i] = schemas.VulnerabilityRecord{
			ID:       string(rune('a' + i)),
			Title:    "Finding",
			Severity: schemas.SeverityMedium,
		}
	}
	sast := f.writeRecords(t, "sast.json", records)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-f.drafter.firstDone
		cancel()
	}()

	result, err := f.orch.Run(ctx, Inputs{SASTPath: sast}, schemas.RunOptions{})
	require.NoError(t, err, "cancellation is recorded on the result, not returned")
	require.NotNil(t, result)

	assert.True(t, result.Cancelled)
	drafted := len(f.drafter.draftedIDs())
	assert.GreaterOrEqual(t, drafted, 1)
	assert.Less(t, drafted, 6, "cancellation stops dispatch before the queue drains")
	assert.Len(t, result.Policies, drafted)
	assert.NotEmpty(t, result.OutputPaths, "partial results are still rendered")

	events := f.hub.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, schemas.PhaseComplete, last.Phase)
	assert.Equal(t, true, last.Payload["cancelled"])
}

func TestRun_StoreFailureDegradesInsteadOfFailing(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.store.saveErr = errors.New("connection refused")
	sast := f.writeRecords(t, "sast.json", sastRecords())

	result, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast}, schemas.RunOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Policies, 2, "policies survive a tracking outage")
	assert.NotEmpty(t, result.OutputPaths)

	require.Len(t, result.ItemErrors, 1)
	assert.Equal(t, "tracking store", result.ItemErrors[0].Title)
	assert.Equal(t, schemas.PhasePersisting, result.ItemErrors[0].Phase)
	assert.Contains(t, result.ItemErrors[0].Message, "connection refused")
}

func TestRun_WriterFailureDegradesInsteadOfFailing(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	sast := f.writeRecords(t, "sast.json", sastRecords())

	orch, err := New(config.PipelineConfig{}, zaptest.NewLogger(t), stubParser{}, f.drafter,
		f.store, &failingWriter{err: errors.New("disk full")}, f.hub)
	require.NoError(t, err)
	orch.newRunID = func() string { return "run-test" }

	result, err := orch.Run(context.Background(), Inputs{SASTPath: sast}, schemas.RunOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Policies, 2)
	assert.Empty(t, result.OutputPaths)
	require.Len(t, result.ItemErrors, 1)
	assert.Equal(t, "report writer", result.ItemErrors[0].Title)
	assert.Equal(t, schemas.PhasePersisting, result.ItemErrors[0].Phase)

	events := f.hub.snapshot()
	var persistError bool
	for _, ev := range events {
		if ev.Phase == schemas.PhasePersisting && ev.Status == schemas.StatusError {
			persistError = true
		}
	}
	assert.True(t, persistError)

	assert.Len(t, f.store.savedRecords(), 2,
		"tracking records are saved before report rendering")
}

func TestRun_DegradedRetrievalIsFlagged(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.drafter.degraded = true
	sast := f.writeRecords(t, "sast.json", sastRecords())

	result, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast}, schemas.RunOptions{})
	require.NoError(t, err)

	assert.True(t, result.DegradedRetrieval)
	assert.Empty(t, result.ItemErrors, "degraded retrieval is not an item failure")
	assert.Len(t, result.Policies, 2)

	var degradedEvent bool
	for _, ev := range f.hub.snapshot() {
		if ev.Phase == schemas.PhaseRetrieval && ev.Status == schemas.StatusCompleted {
			if d, ok := ev.Payload["degraded"].(bool); ok && d {
				degradedEvent = true
			}
		}
	}
	assert.True(t, degradedEvent, "retrieval completion events carry the degraded flag")
}

func TestRun_ReferencePolicyOverridesScoring(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	sast := f.writeRecords(t, "sast.json", []schemas.VulnerabilityRecord{
		{ID: "sast-1", Title: "SQL Injection", Severity: schemas.SeverityCritical},
	})
	// Matches the stub drafter's output exactly, so scoring against it
	// yields a perfect grade.
	ref := f.writeRaw(t, "reference.md", "# Policy\nRemediate SQL Injection")

	result, err := f.orch.Run(context.Background(), Inputs{SASTPath: sast},
		schemas.RunOptions{ReferencePath: ref})
	require.NoError(t, err)

	require.Len(t, result.Policies, 1)
	assert.InDelta(t, 1.0, result.Policies[0].Quality.Overall, 1e-9)
	assert.Equal(t, "A", result.Policies[0].Quality.Grade)
}

func TestMergeOptions(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{
		MaxPerType:    5,
		Expertise:     "advanced",
		ReferencePath: "configured.md",
	})

	t.Run("ConfigFillsUnsetOptions", func(t *testing.T) {
		merged := f.orch.mergeOptions(schemas.RunOptions{})
		assert.Equal(t, 5, merged.MaxPerType)
		assert.Equal(t, schemas.ExpertiseAdvanced, merged.Expertise)
		assert.Equal(t, "configured.md", merged.ReferencePath)
	})

	t.Run("ExplicitOptionsWin", func(t *testing.T) {
		merged := f.orch.mergeOptions(schemas.RunOptions{
			MaxPerType:    2,
			Expertise:     schemas.ExpertiseBeginner,
			ReferencePath: "mine.md",
		})
		assert.Equal(t, 2, merged.MaxPerType)
		assert.Equal(t, schemas.ExpertiseBeginner, merged.Expertise)
		assert.Equal(t, "mine.md", merged.ReferencePath)
	})

	t.Run("InvalidExpertiseFallsBackToIntermediate", func(t *testing.T) {
		bare := newFixture(t, config.PipelineConfig{Expertise: "wizard"})
		merged := bare.orch.mergeOptions(schemas.RunOptions{})
		assert.Equal(t, schemas.ExpertiseIntermediate, merged.Expertise)
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 200))

	long := ""
	for i := 0; i < 300; i++ {
		long += "é"
	}
	cut := preview(long, 200)
	assert.Equal(t, 200, len([]rune(cut)), "preview truncates by runes, not bytes")
}
