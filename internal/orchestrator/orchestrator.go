// Package orchestrator manages the lifecycle of a policy generation run:
// report parsing, compliance retrieval, policy drafting, quality scoring,
// and persistence, with progress broadcast at every step. It is injected
// with fully configured components via interfaces, making it decoupled and
// testable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/scoring"
)

// -- Interfaces for Dependency Inversion --

// ReportParser normalizes one raw scanner report into vulnerability records.
type ReportParser interface {
	Parse(source schemas.SourceType, data []byte) ([]schemas.VulnerabilityRecord, error)
}

// PolicyDrafter retrieves compliance context and generates policy text.
// Retrieval and generation are separate calls so the pipeline can report
// them as distinct phases.
type PolicyDrafter interface {
	RetrieveContexts(ctx context.Context, rec schemas.VulnerabilityRecord) ([]schemas.ComplianceContext, bool, error)
	DraftWithContexts(ctx context.Context, rec schemas.VulnerabilityRecord, contexts []schemas.ComplianceContext, degraded bool, opts schemas.RunOptions) (schemas.PolicyDocument, error)
	ModelFor(tier schemas.ModelTier) string
}

// ReportWriter renders a finished run into report files.
type ReportWriter interface {
	Write(result *schemas.RunResult) ([]string, error)
}

// Publisher broadcasts pipeline progress to any subscribed consumers.
type Publisher interface {
	Publish(ev schemas.ProgressEvent)
}

// Inputs names the report files for one run. Every path is optional, but
// at least one must be set.
type Inputs struct {
	SASTPath string
	SCAPath  string
	DASTPath string
}

// Orchestrator drives policy generation runs end to end.
type Orchestrator struct {
	cfg     config.PipelineConfig
	logger  *zap.Logger
	parser  ReportParser
	drafter PolicyDrafter
	store   schemas.TrackingStore
	writer  ReportWriter
	hub     Publisher

	// newRunID and now are swapped in tests for deterministic output.
	newRunID func() string
	now      func() time.Time
}

// New creates an Orchestrator with its dependencies provided as interfaces.
func New(
	cfg config.PipelineConfig,
	logger *zap.Logger,
	parser ReportParser,
	drafter PolicyDrafter,
	store schemas.TrackingStore,
	writer ReportWriter,
	hub Publisher,
) (*Orchestrator, error) {
	if parser == nil {
		return nil, errors.New("report parser cannot be nil")
	}
	if drafter == nil {
		return nil, errors.New("policy drafter cannot be nil")
	}
	if store == nil {
		return nil, errors.New("tracking store cannot be nil")
	}
	if writer == nil {
		return nil, errors.New("report writer cannot be nil")
	}
	if hub == nil {
		return nil, errors.New("progress publisher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("orchestrator"),
		parser:   parser,
		drafter:  drafter,
		store:    store,
		writer:   writer,
		hub:      hub,
		newRunID: uuid.NewString,
		now:      time.Now,
	}, nil
}

// Run executes one full pipeline run. Per-item failures are collected on
// the result and never abort the run; the returned error is reserved for
// run-level problems (bad input, nothing parseable). A cancelled context
// stops dispatch, drains the workers, and still returns the partial result
// with the cancellation recorded.
func (o *Orchestrator) Run(ctx context.Context, in Inputs, opts schemas.RunOptions) (*schemas.RunResult, error) {
	return o.RunWithID(ctx, o.newRunID(), in, opts)
}

// RunWithID executes a run under a caller-chosen id, for callers that hand
// the id out before the run finishes.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, in Inputs, opts schemas.RunOptions) (*schemas.RunResult, error) {
	started := o.now().UTC()
	log := o.logger.With(zap.String("run_id", runID))

	inputs, err := readInputs(in)
	if err != nil {
		return nil, err
	}
	opts = o.mergeOptions(opts)
	reference, err := loadReference(opts.ReferencePath)
	if err != nil {
		return nil, err
	}

	result := &schemas.RunResult{
		RunID:     runID,
		StartedAt: started,
		Counts:    make(map[schemas.SourceType]int),
	}

	log.Info("Pipeline run starting",
		zap.Int("reports", len(inputs)),
		zap.Int("max_per_type", opts.MaxPerType),
		zap.String("expertise", string(opts.Expertise)),
	)

	records := o.parseReports(runID, inputs, result)
	if len(records) == 0 && len(result.ItemErrors) > 0 {
		parseErr := schemas.NewInputError("none of the provided reports could be parsed")
		o.emit(runID, schemas.PhaseParsing, schemas.StatusError, "", parseErr.Msg, nil)
		return nil, parseErr
	}
	o.emit(runID, schemas.PhaseParsing, schemas.StatusCompleted, "",
		fmt.Sprintf("Parsed %d findings from %d report(s)", len(records), len(inputs)),
		map[string]any{"total": len(records)})

	work := truncatePerType(records, opts.MaxPerType)
	if len(work) < len(records) {
		log.Info("Truncated findings to per-type cap",
			zap.Int("parsed", len(records)),
			zap.Int("kept", len(work)),
			zap.Int("max_per_type", opts.MaxPerType),
		)
	}

	o.generate(ctx, runID, work, opts, reference, result)

	result.FinishedAt = o.now().UTC()
	result.Cancelled = ctx.Err() != nil

	o.persist(runID, opts, result)

	o.emit(runID, schemas.PhaseComplete, schemas.StatusCompleted, "",
		fmt.Sprintf("Generated %d policies from %d findings", len(result.Policies), result.TotalParsed()),
		map[string]any{
			"policies":     len(result.Policies),
			"errors":       len(result.ItemErrors),
			"output_paths": result.OutputPaths,
			"elapsed":      o.now().UTC().Sub(started).String(),
			"sast":         result.Counts[schemas.SourceSAST],
			"sca":          result.Counts[schemas.SourceSCA],
			"dast":         result.Counts[schemas.SourceDAST],
			"cancelled":    result.Cancelled,
		})

	log.Info("Pipeline run finished",
		zap.Int("policies", len(result.Policies)),
		zap.Int("item_errors", len(result.ItemErrors)),
		zap.Bool("degraded_retrieval", result.DegradedRetrieval),
		zap.Bool("cancelled", result.Cancelled),
		zap.Duration("elapsed", o.now().UTC().Sub(started)),
	)
	return result, nil
}

// mergeOptions fills unset run options from the pipeline configuration.
func (o *Orchestrator) mergeOptions(opts schemas.RunOptions) schemas.RunOptions {
	if opts.MaxPerType <= 0 {
		opts.MaxPerType = o.cfg.MaxPerType
	}
	if !opts.Expertise.Valid() {
		if lvl := schemas.ExpertiseLevel(o.cfg.Expertise); lvl.Valid() {
			opts.Expertise = lvl
		} else {
			opts.Expertise = schemas.ExpertiseIntermediate
		}
	}
	if opts.ReferencePath == "" {
		opts.ReferencePath = o.cfg.ReferencePath
	}
	return opts
}

// reportInput pairs a source type with the raw bytes of its report.
type reportInput struct {
	source schemas.SourceType
	path   string
	data   []byte
}

func readInputs(in Inputs) ([]reportInput, error) {
	candidates := []struct {
		source schemas.SourceType
		path   string
	}{
		{schemas.SourceSAST, in.SASTPath},
		{schemas.SourceSCA, in.SCAPath},
		{schemas.SourceDAST, in.DASTPath},
	}

	var inputs []reportInput
	for _, c := range candidates {
		if c.path == "" {
			continue
		}
		data, err := os.ReadFile(c.path)
		if err != nil {
			return nil, schemas.NewInputError("cannot read %s report '%s': %v", c.source, c.path, err)
		}
		inputs = append(inputs, reportInput{source: c.source, path: c.path, data: data})
	}
	if len(inputs) == 0 {
		return nil, schemas.NewInputError("at least one report file must be provided")
	}
	return inputs, nil
}

// loadReference resolves the reference policy used for quality scoring,
// falling back to the embedded default so scoring always runs.
func loadReference(path string) (string, error) {
	if path == "" {
		return scoring.DefaultReference, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", schemas.NewInputError("cannot read reference policy '%s': %v", path, err)
	}
	return string(data), nil
}

// parseReports normalizes every provided report in order. Parse failures
// become item errors; the caller decides whether the phase as a whole
// failed based on what survived.
func (o *Orchestrator) parseReports(runID string, inputs []reportInput, result *schemas.RunResult) []schemas.VulnerabilityRecord {
	o.emit(runID, schemas.PhaseParsing, schemas.StatusInProgress, "",
		fmt.Sprintf("Parsing %d report(s)", len(inputs)), nil)

	var records []schemas.VulnerabilityRecord
	for _, in := range inputs {
		name := filepath.Base(in.path)
		o.emit(runID, schemas.PhaseParsing, schemas.StatusInProgress, string(in.source),
			fmt.Sprintf("Parsing %s report %s", in.source, name), nil)

		recs, err := o.parser.Parse(in.source, in.data)
		if err != nil {
			o.logger.Warn("Report failed to parse",
				zap.String("run_id", runID),
				zap.String("source", string(in.source)),
				zap.String("file", name),
				zap.Error(err),
			)
			result.ItemErrors = append(result.ItemErrors, schemas.ItemError{
				Title:   name,
				Phase:   schemas.PhaseParsing,
				Message: err.Error(),
			})
			o.emit(runID, schemas.PhaseParsing, schemas.StatusError, string(in.source), err.Error(), nil)
			continue
		}

		result.Counts[in.source] = len(recs)
		records = append(records, recs...)
		o.emit(runID, schemas.PhaseParsing, schemas.StatusCompleted, string(in.source),
			fmt.Sprintf("Parsed %d findings from %s", len(recs), name),
			map[string]any{"records": len(recs)})
	}
	return records
}

// truncatePerType keeps the limit highest-severity records per source type.
// Selection prefers higher severity with ties broken by report order, and
// the survivors keep their original relative order.
func truncatePerType(records []schemas.VulnerabilityRecord, limit int) []schemas.VulnerabilityRecord {
	if limit <= 0 || len(records) == 0 {
		return records
	}

	byType := make(map[schemas.SourceType][]schemas.VulnerabilityRecord)
	for _, r := range records {
		byType[r.SourceType] = append(byType[r.SourceType], r)
	}

	kept := make([]schemas.VulnerabilityRecord, 0, len(records))
	for _, st := range []schemas.SourceType{schemas.SourceSAST, schemas.SourceSCA, schemas.SourceDAST} {
		group := byType[st]
		if len(group) > limit {
			sort.SliceStable(group, func(i, j int) bool {
				return group[i].Severity.Rank() > group[j].Severity.Rank()
			})
			group = group[:limit]
			sort.SliceStable(group, func(i, j int) bool {
				return group[i].ReportIndex < group[j].ReportIndex
			})
		}
		kept = append(kept, group...)
	}
	return kept
}

func (o *Orchestrator) emit(runID string, phase schemas.Phase, status schemas.EventStatus, itemID, message string, payload map[string]any) {
	o.hub.Publish(schemas.ProgressEvent{
		RunID:     runID,
		Phase:     phase,
		Status:    status,
		ItemID:    itemID,
		Message:   message,
		Payload:   payload,
		Timestamp: o.now().UTC(),
	})
}
