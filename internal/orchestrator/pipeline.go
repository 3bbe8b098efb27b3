package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/drafter"
	"github.com/xkilldash9x/securai/internal/scoring"
	"github.com/xkilldash9x/securai/internal/tracking"
)

const (
	defaultWorkers = 4
	maxWorkers     = 8

	// previewRunes bounds the policy excerpt carried on progress events.
	previewRunes = 200

	// storeSaveTimeout bounds the tracking write that runs on its own
	// context so partial results survive a cancelled run.
	storeSaveTimeout = 30 * time.Second
)

type job struct {
	index int
	rec   schemas.VulnerabilityRecord
}

// poolState is the shared progress bookkeeping for one run's worker pool.
type poolState struct {
	runID     string
	total     int
	processed atomic.Int64
}

// generate runs the retrieval, generation, and scoring chain over the
// records with a bounded worker pool. Item failures land on the result;
// only context cancellation stops the run early. Results are collected by
// input position so policy order matches dispatch order regardless of
// which worker finished first.
func (o *Orchestrator) generate(ctx context.Context, runID string, records []schemas.VulnerabilityRecord, opts schemas.RunOptions, reference string, result *schemas.RunResult) {
	if len(records) == 0 {
		return
	}

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers > len(records) {
		workers = len(records)
	}

	o.logger.Info("Starting policy generation pool",
		zap.String("run_id", runID),
		zap.Int("workers", workers),
		zap.Int("records", len(records)),
	)

	state := &poolState{runID: runID, total: len(records)}
	policies := make([]*schemas.PolicyDocument, len(records))
	failures := make([]*schemas.ItemError, len(records))

	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := o.logger.With(zap.String("run_id", runID), zap.Int("worker_id", workerID))
			for {
				select {
				case <-ctx.Done():
					log.Debug("Context cancelled, worker shutting down")
					return
				case j, ok := <-jobs:
					if !ok {
						return
					}
					doc, itemErr := o.processItem(ctx, state, j.rec, opts, reference, log)
					switch {
					case itemErr != nil:
						failures[j.index] = itemErr
					case doc != nil:
						policies[j.index] = doc
					}
					state.processed.Add(1)
				}
			}
		}(i + 1)
	}

dispatch:
	for i, rec := range records {
		o.emitItem(state, schemas.PhaseRetrieval, schemas.StatusPending, rec,
			"Queued for compliance retrieval", nil)
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- job{index: i, rec: rec}:
		}
	}
	close(jobs)
	wg.Wait()

	for _, p := range policies {
		if p == nil {
			continue
		}
		if p.DegradedRetrieval {
			result.DegradedRetrieval = true
		}
		result.Policies = append(result.Policies, *p)
	}
	for _, f := range failures {
		if f != nil {
			result.ItemErrors = append(result.ItemErrors, *f)
		}
	}
}

// processItem runs one vulnerability through retrieval, generation, and
// scoring. It returns (nil, nil) when the run was cancelled mid-item: the
// record is neither a policy nor a failure, just unprocessed.
func (o *Orchestrator) processItem(ctx context.Context, state *poolState, rec schemas.VulnerabilityRecord, opts schemas.RunOptions, reference string, log *zap.Logger) (*schemas.PolicyDocument, *schemas.ItemError) {
	o.emitItem(state, schemas.PhaseRetrieval, schemas.StatusInProgress, rec,
		"Retrieving compliance context", nil)

	contexts, degraded, err := o.drafter.RetrieveContexts(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			o.emitItem(state, schemas.PhaseRetrieval, schemas.StatusError, rec,
				"Run cancelled during compliance retrieval", nil)
			return nil, nil
		}
		o.emitItem(state, schemas.PhaseRetrieval, schemas.StatusError, rec, err.Error(), nil)
		return nil, &schemas.ItemError{
			VulnerabilityID: rec.ID,
			Title:           rec.Title,
			Phase:           schemas.PhaseRetrieval,
			Message:         err.Error(),
		}
	}

	retrievalMsg := fmt.Sprintf("Retrieved %d compliance contexts", len(contexts))
	if degraded {
		retrievalMsg = "Compliance retrieval degraded, drafting without context"
	}
	o.emitItem(state, schemas.PhaseRetrieval, schemas.StatusCompleted, rec, retrievalMsg,
		map[string]any{"contexts": len(contexts), "degraded": degraded})

	model := o.drafter.ModelFor(drafter.TierFor(rec.SourceType))
	o.emitItem(state, schemas.PhaseGeneration, schemas.StatusPending, rec,
		"Queued for policy generation", nil)
	o.emitItem(state, schemas.PhaseGeneration, schemas.StatusInProgress, rec,
		fmt.Sprintf("Generating policy with %s", model),
		map[string]any{"llm_model": model})

	doc, err := o.drafter.DraftWithContexts(ctx, rec, contexts, degraded, opts)
	if err != nil {
		if ctx.Err() != nil {
			o.emitItem(state, schemas.PhaseGeneration, schemas.StatusError, rec,
				"Run cancelled during policy generation", nil)
			return nil, nil
		}
		log.Warn("Policy generation failed",
			zap.String("vulnerability_id", rec.ID),
			zap.Error(err),
		)
		o.emitItem(state, schemas.PhaseGeneration, schemas.StatusError, rec, err.Error(),
			map[string]any{"llm_model": model})
		return nil, &schemas.ItemError{
			VulnerabilityID: rec.ID,
			Title:           rec.Title,
			Phase:           schemas.PhaseGeneration,
			Message:         err.Error(),
		}
	}

	o.emitItem(state, schemas.PhaseGeneration, schemas.StatusCompleted, rec,
		fmt.Sprintf("Policy %s generated", doc.PolicyID),
		map[string]any{
			"llm_model":      doc.ModelUsed,
			"policy_preview": preview(doc.GeneratedText, previewRunes),
		})

	o.emitItem(state, schemas.PhaseScoring, schemas.StatusPending, rec,
		"Queued for quality scoring", nil)
	o.emitItem(state, schemas.PhaseScoring, schemas.StatusInProgress, rec,
		"Scoring policy quality", nil)

	doc.Quality = scoring.Score(doc.GeneratedText, reference)

	o.emitItem(state, schemas.PhaseScoring, schemas.StatusCompleted, rec,
		fmt.Sprintf("Scored %.2f (%s)", doc.Quality.Overall, doc.Quality.Grade),
		map[string]any{
			"overall":      doc.Quality.Overall,
			"grade":        doc.Quality.Grade,
			"needs_review": doc.Quality.NeedsReview,
		})

	return &doc, nil
}

// persist writes tracking records first and report files second, so store
// failures noted on the result still appear in the written JSON. Failures
// here degrade the run instead of failing it.
func (o *Orchestrator) persist(runID string, opts schemas.RunOptions, result *schemas.RunResult) {
	o.emit(runID, schemas.PhasePersisting, schemas.StatusInProgress, "",
		"Saving tracking records and reports", nil)

	if len(result.Policies) > 0 {
		now := o.now().UTC()
		records := make([]schemas.TrackingRecord, 0, len(result.Policies))
		for _, doc := range result.Policies {
			records = append(records, tracking.NewRecord(doc, opts.Actor, now))
		}

		// A fresh context so partial results are saved even when the run
		// context was cancelled during generation.
		saveCtx, cancel := context.WithTimeout(context.Background(), storeSaveTimeout)
		defer cancel()
		if err := o.store.SaveAll(saveCtx, records); err != nil {
			o.logger.Error("Failed to save tracking records",
				zap.String("run_id", runID),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			result.ItemErrors = append(result.ItemErrors, schemas.ItemError{
				Title:   "tracking store",
				Phase:   schemas.PhasePersisting,
				Message: err.Error(),
			})
		}
	}

	paths, err := o.writer.Write(result)
	result.OutputPaths = paths
	if err != nil {
		o.logger.Error("Failed to write run reports",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		result.ItemErrors = append(result.ItemErrors, schemas.ItemError{
			Title:   "report writer",
			Phase:   schemas.PhasePersisting,
			Message: err.Error(),
		})
		o.emit(runID, schemas.PhasePersisting, schemas.StatusError, "", err.Error(), nil)
		return
	}

	o.emit(runID, schemas.PhasePersisting, schemas.StatusCompleted, "",
		fmt.Sprintf("Wrote %d report files", len(paths)),
		map[string]any{"output_paths": paths})
}

// emitItem publishes a per-item event with the shared progress payload.
func (o *Orchestrator) emitItem(state *poolState, phase schemas.Phase, status schemas.EventStatus, rec schemas.VulnerabilityRecord, message string, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any, 4)
	}
	done := int(state.processed.Load())
	payload["processed"] = done
	payload["total"] = state.total
	payload["current_vuln"] = rec.Title
	payload["progress_percentage"] = float64(done) / float64(state.total) * 100

	o.emit(state.runID, phase, status, rec.ID, message, payload)
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
