// Package tracking persists the cross-run remediation state of generated
// policies. It provides the two TrackingStore backends (a JSON file for
// single-host setups and PostgreSQL for shared ones) plus the conversion
// from a freshly drafted policy into its initial tracking record.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
)

// ErrNotFound is returned by lookups and updates for a policy id the store
// has never seen. Callers translate it to their own "missing" semantics.
var ErrNotFound = errors.New("policy not found")

// Timeline event types. The timeline is append-only; these are the only
// event kinds the stores themselves emit.
const (
	EventCreated       = "created"
	EventStatusChanged = "status_changed"
	EventAssigned      = "assigned"
)

// PipelineActor is the actor recorded on timeline events generated by the
// pipeline itself rather than by a user action.
const PipelineActor = "pipeline"

// New builds the TrackingStore selected by cfg. The postgres backend owns
// its connection pool and releases it on Close; the file backend holds no
// resources beyond the document on disk.
func New(ctx context.Context, cfg config.TrackingConfig, logger *zap.Logger) (schemas.TrackingStore, error) {
	switch cfg.Backend {
	case config.TrackingPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("unable to parse tracking database config: %w", err)
		}
		poolConfig.MaxConns = 5
		poolConfig.MaxConnLifetime = time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to create tracking connection pool: %w", err)
		}

		store, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case config.TrackingFile:
		return NewFile(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown tracking backend %q", cfg.Backend)
	}
}

// NewRecord converts a drafted policy into its initial tracking record.
// The due date and priority follow the remediation windows the policies
// themselves commit their owners to: critical findings get 48 hours, high
// one week, medium two weeks, and everything else a month. An empty actor
// attributes the creation to the pipeline.
func NewRecord(doc schemas.PolicyDocument, actor string, now time.Time) schemas.TrackingRecord {
	now = now.UTC()
	if actor == "" {
		actor = PipelineActor
	}
	nist, iso := splitControls(doc.MappedControls)

	return schemas.TrackingRecord{
		PolicyID:           doc.PolicyID,
		VulnerabilityTitle: doc.VulnerabilityTitle,
		VulnerabilityType:  doc.SourceType,
		Severity:           doc.Severity,
		Status:             schemas.PolicyNotStarted,
		CreatedAt:          now,
		UpdatedAt:          now,
		DueDate:            now.Add(remediationWindow(doc.Severity)),
		NISTCSFControls:    nist,
		ISO27001Controls:   iso,
		Priority:           priorityFor(doc.Severity),
		Timeline: []schemas.TimelineEvent{{
			EventType: EventCreated,
			Timestamp: now,
			Actor:     actor,
			ToStatus:  schemas.PolicyNotStarted,
			Details:   fmt.Sprintf("Policy generated by %s", doc.ModelUsed),
		}},
	}
}

func remediationWindow(severity schemas.Severity) time.Duration {
	switch severity {
	case schemas.SeverityCritical:
		return 48 * time.Hour
	case schemas.SeverityHigh:
		return 7 * 24 * time.Hour
	case schemas.SeverityMedium:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

func priorityFor(severity schemas.Severity) int {
	switch severity {
	case schemas.SeverityCritical:
		return 1
	case schemas.SeverityHigh:
		return 2
	case schemas.SeverityMedium:
		return 3
	default:
		return 4
	}
}

// splitControls separates mapped control ids into the NIST CSF and
// ISO/IEC 27001 families. ISO Annex A ids all start with "A."; every NIST
// CSF id starts with a two-letter function code, so the prefix decides.
func splitControls(controls []string) (nist, iso []string) {
	for _, c := range controls {
		if strings.HasPrefix(c, "A.") {
			iso = append(iso, c)
		} else {
			nist = append(nist, c)
		}
	}
	return nist, iso
}

// computeStats aggregates records into dashboard totals. Both backends use
// it so the two report identical numbers for identical contents. Every
// known status and severity appears in the maps even at zero so dashboard
// consumers never have to handle missing keys.
func computeStats(records []schemas.TrackingRecord, now time.Time) *schemas.TrackingStats {
	stats := &schemas.TrackingStats{
		Total:      len(records),
		ByStatus:   make(map[schemas.PolicyStatus]int, 6),
		BySeverity: make(map[schemas.Severity]int, 4),
	}
	for _, status := range []schemas.PolicyStatus{
		schemas.PolicyNotStarted, schemas.PolicyInProgress, schemas.PolicyUnderReview,
		schemas.PolicyFixed, schemas.PolicyVerified, schemas.PolicyReopened,
	} {
		stats.ByStatus[status] = 0
	}
	for _, severity := range []schemas.Severity{
		schemas.SeverityCritical, schemas.SeverityHigh, schemas.SeverityMedium, schemas.SeverityLow,
	} {
		stats.BySeverity[severity] = 0
	}

	completed := 0
	for i := range records {
		r := &records[i]
		stats.ByStatus[r.Status]++
		stats.BySeverity[r.Severity]++
		if r.Overdue(now) {
			stats.Overdue++
		}
		if r.Status == schemas.PolicyFixed || r.Status == schemas.PolicyVerified {
			completed++
		}
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(completed) / float64(stats.Total) * 100
	}
	return stats
}

func statusChangeEvent(status schemas.PolicyStatus, actor, details string, now time.Time) schemas.TimelineEvent {
	return schemas.TimelineEvent{
		EventType: EventStatusChanged,
		Timestamp: now,
		Actor:     actor,
		ToStatus:  status,
		Details:   details,
	}
}

func assignmentEvent(assignee, actor string, now time.Time) schemas.TimelineEvent {
	return schemas.TimelineEvent{
		EventType: EventAssigned,
		Timestamp: now,
		Actor:     actor,
		Details:   fmt.Sprintf("Assigned to %s", assignee),
	}
}
