package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so pgxmock can stand in for it in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// trackingColumns is the canonical column order shared by every statement
// so a single scan routine covers SELECT and RETURNING rows alike.
const trackingColumns = `policy_id, vulnerability_title, vulnerability_type, severity, status, assigned_to, created_at, updated_at, due_date, timeline, nist_csf_controls, iso27001_controls, file_path, priority`

const sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS policy_tracking (
            policy_id           text PRIMARY KEY,
            vulnerability_title text NOT NULL DEFAULT '',
            vulnerability_type  text NOT NULL DEFAULT '',
            severity            text NOT NULL DEFAULT '',
            status              text NOT NULL DEFAULT 'NOT_STARTED',
            assigned_to         text NOT NULL DEFAULT '',
            created_at          timestamptz NOT NULL,
            updated_at          timestamptz NOT NULL,
            due_date            timestamptz NOT NULL,
            timeline            jsonb NOT NULL DEFAULT '[]'::jsonb,
            nist_csf_controls   text[] NOT NULL DEFAULT '{}',
            iso27001_controls   text[] NOT NULL DEFAULT '{}',
            file_path           text NOT NULL DEFAULT '',
            priority            integer NOT NULL DEFAULT 0
        );`

// created_at is deliberately absent from the conflict clause so a re-save
// never rewrites when a policy first entered the store.
const sqlUpsertRecord = `
        INSERT INTO policy_tracking (` + trackingColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (policy_id) DO UPDATE SET
            vulnerability_title = EXCLUDED.vulnerability_title,
            vulnerability_type = EXCLUDED.vulnerability_type,
            severity = EXCLUDED.severity,
            status = EXCLUDED.status,
            assigned_to = EXCLUDED.assigned_to,
            updated_at = EXCLUDED.updated_at,
            due_date = EXCLUDED.due_date,
            timeline = EXCLUDED.timeline,
            nist_csf_controls = EXCLUDED.nist_csf_controls,
            iso27001_controls = EXCLUDED.iso27001_controls,
            file_path = EXCLUDED.file_path,
            priority = EXCLUDED.priority;`

// The status column reference on the right-hand side of SET reads the row's
// value before the update, so jsonb_set splices the outgoing status into the
// event within the same atomic statement.
const sqlUpdateStatus = `
        UPDATE policy_tracking
        SET status = $2,
            updated_at = $3,
            timeline = timeline || jsonb_set($4::jsonb, '{from_status}', to_jsonb(status))
        WHERE policy_id = $1
        RETURNING ` + trackingColumns + `;`

const sqlUpdateAssignment = `
        UPDATE policy_tracking
        SET assigned_to = $2,
            updated_at = $3,
            timeline = timeline || $4::jsonb
        WHERE policy_id = $1
        RETURNING ` + trackingColumns + `;`

const sqlSelectAll = `
        SELECT ` + trackingColumns + `
        FROM policy_tracking
        ORDER BY created_at DESC, policy_id ASC;`

const sqlSelectOne = `
        SELECT ` + trackingColumns + `
        FROM policy_tracking
        WHERE policy_id = $1;`

// PostgresStore is the pgx-backed TrackingStore. Status and assignment
// mutations are single UPDATE statements, so concurrent writers from
// different API instances serialize on the row without advisory locks.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres verifies the connection and ensures the policy_tracking table
// exists before handing back the store.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping tracking database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to ensure policy_tracking table: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("tracking"),
	}, nil
}

// SaveAll upserts all records in a single transaction so a partially
// persisted run never becomes visible.
func (s *PostgresStore) SaveAll(ctx context.Context, records []schemas.TrackingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.upsertRecords(ctx, tx, records); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Tracking records saved", zap.Int("count", len(records)))
	return nil
}

func (s *PostgresStore) upsertRecords(ctx context.Context, tx pgx.Tx, records []schemas.TrackingRecord) error {
	batch := &pgx.Batch{}
	for i := range records {
		r := &records[i]
		timelineJSON, err := json.Marshal(r.Timeline)
		if err != nil {
			return fmt.Errorf("failed to encode timeline for policy '%s': %w", r.PolicyID, err)
		}
		batch.Queue(sqlUpsertRecord,
			r.PolicyID, r.VulnerabilityTitle, string(r.VulnerabilityType), string(r.Severity),
			string(r.Status), r.AssignedTo, r.CreatedAt.UTC(), r.UpdatedAt.UTC(), r.DueDate.UTC(),
			timelineJSON, r.NISTCSFControls, r.ISO27001Controls, r.FilePath, r.Priority,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer func() {
		_ = br.Close()
	}()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert tracking record '%s': %w", records[i].PolicyID, err)
		}
	}
	return nil
}

// List returns every record, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]schemas.TrackingRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectAll)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}
	defer rows.Close()

	var records []schemas.TrackingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// Get returns the record for policyID, or ErrNotFound when absent.
func (s *PostgresStore) Get(ctx context.Context, policyID string) (*schemas.TrackingRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, sqlSelectOne, policyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("policy '%s': %w", policyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy '%s': %w", policyID, err)
	}
	return rec, nil
}

// UpdateStatus moves the record to a new lifecycle state and appends the
// transition to the timeline in one atomic statement.
func (s *PostgresStore) UpdateStatus(ctx context.Context, policyID string, status schemas.PolicyStatus, actor, details string) (*schemas.TrackingRecord, error) {
	if !schemas.ValidPolicyStatus(status) {
		return nil, schemas.NewValidationError("'%s' is not a recognized policy status", status)
	}

	now := time.Now().UTC()
	eventJSON, err := json.Marshal(statusChangeEvent(status, actor, details, now))
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline event: %w", err)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, sqlUpdateStatus, policyID, string(status), now, eventJSON))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("policy '%s': %w", policyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update status for policy '%s': %w", policyID, err)
	}
	s.log.Info("Policy status updated",
		zap.String("policy_id", policyID),
		zap.String("status", string(status)),
		zap.String("actor", actor),
	)
	return rec, nil
}

// UpdateAssignment reassigns the record and appends the event atomically.
func (s *PostgresStore) UpdateAssignment(ctx context.Context, policyID string, assignee, actor string) (*schemas.TrackingRecord, error) {
	now := time.Now().UTC()
	eventJSON, err := json.Marshal(assignmentEvent(assignee, actor, now))
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline event: %w", err)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, sqlUpdateAssignment, policyID, assignee, now, eventJSON))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("policy '%s': %w", policyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update assignment for policy '%s': %w", policyID, err)
	}
	s.log.Info("Policy reassigned",
		zap.String("policy_id", policyID),
		zap.String("assignee", assignee),
		zap.String("actor", actor),
	)
	return rec, nil
}

// Stats aggregates the store with the same arithmetic as the file backend.
func (s *PostgresStore) Stats(ctx context.Context) (*schemas.TrackingStats, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(records, time.Now().UTC()), nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanRecord(row pgx.Row) (*schemas.TrackingRecord, error) {
	var (
		rec          schemas.TrackingRecord
		vulnType     string
		severity     string
		status       string
		timelineJSON []byte
	)
	err := row.Scan(
		&rec.PolicyID, &rec.VulnerabilityTitle, &vulnType, &severity,
		&status, &rec.AssignedTo, &rec.CreatedAt, &rec.UpdatedAt, &rec.DueDate,
		&timelineJSON, &rec.NISTCSFControls, &rec.ISO27001Controls,
		&rec.FilePath, &rec.Priority,
	)
	if err != nil {
		return nil, err
	}
	rec.VulnerabilityType = schemas.SourceType(vulnType)
	rec.Severity = schemas.Severity(severity)
	rec.Status = schemas.PolicyStatus(status)
	if len(timelineJSON) > 0 {
		if err := json.Unmarshal(timelineJSON, &rec.Timeline); err != nil {
			return nil, fmt.Errorf("failed to decode timeline for policy '%s': %w", rec.PolicyID, err)
		}
	}
	return &rec, nil
}
