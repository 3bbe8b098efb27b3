package tracking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
)

// fileDocument is the on-disk layout of the file backend.
type fileDocument struct {
	Records []schemas.TrackingRecord `json:"records"`
}

// FileStore keeps tracking records in a single JSON document. All access
// goes through one mutex and every mutation rewrites the document with a
// temp-file-and-rename, so readers never observe a half-written file.
type FileStore struct {
	path string
	log  *zap.Logger

	mu      sync.Mutex
	records map[string]schemas.TrackingRecord
}

// NewFile loads the document at path, or starts empty when none exists yet.
// A file that exists but does not parse is an error; silently replacing it
// would destroy remediation history.
func NewFile(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("tracking file path must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &FileStore{
		path:    path,
		log:     logger.Named("tracking"),
		records: make(map[string]schemas.TrackingRecord),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read tracking file '%s': %w", s.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("tracking file '%s' is not valid JSON: %w", s.path, err)
	}
	for _, r := range doc.Records {
		s.records[r.PolicyID] = r
	}
	s.log.Debug("Tracking records loaded",
		zap.Int("count", len(s.records)),
		zap.String("path", s.path),
	)
	return nil
}

// SaveAll upserts the given records. A record that already exists keeps its
// original created_at, matching the postgres conflict clause.
func (s *FileStore) SaveAll(ctx context.Context, records []schemas.TrackingRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if existing, ok := s.records[r.PolicyID]; ok {
			r.CreatedAt = existing.CreatedAt
		}
		s.records[r.PolicyID] = cloneRecord(r)
	}
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.log.Debug("Tracking records saved", zap.Int("count", len(records)))
	return nil
}

// List returns every record, newest first.
func (s *FileStore) List(ctx context.Context) ([]schemas.TrackingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(), nil
}

// Get returns the record for policyID, or ErrNotFound when absent.
func (s *FileStore) Get(ctx context.Context, policyID string) (*schemas.TrackingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[policyID]
	if !ok {
		return nil, fmt.Errorf("policy '%s': %w", policyID, ErrNotFound)
	}
	out := cloneRecord(rec)
	return &out, nil
}

// UpdateStatus moves the record to a new lifecycle state, records the
// transition on the timeline, and flushes the document.
func (s *FileStore) UpdateStatus(ctx context.Context, policyID string, status schemas.PolicyStatus, actor, details string) (*schemas.TrackingRecord, error) {
	if !schemas.ValidPolicyStatus(status) {
		return nil, schemas.NewValidationError("'%s' is not a recognized policy status", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[policyID]
	if !ok {
		return nil, fmt.Errorf("policy '%s': %w", policyID, ErrNotFound)
	}

	now := time.Now().UTC()
	event := statusChangeEvent(status, actor, details, now)
	event.FromStatus = rec.Status

	rec = cloneRecord(rec)
	rec.Status = status
	rec.UpdatedAt = now
	rec.Timeline = append(rec.Timeline, event)
	s.records[policyID] = rec

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	s.log.Info("Policy status updated",
		zap.String("policy_id", policyID),
		zap.String("status", string(status)),
		zap.String("actor", actor),
	)
	out := cloneRecord(rec)
	return &out, nil
}

// UpdateAssignment reassigns the record and records the event.
func (s *FileStore) UpdateAssignment(ctx context.Context, policyID string, assignee, actor string) (*schemas.TrackingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[policyID]
	if !ok {
		return nil, fmt.Errorf("policy '%s': %w", policyID, ErrNotFound)
	}

	now := time.Now().UTC()
	rec = cloneRecord(rec)
	rec.AssignedTo = assignee
	rec.UpdatedAt = now
	rec.Timeline = append(rec.Timeline, assignmentEvent(assignee, actor, now))
	s.records[policyID] = rec

	if err := s.persistLocked(); err != nil {
		return nil, err
	}
	s.log.Info("Policy reassigned",
		zap.String("policy_id", policyID),
		zap.String("assignee", assignee),
		zap.String("actor", actor),
	)
	out := cloneRecord(rec)
	return &out, nil
}

// Stats aggregates the store.
func (s *FileStore) Stats(ctx context.Context) (*schemas.TrackingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeStats(s.sortedLocked(), time.Now().UTC()), nil
}

// Close is a no-op; every mutation is flushed to disk as it happens.
func (s *FileStore) Close() {}

// persistLocked writes the full document atomically. Callers hold s.mu.
func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(fileDocument{Records: s.sortedLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking records: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create tracking directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary tracking file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write tracking records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush tracking records: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace tracking file '%s': %w", s.path, err)
	}
	return nil
}

func (s *FileStore) sortedLocked() []schemas.TrackingRecord {
	records := make([]schemas.TrackingRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, cloneRecord(r))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].PolicyID < records[j].PolicyID
	})
	return records
}

// cloneRecord copies the record's slices so callers and the store never
// share backing arrays.
func cloneRecord(r schemas.TrackingRecord) schemas.TrackingRecord {
	r.Timeline = append([]schemas.TimelineEvent(nil), r.Timeline...)
	r.NISTCSFControls = append([]string(nil), r.NISTCSFControls...)
	r.ISO27001Controls = append([]string(nil), r.ISO27001Controls...)
	return r
}
