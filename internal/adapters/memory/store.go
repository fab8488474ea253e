package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
)

// Store is an in-memory implementation of the persistence ports, used by
// tests and DB-free local runs. One mutex serializes everything; that is
// enough to make the optimistic version check equivalent to the SQL
// adapter's row lock.
type Store struct {
	mu      sync.Mutex
	records map[string]domain.AuditRecord
	history map[string][]domain.HistoryEntry
	jobs    []*jobRow
}

type jobRow struct {
	id       string
	reportID string
	status   string
	reason   string
	attempts int
	queuedAt time.Time
}

func NewStore() *Store {
	return &Store{
		records: map[string]domain.AuditRecord{},
		history: map[string][]domain.HistoryEntry{},
	}
}

// RecordRepository

func (s *Store) Get(ctx context.Context, reportID string) (domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[reportID]
	if !ok {
		return domain.AuditRecord{}, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) Create(ctx context.Context, rec domain.AuditRecord, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ReportID]; exists {
		return fmt.Errorf("duplicate report id %s", rec.ReportID)
	}
	s.records[rec.ReportID] = cloneRecord(rec)
	s.history[rec.ReportID] = append(s.history[rec.ReportID], entry)
	return nil
}

func (s *Store) SaveVersioned(ctx context.Context, rec domain.AuditRecord, observed int, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.ReportID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != observed {
		return &domain.ConcurrencyError{ReportID: rec.ReportID, Observed: observed, Current: current.Version}
	}
	s.records[rec.ReportID] = cloneRecord(rec)
	s.history[rec.ReportID] = append(s.history[rec.ReportID], entry)
	return nil
}

// HistoryRepository

func (s *Store) ListByReport(ctx context.Context, reportID string) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HistoryEntry(nil), s.history[reportID]...), nil
}

func (s *Store) LastTransition(ctx context.Context, reportID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	entries := s.history[reportID]
	for _, e := range entries {
		if e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return last, len(entries) > 0, nil
}

// RecordQueries

func (s *Store) LegacySiblings(ctx context.Context, uei string, auditYear int) ([]domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditRecord
	for _, rec := range s.records {
		gi := rec.Payload.GeneralInformation
		if rec.SubmissionStatus == domain.StatusDisseminated &&
			rec.Payload.ResubmissionMeta == nil &&
			gi.UEI == uei && gi.AuditYear == auditYear {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *Store) LegacyCandidates(ctx context.Context, auditYear int) ([]domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditRecord
	for _, rec := range s.records {
		if rec.SubmissionStatus == domain.StatusDisseminated &&
			rec.Payload.ResubmissionMeta == nil &&
			rec.Payload.GeneralInformation.AuditYear == auditYear {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// JobRepository

func (s *Store) Enqueue(ctx context.Context, reportID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &jobRow{id: uuid.NewString(), reportID: reportID, status: "queued", queuedAt: time.Now().UTC()}
	s.jobs = append(s.jobs, job)
	return job.id, nil
}

func (s *Store) ClaimNext(ctx context.Context) (ports.AssignmentJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.status == "queued" {
			job.status = "running"
			job.attempts++
			return ports.AssignmentJob{ID: job.id, ReportID: job.reportID}, true, nil
		}
	}
	return ports.AssignmentJob{}, false, nil
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	return s.setJobStatus(jobID, "completed", "")
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.setJobStatus(jobID, "failed", reason)
}

func (s *Store) StartJobForReport(ctx context.Context, reportID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.reportID == reportID && job.status == "queued" {
			job.status = "running"
			job.attempts++
			return job.id, nil
		}
	}
	return "", fmt.Errorf("no queued assignment job for %s", reportID)
}

func (s *Store) setJobStatus(jobID, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.id == jobID {
			job.status = status
			job.reason = reason
			return nil
		}
	}
	return fmt.Errorf("no assignment job %s", jobID)
}

// JobStatus reports the status of a job, for tests.
func (s *Store) JobStatus(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.id == jobID {
			return job.status, true
		}
	}
	return "", false
}

// cloneRecord copies the pointer-bearing parts of the payload so callers
// cannot mutate stored state through returned records.
func cloneRecord(rec domain.AuditRecord) domain.AuditRecord {
	out := rec
	if rec.Payload.FederalAwards != nil {
		out.Payload.FederalAwards = append([]domain.FederalAwardLine(nil), rec.Payload.FederalAwards...)
	}
	if rec.Payload.ResubmissionMeta != nil {
		meta := *rec.Payload.ResubmissionMeta
		out.Payload.ResubmissionMeta = &meta
	}
	if rec.Payload.CognizantAgency != nil {
		v := *rec.Payload.CognizantAgency
		out.Payload.CognizantAgency = &v
	}
	if rec.Payload.OversightAgency != nil {
		v := *rec.Payload.OversightAgency
		out.Payload.OversightAgency = &v
	}
	return out
}
