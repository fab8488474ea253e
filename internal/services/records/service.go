package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
)

// Service is the versioned record store: the single mutation path for audit
// records. Every successful save increments the version by exactly one and
// appends one history entry in the same transaction.
type Service struct {
	repo ports.RecordRepository
}

func New(repo ports.RecordRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, reportID string) (domain.AuditRecord, error) {
	return s.repo.Get(ctx, reportID)
}

// Create assigns a report ID, starts the record at version 0, and writes the
// creation history entry atomically with the record.
func (s *Service) Create(ctx context.Context, payload domain.Payload, actor string) (domain.AuditRecord, error) {
	now := time.Now().UTC()
	year := payload.GeneralInformation.AuditYear
	if year == 0 {
		year = now.Year()
	}
	rec := domain.AuditRecord{
		ReportID:         newReportID(year, now.Month()),
		Version:          0,
		SubmissionStatus: domain.StatusInProgress,
		Payload:          payload,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	entry := domain.HistoryEntry{
		ID:        uuid.NewString(),
		EventType: domain.EventCreated,
		ReportID:  rec.ReportID,
		Version:   0,
		Snapshot:  payload,
		Actor:     actor,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, rec, entry); err != nil {
		return domain.AuditRecord{}, err
	}
	return rec, nil
}

// Save persists rec under optimistic concurrency: the version the caller
// last observed (rec.Version) must still match the stored version, otherwise
// *domain.ConcurrencyError is returned and nothing is written. Retry requires
// a fresh read because business rules must be re-validated against current
// state, so no retry happens here.
func (s *Service) Save(ctx context.Context, rec domain.AuditRecord, actor, eventType string) (domain.AuditRecord, error) {
	if !rec.SubmissionStatus.Valid() {
		return domain.AuditRecord{}, fmt.Errorf("unknown submission status %q", rec.SubmissionStatus)
	}
	current, err := s.repo.Get(ctx, rec.ReportID)
	if err != nil {
		return domain.AuditRecord{}, err
	}
	if current.Version != rec.Version {
		return domain.AuditRecord{}, &domain.ConcurrencyError{
			ReportID: rec.ReportID,
			Observed: rec.Version,
			Current:  current.Version,
		}
	}
	if !domain.AdministrativeEvent(eventType) && !current.SubmissionStatus.CanAdvanceTo(rec.SubmissionStatus) {
		return domain.AuditRecord{}, fmt.Errorf("invalid status transition %s -> %s for %s",
			current.SubmissionStatus, rec.SubmissionStatus, rec.ReportID)
	}

	now := time.Now().UTC()
	next := rec
	next.Version = rec.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = now
	entry := domain.HistoryEntry{
		ID:        uuid.NewString(),
		EventType: eventType,
		ReportID:  next.ReportID,
		Version:   next.Version,
		Snapshot:  next.Payload,
		Actor:     actor,
		CreatedAt: now,
	}
	// The repository re-checks the version under lock; the check above only
	// gives callers an early answer without opening a write transaction.
	if err := s.repo.SaveVersioned(ctx, next, rec.Version, entry); err != nil {
		return domain.AuditRecord{}, err
	}
	return next, nil
}

// newReportID builds a globally unique report ID. The suffix comes from a
// UUID rather than an in-process counter so IDs stay unique across
// concurrent processes.
func newReportID(year int, month time.Month) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
	return fmt.Sprintf("%d-%02d-GSAFAC-%s", year, int(month), suffix)
}
