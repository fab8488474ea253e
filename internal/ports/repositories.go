package ports

import (
	"context"
	"time"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

// RecordRepository is the transactional persistence contract for audit
// records. Both mutating calls must write the record and its history entry
// atomically; partial application is a storage bug, not a caller concern.
type RecordRepository interface {
	Get(ctx context.Context, reportID string) (domain.AuditRecord, error)

	// Create inserts a new record at version 0 alongside its creation
	// history entry.
	Create(ctx context.Context, rec domain.AuditRecord, entry domain.HistoryEntry) error

	// SaveVersioned persists rec only if the stored version still equals
	// observed, appending entry in the same transaction. A mismatch yields
	// *domain.ConcurrencyError and no mutation.
	SaveVersioned(ctx context.Context, rec domain.AuditRecord, observed int, entry domain.HistoryEntry) error
}

// HistoryRepository reads the append-only event history of a record.
type HistoryRepository interface {
	ListByReport(ctx context.Context, reportID string) ([]domain.HistoryEntry, error)

	// LastTransition returns the newest history timestamp for the record.
	// found is false when no history exists.
	LastTransition(ctx context.Context, reportID string) (ts time.Time, found bool, err error)
}

// RecordQueries supports the legacy-lineage lookups: equality on
// (uei, audit_year) and is-null on resubmission metadata.
type RecordQueries interface {
	// LegacySiblings returns disseminated records sharing (uei, auditYear)
	// that carry no resubmission metadata.
	LegacySiblings(ctx context.Context, uei string, auditYear int) ([]domain.AuditRecord, error)

	// LegacyCandidates returns all disseminated records for auditYear that
	// carry no resubmission metadata.
	LegacyCandidates(ctx context.Context, auditYear int) ([]domain.AuditRecord, error)
}
