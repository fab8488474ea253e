package ports

import (
	"context"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

// RecordStore is the single mutation path for audit records.
type RecordStore interface {
	Create(ctx context.Context, payload domain.Payload, actor string) (domain.AuditRecord, error)
	Save(ctx context.Context, rec domain.AuditRecord, actor, eventType string) (domain.AuditRecord, error)
	Get(ctx context.Context, reportID string) (domain.AuditRecord, error)
}

// EligibilityDecider answers whether a record may initiate a resubmission.
// The reason string is shown verbatim to end users.
type EligibilityDecider interface {
	CanResubmit(ctx context.Context, rec domain.AuditRecord) (eligible bool, reason string, err error)
}
