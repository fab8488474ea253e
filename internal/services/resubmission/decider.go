package resubmission

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
	"github.com/GSA-TTS/FAC-sub003/internal/ports"
)

// legacyClusterWindow guards against unrelated entities sharing a mistyped
// UEI: legacy siblings whose last transitions all fall inside this window
// are treated as suspicious and denied.
const legacyClusterWindow = 10 * time.Second

// Reason strings are shown verbatim to end users and asserted by the
// resubmission UI; keep them stable.
const (
	reasonWrongStatusFmt = "Only disseminated audits may be resubmitted. Current status: %s."
	reasonIncomplete     = "Incomplete record: report ID, UEI, audit year, and version are required."
	reasonDeprecated     = "This audit has been superseded by a later resubmission and is no longer eligible."
	reasonOriginal       = "Original audit is eligible for resubmission."
	reasonMostRecent     = "Most recent resubmission is eligible for further resubmission."
	reasonSoleLegacy     = "Legacy audit is eligible for resubmission."
	reasonLatestLegacy   = "Most recent legacy audit is eligible for resubmission."
	reasonNotLatest      = "Only the most recent legacy record may initiate resubmission."
	reasonSuspicious     = "Sibling submission timestamps fall within the 10-second clustering window; possible UEI misuse."
	reasonDefault        = "Audit is not eligible for resubmission."
)

// Decider evaluates whether a disseminated audit may be superseded by a new
// submission. Records carrying explicit resubmission metadata are decided
// from that metadata alone; legacy records fall back to sibling ordering by
// last transition date.
type Decider struct {
	records ports.RecordQueries
	history ports.HistoryRepository
}

func New(records ports.RecordQueries, history ports.HistoryRepository) *Decider {
	return &Decider{records: records, history: history}
}

// CanResubmit applies the eligibility decision table in order; the first
// matching rule wins. A denial is an outcome, never an error: the error
// return is reserved for storage failures.
func (d *Decider) CanResubmit(ctx context.Context, rec domain.AuditRecord) (bool, string, error) {
	if rec.SubmissionStatus != domain.StatusDisseminated {
		return false, fmt.Sprintf(reasonWrongStatusFmt, rec.SubmissionStatus), nil
	}
	gi := rec.Payload.GeneralInformation
	if rec.ReportID == "" || gi.UEI == "" || gi.AuditYear == 0 || rec.Version == 0 {
		return false, reasonIncomplete, nil
	}
	if meta := rec.Payload.ResubmissionMeta; meta != nil {
		switch {
		case meta.Status == domain.ResubmissionDeprecated:
			return false, reasonDeprecated, nil
		case meta.Status == domain.ResubmissionOriginal && rec.Version == 1:
			return true, reasonOriginal, nil
		case meta.Status == domain.ResubmissionMostRecent && rec.Version > 1:
			return true, reasonMostRecent, nil
		}
		return false, reasonDefault, nil
	}

	sibs, err := d.legacySiblings(ctx, gi.UEI, gi.AuditYear)
	if err != nil {
		return false, "", err
	}
	eligible, reason := decideLegacy(rec.ReportID, sibs)
	return eligible, reason, nil
}

type sibling struct {
	reportID       string
	lastTransition time.Time
}

func (d *Decider) legacySiblings(ctx context.Context, uei string, auditYear int) ([]sibling, error) {
	recs, err := d.records.LegacySiblings(ctx, uei, auditYear)
	if err != nil {
		return nil, err
	}
	sibs := make([]sibling, 0, len(recs))
	for _, r := range recs {
		ts, found, err := d.history.LastTransition(ctx, r.ReportID)
		if err != nil {
			return nil, err
		}
		if !found {
			// Records with no history sort first, as oldest.
			ts = time.Time{}
		}
		sibs = append(sibs, sibling{reportID: r.ReportID, lastTransition: ts})
	}
	return sibs, nil
}

// decideLegacy disambiguates a legacy record against its null-metadata
// siblings. Only the newest sibling by (last transition, report ID) may
// initiate a resubmission, and only when the siblings are not
// near-simultaneous.
func decideLegacy(reportID string, sibs []sibling) (bool, string) {
	if len(sibs) <= 1 {
		return true, reasonSoleLegacy
	}
	sort.Slice(sibs, func(i, j int) bool {
		if !sibs[i].lastTransition.Equal(sibs[j].lastTransition) {
			return sibs[i].lastTransition.Before(sibs[j].lastTransition)
		}
		return sibs[i].reportID < sibs[j].reportID
	})
	last := sibs[len(sibs)-1]
	if last.reportID != reportID {
		return false, reasonNotLatest
	}
	spread := last.lastTransition.Sub(sibs[0].lastTransition)
	if spread < legacyClusterWindow {
		return false, reasonSuspicious
	}
	return true, reasonLatestLegacy
}
