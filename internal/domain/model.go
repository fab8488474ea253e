package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Core domain models for the audit record lifecycle. Persistence adapters
// store Payload as a single JSON document so resubmission metadata reads in
// the same fetch as the rest of the record.

// SubmissionStatus enumerates the audit lifecycle states in forward order.
type SubmissionStatus string

const (
	StatusInProgress            SubmissionStatus = "in_progress"
	StatusReadyForCertification SubmissionStatus = "ready_for_certification"
	StatusAuditorCertified      SubmissionStatus = "auditor_certified"
	StatusAuditeeCertified      SubmissionStatus = "auditee_certified"
	StatusCertified             SubmissionStatus = "certified"
	StatusSubmitted             SubmissionStatus = "submitted"
	StatusDisseminated          SubmissionStatus = "disseminated"
	StatusResubmitted           SubmissionStatus = "resubmitted"
)

var statusRank = map[SubmissionStatus]int{
	StatusInProgress:            0,
	StatusReadyForCertification: 1,
	StatusAuditorCertified:      2,
	StatusAuditeeCertified:      3,
	StatusCertified:             4,
	StatusSubmitted:             5,
	StatusDisseminated:          6,
	StatusResubmitted:           7,
}

// Valid reports whether s is a known lifecycle state.
func (s SubmissionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether a save may move the record from s to next.
// The lifecycle only moves forward; saves that keep the status are payload
// edits and are always allowed.
func (s SubmissionStatus) CanAdvanceTo(next SubmissionStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// ResubmissionStatus positions one record inside a resubmission chain.
type ResubmissionStatus string

const (
	ResubmissionOriginal   ResubmissionStatus = "original"
	ResubmissionMostRecent ResubmissionStatus = "most_recent"
	ResubmissionDeprecated ResubmissionStatus = "deprecated"
	ResubmissionNoData     ResubmissionStatus = "no_resubmission_data"
)

// ResubmissionMeta links a record to its predecessor and successor in a
// resubmission chain. A nil ResubmissionMeta on the payload marks a legacy
// record that predates explicit linkage tracking.
type ResubmissionMeta struct {
	Version          int                `json:"version"`
	Status           ResubmissionStatus `json:"resubmission_status"`
	PreviousReportID *string            `json:"previous_report_id,omitempty"`
	PreviousRowID    *int64             `json:"previous_row_id,omitempty"`
	NextReportID     *string            `json:"next_report_id,omitempty"`
	NextRowID        *int64             `json:"next_row_id,omitempty"`
}

// GeneralInformation carries the entity identity fields of an audit.
type GeneralInformation struct {
	UEI               string `json:"uei"`
	EIN               string `json:"ein"`
	AuditeeName       string `json:"auditee_name"`
	AuditeeEmail      string `json:"auditee_email"`
	AuditeeAddress    string `json:"auditee_address"`
	AuditeeState      string `json:"auditee_state"`
	AuditYear         int    `json:"audit_year"`
	FiscalPeriodStart string `json:"fiscal_period_start,omitempty"`
	FiscalPeriodEnd   string `json:"fiscal_period_end,omitempty"`
}

// FederalAwardLine is one line of the federal award schedule.
type FederalAwardLine struct {
	AgencyPrefix   string          `json:"agency_prefix"`
	AmountExpended decimal.Decimal `json:"amount_expended"`
	IsDirect       bool            `json:"is_direct"`
}

// Payload is the mutable structured document of an audit record.
type Payload struct {
	GeneralInformation GeneralInformation `json:"general_information"`
	FederalAwards      []FederalAwardLine `json:"federal_awards,omitempty"`
	AuditorCertified   bool               `json:"auditor_certified,omitempty"`
	AuditeeCertified   bool               `json:"auditee_certified,omitempty"`
	CognizantAgency    *string            `json:"cognizant_agency,omitempty"`
	OversightAgency    *string            `json:"oversight_agency,omitempty"`
	ResubmissionMeta   *ResubmissionMeta  `json:"resubmission_meta,omitempty"`
}

// AuditRecord is one audit submission lifecycle. Version starts at 0 at
// creation and increments exactly once per successful save.
type AuditRecord struct {
	ReportID         string
	Version          int
	SubmissionStatus SubmissionStatus
	Payload          Payload
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Event types recorded on history entries.
const (
	EventCreated        = "created"
	EventUpdated        = "updated"
	EventSubmitted      = "submitted"
	EventDisseminated   = "disseminated"
	EventAssigned       = "oversight-assigned"
	EventLinkageApplied = "linkage-applied"
	EventSuppressed     = "suppressed"
)

// AdministrativeEvent reports whether eventType bypasses lifecycle
// transition validation. Linkage write-back and suppression act on
// disseminated records outside the normal forward flow.
func AdministrativeEvent(eventType string) bool {
	return eventType == EventLinkageApplied || eventType == EventSuppressed
}

// HistoryEntry is one immutable append-only record per save.
type HistoryEntry struct {
	ID        string
	EventType string
	ReportID  string
	Version   int
	Snapshot  Payload
	Actor     string
	CreatedAt time.Time
}
