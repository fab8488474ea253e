package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

const recordColumns = `report_id, version, submission_status, payload, created_at, updated_at`

// RecordRepository

func (db *DB) Get(ctx context.Context, reportID string) (domain.AuditRecord, error) {
	row := db.Pool.QueryRow(ctx, `
        SELECT `+recordColumns+` FROM audit_records WHERE report_id = $1
    `, reportID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AuditRecord{}, domain.ErrNotFound
	}
	return rec, err
}

// Create inserts the record at version 0 and its creation history entry in
// one transaction.
func (db *DB) Create(ctx context.Context, rec domain.AuditRecord, entry domain.HistoryEntry) (err error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
        INSERT INTO audit_records (report_id, version, submission_status, payload, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, rec.ReportID, rec.Version, string(rec.SubmissionStatus), payload, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return err
	}
	return insertHistory(ctx, tx, entry)
}

// SaveVersioned is the optimistic-lock write path: the stored version is
// read under a row lock and compared to the version the caller observed. On
// mismatch nothing is written and *domain.ConcurrencyError is returned.
func (db *DB) SaveVersioned(ctx context.Context, rec domain.AuditRecord, observed int, entry domain.HistoryEntry) (err error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var current int
	err = tx.QueryRow(ctx, `
        SELECT version FROM audit_records WHERE report_id = $1 FOR UPDATE
    `, rec.ReportID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if current != observed {
		return &domain.ConcurrencyError{ReportID: rec.ReportID, Observed: observed, Current: current}
	}

	if _, err = tx.Exec(ctx, `
        UPDATE audit_records
        SET version = $2, submission_status = $3, payload = $4, updated_at = $5
        WHERE report_id = $1
    `, rec.ReportID, rec.Version, string(rec.SubmissionStatus), payload, rec.UpdatedAt); err != nil {
		return err
	}
	return insertHistory(ctx, tx, entry)
}

// RecordQueries

// LegacySiblings returns disseminated records sharing (uei, auditYear) whose
// payload carries no resubmission metadata. Our encoder omits the field when
// it is nil, but bulk imports may write an explicit JSON null; both spell
// "legacy" here, matching what the Go model decodes to nil.
func (db *DB) LegacySiblings(ctx context.Context, uei string, auditYear int) ([]domain.AuditRecord, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+recordColumns+` FROM audit_records
        WHERE submission_status = 'disseminated'
          AND (payload -> 'resubmission_meta' IS NULL OR payload -> 'resubmission_meta' = 'null'::jsonb)
          AND payload -> 'general_information' ->> 'uei' = $1
          AND (payload -> 'general_information' ->> 'audit_year')::int = $2
        ORDER BY report_id
    `, uei, auditYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (db *DB) LegacyCandidates(ctx context.Context, auditYear int) ([]domain.AuditRecord, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+recordColumns+` FROM audit_records
        WHERE submission_status = 'disseminated'
          AND (payload -> 'resubmission_meta' IS NULL OR payload -> 'resubmission_meta' = 'null'::jsonb)
          AND (payload -> 'general_information' ->> 'audit_year')::int = $1
        ORDER BY report_id
    `, auditYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var status string
	var payload []byte
	if err := row.Scan(&rec.ReportID, &rec.Version, &status, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.AuditRecord{}, err
	}
	rec.SubmissionStatus = domain.SubmissionStatus(status)
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return domain.AuditRecord{}, err
	}
	return rec, nil
}

func scanRecords(rows pgx.Rows) ([]domain.AuditRecord, error) {
	var out []domain.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
