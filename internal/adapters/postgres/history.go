package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

func insertHistory(ctx context.Context, tx pgx.Tx, entry domain.HistoryEntry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
        INSERT INTO audit_history (id, event_type, report_id, version, snapshot, actor, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, entry.ID, entry.EventType, entry.ReportID, entry.Version, snapshot, entry.Actor, entry.CreatedAt)
	return err
}

// HistoryRepository

func (db *DB) ListByReport(ctx context.Context, reportID string) ([]domain.HistoryEntry, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, event_type, report_id, version, snapshot, actor, created_at
        FROM audit_history
        WHERE report_id = $1
        ORDER BY created_at, version
    `, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		var snapshot []byte
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.ReportID, &entry.Version, &snapshot, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &entry.Snapshot); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (db *DB) LastTransition(ctx context.Context, reportID string) (time.Time, bool, error) {
	var ts *time.Time
	err := db.Pool.QueryRow(ctx, `
        SELECT max(created_at) FROM audit_history WHERE report_id = $1
    `, reportID).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}
