package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/GSA-TTS/FAC-sub003/internal/domain"
)

// AwardLines implements the cognizant prior-year reference dataset: the
// award schedule of the auditee's newest disseminated audit for the year
// before auditYear. No rows means no reference data, not an error.
func (db *DB) AwardLines(ctx context.Context, uei string, auditYear int) ([]domain.FederalAwardLine, error) {
	var payload []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT payload FROM audit_records
        WHERE submission_status = 'disseminated'
          AND payload -> 'general_information' ->> 'uei' = $1
          AND (payload -> 'general_information' ->> 'audit_year')::int = $2
        ORDER BY updated_at DESC
        LIMIT 1
    `, uei, auditYear-1).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p domain.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return p.FederalAwards, nil
}
