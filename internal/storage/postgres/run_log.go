package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"fantasy_ingest/internal/domain"
)

// RunLogStore keeps the append-only audit trail of scheduler runs.
type RunLogStore struct {
	db *sqlx.DB
}

func NewRunLogStore(db *sqlx.DB) *RunLogStore {
	return &RunLogStore{db: db}
}

func (s *RunLogStore) Append(ctx context.Context, record *domain.RunRecord) error {
	outcomes, err := record.OutcomesJSON()
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}

	query := `
		INSERT INTO ingest_runs (id, trigger, started_at, finished_at, status, error, outcomes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		record.ID,
		string(record.Trigger),
		record.StartedAt,
		record.FinishedAt,
		string(record.Status),
		record.Error,
		string(outcomes),
	)
	if err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

type runRow struct {
	ID         string    `db:"id"`
	Trigger    string    `db:"trigger"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Status     string    `db:"status"`
	Error      *string   `db:"error"`
	Outcomes   []byte    `db:"outcomes"`
}

// Recent returns the newest records first.
func (s *RunLogStore) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	query := `
		SELECT id, trigger, started_at, finished_at, status, error, outcomes
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1`

	var rows []runRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}

	records := make([]domain.RunRecord, 0, len(rows))
	for _, r := range rows {
		rec := domain.RunRecord{
			ID:         r.ID,
			Trigger:    domain.RunTrigger(r.Trigger),
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			Status:     domain.RunStatus(r.Status),
			Error:      r.Error,
		}
		if len(r.Outcomes) > 0 {
			if err := json.Unmarshal(r.Outcomes, &rec.Outcomes); err != nil {
				return nil, fmt.Errorf("decode outcomes for run %s: %w", r.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
