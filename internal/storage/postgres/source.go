package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fantasy_ingest/internal/domain"
)

const uniqueViolation = "23505"

const sourceColumns = `
	id, content_type, identifier, display_name, enabled, category, per_run_limit,
	last_success_at, consecutive_error_count, last_error, last_items_processed,
	created_at, updated_at`

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources ORDER BY content_type, display_name`

	sources := []domain.Source{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// ListEnabled returns enabled sources, optionally restricted to one content type.
func (s *SourceStore) ListEnabled(ctx context.Context, contentType *domain.ContentType) ([]domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE enabled`
	args := []any{}
	if contentType != nil {
		query += ` AND content_type = $1`
		args = append(args, string(*contentType))
	}
	query += ` ORDER BY display_name`

	sources := []domain.Source{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query, args...); err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}
	return sources, nil
}

// ListNeedingAttention returns enabled sources that never succeeded, are
// erroring, or last succeeded before staleBefore. Worst first.
func (s *SourceStore) ListNeedingAttention(ctx context.Context, staleBefore time.Time) ([]domain.Source, error) {
	query := `SELECT ` + sourceColumns + `
		FROM sources
		WHERE enabled
		  AND (last_success_at IS NULL OR consecutive_error_count > 0 OR last_success_at < $1)
		ORDER BY consecutive_error_count DESC, last_success_at ASC NULLS FIRST`

	sources := []domain.Source{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sources, query, staleBefore); err != nil {
		return nil, fmt.Errorf("list sources needing attention: %w", err)
	}
	return sources, nil
}

func (s *SourceStore) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.getOne(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
}

func (s *SourceStore) GetByIdentifier(ctx context.Context, identifier string) (*domain.Source, error) {
	return s.getOne(ctx, `SELECT `+sourceColumns+` FROM sources WHERE identifier = $1`, identifier)
}

func (s *SourceStore) getOne(ctx context.Context, query string, arg any) (*domain.Source, error) {
	var src domain.Source
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &src, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return &src, nil
}

func (s *SourceStore) Insert(ctx context.Context, src *domain.Source) error {
	query := `
		INSERT INTO sources (
			id, content_type, identifier, display_name, enabled, category,
			per_run_limit, created_at, updated_at
		) VALUES (
			:id, :content_type, :identifier, :display_name, :enabled, :category,
			:per_run_limit, :created_at, :updated_at
		)`

	if _, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, src); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *SourceStore) Update(ctx context.Context, src *domain.Source) error {
	query := `
		UPDATE sources SET
			identifier = :identifier,
			display_name = :display_name,
			enabled = :enabled,
			category = :category,
			per_run_limit = :per_run_limit,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, src)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func (s *SourceStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return expectAffected(res)
}

// RecordSuccess clears the error streak in a single statement.
func (s *SourceStore) RecordSuccess(ctx context.Context, id string, itemsProcessed int, at time.Time) error {
	query := `
		UPDATE sources SET
			last_success_at = $2,
			consecutive_error_count = 0,
			last_error = NULL,
			last_items_processed = $3,
			updated_at = $2
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, at, itemsProcessed)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return expectAffected(res)
}

// RecordFailure increments the error streak in the database so concurrent
// writers never lose a count.
func (s *SourceStore) RecordFailure(ctx context.Context, id string, message string, at time.Time) error {
	query := `
		UPDATE sources SET
			consecutive_error_count = consecutive_error_count + 1,
			last_error = $2,
			updated_at = $3
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, message, at)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return expectAffected(res)
}

func (s *SourceStore) Stats(ctx context.Context, staleBefore time.Time) (*domain.SourceStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE enabled) AS enabled,
			COUNT(*) FILTER (WHERE enabled AND consecutive_error_count > 0) AS erroring,
			COUNT(*) FILTER (WHERE enabled AND last_success_at < $1) AS stale,
			COUNT(*) FILTER (WHERE enabled AND last_success_at IS NULL) AS never
		FROM sources`

	var stats domain.SourceStats
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &stats, query, staleBefore); err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	return &stats, nil
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrDuplicate
	}
	return err
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
