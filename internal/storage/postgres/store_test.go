package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantasy_ingest/internal/domain"
	"fantasy_ingest/testdata/utils"
)

var sourceRowColumns = []string{
	"id", "content_type", "identifier", "display_name", "enabled", "category",
	"per_run_limit", "last_success_at", "consecutive_error_count", "last_error",
	"last_items_processed", "created_at", "updated_at",
}

const testSourceID = "4f1c2b8e-7a61-4c39-9d7e-3b5a0d2f9e11"

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestSourceStore_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	now := time.Now().UTC()
	lastErr := "timeout"

	mock.ExpectQuery("SELECT .+ FROM sources WHERE id = \\$1").
		WithArgs(testSourceID).
		WillReturnRows(sqlmock.NewRows(sourceRowColumns).AddRow(
			testSourceID, "article", "https://example.com/rss", "Example", true, nil,
			25, nil, 2, lastErr, 0, now, now,
		))

	src, err := store.GetByID(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContentTypeArticle, src.ContentType)
	assert.Equal(t, 2, src.ConsecutiveErrorCount)
	assert.Equal(t, &lastErr, src.LastError)
	assert.Nil(t, src.LastSuccessAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceStore_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)

	mock.ExpectQuery("SELECT .+ FROM sources WHERE id = \\$1").
		WithArgs(testSourceID).
		WillReturnRows(sqlmock.NewRows(sourceRowColumns))

	_, err := store.GetByID(context.Background(), testSourceID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceStore_ListEnabled_FiltersByType(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	now := time.Now().UTC()
	ct := domain.ContentTypeVideo

	mock.ExpectQuery("FROM sources WHERE enabled AND content_type = \\$1").
		WithArgs("video").
		WillReturnRows(sqlmock.NewRows(sourceRowColumns).AddRow(
			testSourceID, "video", "UCabcdefghijklmnopqrstuv", "Channel", true, nil,
			10, now, 0, nil, 4, now, now,
		))

	sources, err := store.ListEnabled(context.Background(), &ct)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, 4, sources[0].LastItemsProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceStore_Insert_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO sources").
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value"})

	err := store.Insert(context.Background(), &domain.Source{
		ID:          testSourceID,
		ContentType: domain.ContentTypeArticle,
		Identifier:  "https://example.com/rss",
		DisplayName: "Example",
		Enabled:     true,
		Category:    utils.Ptr("News"),
		PerRunLimit: 25,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceStore_RecordFailure_IncrementsInSQL(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	at := time.Now().UTC()

	mock.ExpectExec("consecutive_error_count = consecutive_error_count \\+ 1").
		WithArgs(testSourceID, "connection refused", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RecordFailure(context.Background(), testSourceID, "connection refused", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceStore_RecordSuccess_ResetsStreak(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	at := time.Now().UTC()

	mock.ExpectExec("consecutive_error_count = 0,\\s+last_error = NULL").
		WithArgs(testSourceID, at, 12).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RecordSuccess(context.Background(), testSourceID, 12, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceStore_RecordSuccess_UnknownSource(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE sources SET").
		WithArgs(testSourceID, at, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RecordSuccess(context.Background(), testSourceID, 0, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSourceStore_Stats(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewSourceStore(db)
	staleBefore := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery("COUNT\\(\\*\\) AS total").
		WithArgs(staleBefore).
		WillReturnRows(sqlmock.NewRows([]string{"total", "enabled", "erroring", "stale", "never"}).
			AddRow(10, 8, 2, 1, 3))

	stats, err := store.Stats(context.Background(), staleBefore)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStats{Total: 10, Enabled: 8, Erroring: 2, Stale: 1, Never: 3}, *stats)
}

func TestResourceStore_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewResourceStore(db)
	now := time.Now().UTC()

	resource := &domain.Resource{
		Title:             "Week 3 Rankings",
		CanonicalURL:      "https://example.com/week-3",
		ImageURL:          "https://example.com/img.jpg",
		ContentType:       domain.ContentTypeArticle,
		Category:          "Rankings",
		SourceDisplayName: "Example",
		PublishedAt:       now,
		FetchedAt:         now,
		Tags:              []string{"RB"},
		Active:            true,
	}

	mock.ExpectQuery("INSERT INTO resources .+ ON CONFLICT \\(canonical_url\\) DO UPDATE SET .+ RETURNING id, \\(xmax = 0\\) AS inserted").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(41), true))
	mock.ExpectQuery("INSERT INTO resources").
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(41), false))

	inserted, err := store.Upsert(context.Background(), resource)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(41), resource.ID)

	inserted, err = store.Upsert(context.Background(), resource)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceStore_ExistsByURL(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewResourceStore(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://example.com/a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ExistsByURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sources").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, GetTxFromContext(ctx))
		if err := NewSourceStore(db).Delete(ctx, testSourceID); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_Commits(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		return tm.WithTransaction(ctx, func(context.Context) error { return nil })
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLogStore_AppendAndRecent(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewRunLogStore(db)
	started := time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC)

	record := &domain.RunRecord{
		ID:         "9b2e7c3a-1f0d-4e8b-a6c5-2d4f8e1b7a90",
		Trigger:    domain.TriggerManual,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Status:     domain.RunStatusSuccess,
		Outcomes: map[domain.ContentType]*domain.RunOutcome{
			domain.ContentTypeVideo: {ContentType: domain.ContentTypeVideo, Created: 3, Success: true},
		},
	}

	mock.ExpectExec("INSERT INTO ingest_runs").
		WithArgs(record.ID, "manual", record.StartedAt, record.FinishedAt, "success", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Append(context.Background(), record))

	outcomes, err := record.OutcomesJSON()
	require.NoError(t, err)

	mock.ExpectQuery("FROM ingest_runs ORDER BY started_at DESC").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trigger", "started_at", "finished_at", "status", "error", "outcomes"}).
			AddRow(record.ID, "manual", record.StartedAt, record.FinishedAt, "success", nil, []byte(outcomes)))

	records, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.TriggerManual, records[0].Trigger)
	assert.Equal(t, 3, records[0].Outcomes[domain.ContentTypeVideo].Created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
