package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"fantasy_ingest/internal/domain"
)

type SourceStore interface {
	List(ctx context.Context) ([]domain.Source, error)
	ListEnabled(ctx context.Context, contentType *domain.ContentType) ([]domain.Source, error)
	ListNeedingAttention(ctx context.Context, staleBefore time.Time) ([]domain.Source, error)
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Source, error)
	Insert(ctx context.Context, source *domain.Source) error
	Update(ctx context.Context, source *domain.Source) error
	Delete(ctx context.Context, id string) error
	RecordSuccess(ctx context.Context, id string, itemsProcessed int, at time.Time) error
	RecordFailure(ctx context.Context, id string, message string, at time.Time) error
	Stats(ctx context.Context, staleBefore time.Time) (*domain.SourceStats, error)
}

type ResourceStore interface {
	ExistsByURL(ctx context.Context, canonicalURL string) (bool, error)
	Upsert(ctx context.Context, resource *domain.Resource) (bool, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, resource *domain.Resource, isNew bool) error
	Close() error
}

// Fetcher pulls raw items for one source of its content type. A malformed
// upstream entry is skipped; an error means the whole fetch failed.
type Fetcher interface {
	ContentType() domain.ContentType
	Fetch(ctx context.Context, source domain.Source) ([]domain.RawItem, error)
}

type SourceRegistry interface {
	ListEnabled(ctx context.Context, contentType *domain.ContentType) ([]domain.Source, error)
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	ListNeedingAttention(ctx context.Context, staleThresholdHours int) ([]domain.Source, error)
	RecordRunOutcome(ctx context.Context, id string, success bool, itemsProcessed int, errMsg string) error
}

type ItemUpserter interface {
	Upsert(ctx context.Context, item domain.RawItem, sourceDisplayName string) (domain.UpsertStatus, error)
}
