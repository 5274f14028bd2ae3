package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fantasy_ingest/internal/domain"
)

type ResourceStore struct {
	db *sqlx.DB
}

func NewResourceStore(db *sqlx.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

func (s *ResourceStore) ExistsByURL(ctx context.Context, canonicalURL string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		`SELECT EXISTS (SELECT 1 FROM resources WHERE canonical_url = $1)`, canonicalURL)
	if err != nil {
		return false, fmt.Errorf("check resource: %w", err)
	}
	return exists, nil
}

// Upsert writes the resource keyed by canonical_url and reports whether the
// row was inserted. resource.ID is set either way.
func (s *ResourceStore) Upsert(ctx context.Context, resource *domain.Resource) (bool, error) {
	query := `
		INSERT INTO resources (
			title, description, canonical_url, image_url, content_type, category,
			source_display_name, author, duration, view_count, published_at,
			fetched_at, tags, keywords, raw_payload, active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (canonical_url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			category = EXCLUDED.category,
			source_display_name = EXCLUDED.source_display_name,
			author = EXCLUDED.author,
			duration = EXCLUDED.duration,
			view_count = EXCLUDED.view_count,
			published_at = EXCLUDED.published_at,
			fetched_at = EXCLUDED.fetched_at,
			tags = EXCLUDED.tags,
			keywords = EXCLUDED.keywords,
			raw_payload = EXCLUDED.raw_payload,
			active = EXCLUDED.active
		RETURNING id, (xmax = 0) AS inserted`

	var id int64
	var inserted bool
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		resource.Title,
		resource.Description,
		resource.CanonicalURL,
		resource.ImageURL,
		string(resource.ContentType),
		resource.Category,
		resource.SourceDisplayName,
		resource.Author,
		resource.Duration,
		resource.ViewCount,
		resource.PublishedAt,
		resource.FetchedAt,
		stringArray(resource.Tags),
		stringArray(resource.Keywords),
		jsonOrNull(resource.RawPayload),
		resource.Active,
	).Scan(&id, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert resource: %w", err)
	}

	resource.ID = id
	return inserted, nil
}

func stringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}

func jsonOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
