package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"fantasy_ingest/internal/classify"
	"fantasy_ingest/internal/domain"
)

// Upserter maps raw items to resources and writes them keyed by canonical URL.
type Upserter struct {
	resources ResourceStore
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewUpserter builds an upserter. publisher may be nil.
func NewUpserter(resources ResourceStore, publisher Publisher, logger *slog.Logger) *Upserter {
	return &Upserter{
		resources: resources,
		publisher: publisher,
		logger:    logger.With("component", "upserter"),
		now:       time.Now,
	}
}

func (u *Upserter) Upsert(ctx context.Context, item domain.RawItem, sourceDisplayName string) (domain.UpsertStatus, error) {
	resource, err := u.normalize(item, sourceDisplayName)
	if err != nil {
		return "", err
	}

	exists, err := u.resources.ExistsByURL(ctx, resource.CanonicalURL)
	if err != nil {
		return "", &domain.PersistenceError{Op: "lookup resource", Err: err}
	}

	inserted, err := u.resources.Upsert(ctx, resource)
	if err != nil {
		if exists {
			u.logger.Warn("resource update failed, skipping",
				"url", resource.CanonicalURL,
				"error", err,
			)
			return domain.UpsertSkipped, nil
		}
		return "", &domain.PersistenceError{Op: "insert resource", Err: err}
	}

	status := domain.UpsertUpdated
	if inserted {
		status = domain.UpsertNew
	}

	if u.publisher != nil {
		if err := u.publisher.Publish(ctx, resource, inserted); err != nil {
			u.logger.Warn("publish resource event failed",
				"url", resource.CanonicalURL,
				"error", err,
			)
		}
	}

	return status, nil
}

func (u *Upserter) normalize(item domain.RawItem, sourceDisplayName string) (*domain.Resource, error) {
	link := strings.TrimSpace(item.Link)
	title := strings.TrimSpace(item.Title)

	if link == "" {
		return nil, &domain.ItemProcessingError{Err: errors.New("missing link")}
	}
	if parsed, err := url.Parse(link); err != nil || parsed.Host == "" {
		return nil, &domain.ItemProcessingError{Link: link, Err: errors.New("link is not an absolute url")}
	}
	if title == "" {
		return nil, &domain.ItemProcessingError{Link: link, Err: errors.New("missing title")}
	}

	now := u.now().UTC()
	description := strings.TrimSpace(item.Description)

	publishedAt := item.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}

	resource := &domain.Resource{
		Title:             title,
		Description:       description,
		CanonicalURL:      link,
		ImageURL:          classify.ResolveImage(sourceDisplayName, item.ImageURL),
		ContentType:       item.ContentType,
		Category:          item.Category,
		SourceDisplayName: sourceDisplayName,
		ViewCount:         item.ViewCount,
		PublishedAt:       publishedAt.UTC(),
		FetchedAt:         now,
		Tags:              classify.MergeTags(item.Tags),
		Keywords:          classify.ExtractKeywords(title, description),
		Active:            true,
	}
	if a := strings.TrimSpace(item.Author); a != "" {
		resource.Author = &a
	}
	if item.Duration != "" {
		d := item.Duration
		resource.Duration = &d
	}

	if item.Payload != nil {
		raw, err := json.Marshal(item.Payload)
		if err != nil {
			u.logger.Debug("raw payload not serializable", "url", link, "error", err)
		} else {
			resource.RawPayload = raw
		}
	}

	return resource, nil
}
