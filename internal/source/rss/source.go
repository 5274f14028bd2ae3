package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"fantasy_ingest/internal/classify"
	"fantasy_ingest/internal/domain"
)

const httpPrefix = "http"

// Config holds feed fetching configuration.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Fetcher downloads and parses RSS/Atom feeds.
type Fetcher struct {
	client         *resty.Client
	parser         *gofeed.Parser
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Fetcher {
	client := resty.New()
	client.SetTimeout(cfg.Timeout)

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Fetcher{
		client:         client,
		parser:         gofeed.NewParser(),
		userAgent:      cfg.UserAgent,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("fetcher", "rss"),
	}
}

func (f *Fetcher) ContentType() domain.ContentType {
	return domain.ContentTypeArticle
}

// Fetch downloads the feed at source.Identifier and maps up to PerRunLimit entries.
func (f *Fetcher) Fetch(ctx context.Context, source domain.Source) ([]domain.RawItem, error) {
	logger := f.logger.With("source", source.ID)

	body, err := f.download(ctx, logger, source.Identifier)
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := feed.Items
	if source.PerRunLimit > 0 && len(entries) > source.PerRunLimit {
		entries = entries[:source.PerRunLimit]
	}

	items := make([]domain.RawItem, 0, len(entries))
	for _, entry := range entries {
		item, ok := f.transform(entry, source)
		if !ok {
			logger.Debug("skipping feed entry without link or title", "guid", entry.GUID)
			continue
		}
		items = append(items, item)
	}

	logger.Debug("fetched feed", "entries", len(feed.Items), "items", len(items))
	return items, nil
}

func (f *Fetcher) download(ctx context.Context, logger *slog.Logger, feedURL string) (string, error) {
	var err error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		var body string
		var retryable bool
		body, retryable, err = f.doRequest(ctx, feedURL)
		if err == nil {
			return body, nil
		}

		if !retryable || attempt == f.maxAttempts {
			break
		}

		backoff := f.calculateBackoff(attempt)
		logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", err
}

func (f *Fetcher) doRequest(ctx context.Context, feedURL string) (string, bool, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", f.userAgent).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8").
		Get(feedURL)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("execute request: %w", err)
	}

	if status := resp.StatusCode(); status != http.StatusOK {
		retryable := status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
		return "", retryable, fmt.Errorf("unexpected status: %d", status)
	}

	return string(resp.Body()), false, nil
}

func (f *Fetcher) calculateBackoff(attempt int) time.Duration {
	backoff := f.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if f.maxBackoff > 0 && backoff > f.maxBackoff {
		backoff = f.maxBackoff
	}
	return backoff
}

func (f *Fetcher) transform(entry *gofeed.Item, source domain.Source) (domain.RawItem, bool) {
	link := extractLink(entry)
	title := strings.TrimSpace(entry.Title)
	if link == "" || title == "" {
		return domain.RawItem{}, false
	}

	html := entry.Description
	if html == "" {
		html = entry.Content
	}
	description := plainText(html)

	item := domain.RawItem{
		ContentType: domain.ContentTypeArticle,
		Title:       title,
		Description: description,
		Link:        link,
		ImageURL:    extractImage(entry, link),
		Author:      extractAuthor(entry),
		Payload:     entry,
	}

	switch {
	case entry.PublishedParsed != nil:
		item.PublishedAt = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		item.PublishedAt = *entry.UpdatedParsed
	}

	if source.Category != nil {
		item.Category = *source.Category
	} else {
		item.Category = classify.ArticleRules.Classify(title + " " + description)
	}
	item.Tags = classify.MergeTags(
		classify.ExtractTags(title, description),
		classify.ExtractTags(strings.Join(entry.Categories, " "), ""),
	)

	return item, true
}

// extractLink prefers the explicit link, falling back to the GUID when it
// looks like an HTTP URL.
func extractLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	if guid := strings.TrimSpace(entry.GUID); strings.HasPrefix(guid, httpPrefix) {
		return guid
	}
	return ""
}

func extractAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}
