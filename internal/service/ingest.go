package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fantasy_ingest/internal/domain"
)

type OrchestratorConfig struct {
	FetchTimeout time.Duration
	SourceDelay  time.Duration
	Concurrency  int
}

// Observer receives per-source results. It is used for metrics.
type Observer interface {
	ObserveSource(contentType domain.ContentType, outcome domain.SourceOutcome)
	ObserveRun(outcome *domain.RunOutcome)
}

// Orchestrator runs one fetcher across a set of sources, pushes every item
// through the upserter and records per-source health in the registry.
type Orchestrator struct {
	registry SourceRegistry
	upserter ItemUpserter
	fetchers map[domain.ContentType]Fetcher
	observer Observer
	config   OrchestratorConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(
	registry SourceRegistry,
	upserter ItemUpserter,
	fetchers []Fetcher,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	byType := make(map[domain.ContentType]Fetcher, len(fetchers))
	for _, f := range fetchers {
		byType[f.ContentType()] = f
	}

	return &Orchestrator{
		registry: registry,
		upserter: upserter,
		fetchers: byType,
		config:   cfg,
		logger:   logger.With("component", "orchestrator"),
		now:      time.Now,
	}
}

// SetObserver attaches an observer; nil disables observation.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// RunAll ingests every enabled source of the content type.
func (o *Orchestrator) RunAll(ctx context.Context, contentType domain.ContentType) *domain.RunOutcome {
	outcome := domain.NewRunOutcome(contentType, o.now())

	fetcher, ok := o.fetchers[contentType]
	if !ok {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("no fetcher registered for %s", contentType))
		return o.finish(outcome)
	}

	sources, err := o.registry.ListEnabled(ctx, &contentType)
	if err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("list enabled sources: %v", err))
		return o.finish(outcome)
	}

	o.logger.Info("starting run", "content_type", contentType, "sources", len(sources))
	o.runSources(ctx, fetcher, sources, outcome)
	return o.finish(outcome)
}

// RunSpecific ingests only the named sources. Unknown, disabled or
// wrong-typed ids are reported as errors and skipped.
func (o *Orchestrator) RunSpecific(ctx context.Context, contentType domain.ContentType, sourceIDs []string) *domain.RunOutcome {
	outcome := domain.NewRunOutcome(contentType, o.now())

	fetcher, ok := o.fetchers[contentType]
	if !ok {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("no fetcher registered for %s", contentType))
		return o.finish(outcome)
	}

	sources := make([]domain.Source, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		src, err := o.registry.GetByID(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("source %s: not found", id))
			continue
		case err != nil:
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("source %s: %v", id, err))
			continue
		case !src.Enabled:
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("source %s: disabled", id))
			continue
		case src.ContentType != contentType:
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("source %s: content type %s, expected %s", id, src.ContentType, contentType))
			continue
		}
		sources = append(sources, *src)
	}

	o.runSources(ctx, fetcher, sources, outcome)
	return o.finish(outcome)
}

// RunStale re-ingests the sources of the content type that the registry
// reports as needing attention.
func (o *Orchestrator) RunStale(ctx context.Context, contentType domain.ContentType, hoursThreshold int) *domain.RunOutcome {
	sources, err := o.registry.ListNeedingAttention(ctx, hoursThreshold)
	if err != nil {
		outcome := domain.NewRunOutcome(contentType, o.now())
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("list sources needing attention: %v", err))
		return o.finish(outcome)
	}

	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.ContentType == contentType {
			ids = append(ids, s.ID)
		}
	}

	o.logger.Info("running stale sources", "content_type", contentType, "count", len(ids), "threshold_hours", hoursThreshold)
	return o.RunSpecific(ctx, contentType, ids)
}

type sourceResult struct {
	outcome domain.SourceOutcome
	errors  []string
}

func (o *Orchestrator) runSources(ctx context.Context, fetcher Fetcher, sources []domain.Source, outcome *domain.RunOutcome) {
	results := make([]sourceResult, len(sources))

	if o.config.Concurrency == 1 {
		// Sequential: the delay is the gap between one source finishing and
		// the next one starting.
		for i, src := range sources {
			if i > 0 {
				o.pause(ctx)
			}
			results[i] = o.ingestSource(ctx, fetcher, src)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.config.Concurrency)

		for i := range sources {
			if i > 0 {
				o.pause(ctx)
			}

			src := sources[i]
			g.Go(func() error {
				results[i] = o.ingestSource(ctx, fetcher, src)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, r := range results {
		outcome.Add(r.outcome)
		outcome.Errors = append(outcome.Errors, r.errors...)
		if o.observer != nil {
			o.observer.ObserveSource(outcome.ContentType, r.outcome)
		}
	}
}

// pause waits SourceDelay or until ctx is done.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.config.SourceDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.config.SourceDelay):
	}
}

func (o *Orchestrator) ingestSource(ctx context.Context, fetcher Fetcher, src domain.Source) sourceResult {
	start := o.now()
	logger := o.logger.With("source", src.ID, "source_name", src.DisplayName)
	res := sourceResult{
		outcome: domain.SourceOutcome{SourceID: src.ID, DisplayName: src.DisplayName},
	}

	items, err := o.fetch(ctx, fetcher, src)
	if err != nil {
		fetchErr := &domain.FetchError{SourceID: src.ID, Err: err}
		res.outcome.Error = fetchErr.Error()
		res.outcome.Duration = o.now().Sub(start)
		res.errors = append(res.errors, fmt.Sprintf("%s (%s): %v", src.DisplayName, src.ID, err))

		logger.Error("fetch failed", "error", err)
		o.recordOutcome(ctx, logger, src.ID, false, 0, err.Error())
		return res
	}

	res.outcome.ItemsSeen = len(items)
	for _, item := range items {
		status, err := o.upsertItem(ctx, item, src.DisplayName)
		if err != nil {
			res.outcome.Skipped++
			res.errors = append(res.errors, fmt.Sprintf("%s (%s): %v", src.DisplayName, src.ID, err))
			logger.Warn("item failed", "link", item.Link, "error", err)
			continue
		}

		switch status {
		case domain.UpsertNew:
			res.outcome.Created++
		case domain.UpsertUpdated:
			res.outcome.Updated++
		default:
			res.outcome.Skipped++
		}
	}

	res.outcome.ItemsProcessed = res.outcome.Created + res.outcome.Updated
	res.outcome.Success = true
	res.outcome.Duration = o.now().Sub(start)

	logger.Info("source completed",
		"seen", res.outcome.ItemsSeen,
		"created", res.outcome.Created,
		"updated", res.outcome.Updated,
		"skipped", res.outcome.Skipped,
		"duration", res.outcome.Duration,
	)

	o.recordOutcome(ctx, logger, src.ID, true, res.outcome.ItemsProcessed, "")
	return res
}

func (o *Orchestrator) fetch(ctx context.Context, fetcher Fetcher, src domain.Source) (items []domain.RawItem, err error) {
	fetchCtx := ctx
	if o.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, o.config.FetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("fetcher panic: %v", r)
		}
	}()

	return fetcher.Fetch(fetchCtx, src)
}

func (o *Orchestrator) upsertItem(ctx context.Context, item domain.RawItem, sourceName string) (status domain.UpsertStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = "", &domain.ItemProcessingError{Link: item.Link, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return o.upserter.Upsert(ctx, item, sourceName)
}

// recordOutcome is best effort: bookkeeping failures are logged only.
func (o *Orchestrator) recordOutcome(ctx context.Context, logger *slog.Logger, id string, success bool, processed int, msg string) {
	if err := o.registry.RecordRunOutcome(ctx, id, success, processed, msg); err != nil {
		logger.Error("record source outcome failed", "error", err)
	}
}

func (o *Orchestrator) finish(outcome *domain.RunOutcome) *domain.RunOutcome {
	outcome.Finish(o.now())
	o.logger.Info("run completed",
		"content_type", outcome.ContentType,
		"items_seen", outcome.ItemsSeen,
		"created", outcome.Created,
		"updated", outcome.Updated,
		"skipped", outcome.Skipped,
		"errors", len(outcome.Errors),
		"success", outcome.Success,
		"duration", outcome.Duration,
	)
	if o.observer != nil {
		o.observer.ObserveRun(outcome)
	}
	return outcome
}
