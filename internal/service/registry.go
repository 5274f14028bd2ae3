package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fantasy_ingest/internal/domain"
)

// Registry is the access layer over the persisted source catalog.
type Registry struct {
	sources   SourceStore
	txManager TransactionManager
	logger    *slog.Logger
	now       func() time.Time
}

func NewRegistry(sources SourceStore, txManager TransactionManager, logger *slog.Logger) *Registry {
	return &Registry{
		sources:   sources,
		txManager: txManager,
		logger:    logger.With("component", "registry"),
		now:       time.Now,
	}
}

func (r *Registry) List(ctx context.Context) ([]domain.Source, error) {
	return r.sources.List(ctx)
}

func (r *Registry) ListEnabled(ctx context.Context, contentType *domain.ContentType) ([]domain.Source, error) {
	return r.sources.ListEnabled(ctx, contentType)
}

// GetByID returns domain.ErrNotFound when no source has the id.
func (r *Registry) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	return r.sources.GetByID(ctx, id)
}

func (r *Registry) Create(ctx context.Context, spec domain.SourceSpec) (*domain.Source, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if err := r.ensureUniqueIdentifier(ctx, spec.Identifier, ""); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	source := &domain.Source{
		ID:          uuid.NewString(),
		ContentType: spec.ContentType,
		Identifier:  spec.Identifier,
		DisplayName: spec.DisplayName,
		Enabled:     enabled,
		Category:    spec.Category,
		PerRunLimit: spec.PerRunLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.sources.Insert(ctx, source); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, duplicateIdentifier(spec.Identifier)
		}
		return nil, fmt.Errorf("insert source: %w", err)
	}

	r.logger.Info("source created",
		"source_id", source.ID,
		"content_type", source.ContentType,
		"identifier", source.Identifier,
	)

	return source, nil
}

func (r *Registry) Update(ctx context.Context, id string, patch domain.SourcePatch) (*domain.Source, error) {
	current, err := r.sources.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := patch.Apply(*current)
	if err != nil {
		return nil, err
	}

	if updated.Identifier != current.Identifier {
		if err := r.ensureUniqueIdentifier(ctx, updated.Identifier, id); err != nil {
			return nil, err
		}
	}

	updated.UpdatedAt = r.now().UTC()
	if err := r.sources.Update(ctx, &updated); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, duplicateIdentifier(updated.Identifier)
		}
		return nil, fmt.Errorf("update source: %w", err)
	}

	return &updated, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.sources.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("source deleted", "source_id", id)
	return nil
}

// RecordRunOutcome stamps the health fields of a source after an ingestion attempt.
func (r *Registry) RecordRunOutcome(ctx context.Context, id string, success bool, itemsProcessed int, errMsg string) error {
	now := r.now().UTC()
	if success {
		if err := r.sources.RecordSuccess(ctx, id, itemsProcessed, now); err != nil {
			return &domain.PersistenceError{Op: "record source success", Err: err}
		}
		return nil
	}

	if errMsg == "" {
		errMsg = "unknown error"
	}
	if err := r.sources.RecordFailure(ctx, id, errMsg, now); err != nil {
		return &domain.PersistenceError{Op: "record source failure", Err: err}
	}
	return nil
}

// ListNeedingAttention returns enabled sources that never succeeded, are
// currently erroring, or whose last success is older than the threshold.
func (r *Registry) ListNeedingAttention(ctx context.Context, staleThresholdHours int) ([]domain.Source, error) {
	return r.sources.ListNeedingAttention(ctx, r.staleBefore(staleThresholdHours))
}

func (r *Registry) Stats(ctx context.Context, staleThresholdHours int) (*domain.SourceStats, error) {
	return r.sources.Stats(ctx, r.staleBefore(staleThresholdHours))
}

// SeedResult reports what a bulk seed did.
type SeedResult struct {
	Created []domain.Source `json:"created"`
	Skipped []string        `json:"skipped"`
}

// Seed validates every entry up front and then creates the missing sources in a
// single transaction. Specs whose identifier already exists are skipped.
func (r *Registry) Seed(ctx context.Context, specs []domain.SourceSpec) (*SeedResult, error) {
	normalized := make([]domain.SourceSpec, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		spec = spec.Normalize()
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		if _, dup := seen[spec.Identifier]; dup {
			return nil, fmt.Errorf("seed entry %d: %w", i, duplicateIdentifier(spec.Identifier))
		}
		seen[spec.Identifier] = struct{}{}
		normalized = append(normalized, spec)
	}

	result := &SeedResult{Created: []domain.Source{}, Skipped: []string{}}
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, spec := range normalized {
			existing, err := r.sources.GetByIdentifier(txCtx, spec.Identifier)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("lookup %s: %w", spec.Identifier, err)
			}
			if existing != nil {
				result.Skipped = append(result.Skipped, spec.Identifier)
				continue
			}

			now := r.now().UTC()
			enabled := true
			if spec.Enabled != nil {
				enabled = *spec.Enabled
			}
			source := domain.Source{
				ID:          uuid.NewString(),
				ContentType: spec.ContentType,
				Identifier:  spec.Identifier,
				DisplayName: spec.DisplayName,
				Enabled:     enabled,
				Category:    spec.Category,
				PerRunLimit: spec.PerRunLimit,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := r.sources.Insert(txCtx, &source); err != nil {
				return fmt.Errorf("insert %s: %w", spec.Identifier, err)
			}
			result.Created = append(result.Created, source)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("sources seeded", "created", len(result.Created), "skipped", len(result.Skipped))
	return result, nil
}

func (r *Registry) ensureUniqueIdentifier(ctx context.Context, identifier, selfID string) error {
	existing, err := r.sources.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup identifier: %w", err)
	}
	if existing != nil && existing.ID != selfID {
		return duplicateIdentifier(identifier)
	}
	return nil
}

func (r *Registry) staleBefore(hours int) time.Time {
	return r.now().UTC().Add(-time.Duration(hours) * time.Hour)
}

func duplicateIdentifier(identifier string) error {
	return &domain.ValidationError{Field: "identifier", Message: fmt.Sprintf("%q is already registered", identifier)}
}
