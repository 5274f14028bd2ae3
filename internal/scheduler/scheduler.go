package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"fantasy_ingest/internal/domain"
)

// ErrNotDue is returned by RunDaily before the next due time.
var ErrNotDue = errors.New("daily run not due yet")

const freshnessWindow = 24 * time.Hour

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Orchestrator runs one content type to completion.
type Orchestrator interface {
	RunAll(ctx context.Context, contentType domain.ContentType) *domain.RunOutcome
	RunStale(ctx context.Context, contentType domain.ContentType, staleThresholdHours int) *domain.RunOutcome
}

// RunLog is the append-only audit trail.
type RunLog interface {
	Append(ctx context.Context, record *domain.RunRecord) error
}

// RunObserver is notified after every completed run.
type RunObserver interface {
	ObserveSchedulerRun(record *domain.RunRecord)
}

type Config struct {
	TargetHour int
	Location   *time.Location
	CheckSpec  string
	RunTimeout time.Duration
}

type Scheduler struct {
	orchestrator Orchestrator
	runLog       RunLog
	guard        Guard
	clock        Clock
	observer     RunObserver
	cfg          Config
	logger       *slog.Logger

	mu    sync.Mutex
	state domain.SchedulerState
}

func NewScheduler(
	orchestrator Orchestrator,
	runLog RunLog,
	guard Guard,
	clock Clock,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if guard == nil {
		guard = NewLocalGuard()
	}
	if clock == nil {
		clock = SystemClock{}
	}

	s := &Scheduler{
		orchestrator: orchestrator,
		runLog:       runLog,
		guard:        guard,
		clock:        clock,
		cfg:          cfg,
		logger:       logger.With("component", "scheduler"),
	}
	s.state = domain.SchedulerState{
		LastRunStatus: domain.RunStatusPending,
		NextDueAt:     s.NextDue(clock.Now()),
	}
	return s
}

func (s *Scheduler) SetObserver(obs RunObserver) {
	s.observer = obs
}

// NextDue returns the next target instant strictly after now, evaluated in
// the reference zone so DST shifts keep the wall-clock hour.
func (s *Scheduler) NextDue(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	target := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.TargetHour, 0, 0, 0, s.cfg.Location)
	if !local.Before(target) {
		target = time.Date(local.Year(), local.Month(), local.Day()+1, s.cfg.TargetHour, 0, 0, 0, s.cfg.Location)
	}
	return target
}

func (s *Scheduler) IsDue() bool {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return !now.Before(s.state.NextDueAt)
}

// RunDaily runs both content types when the daily run is due.
func (s *Scheduler) RunDaily(ctx context.Context) (*domain.RunRecord, error) {
	if !s.IsDue() {
		return nil, ErrNotDue
	}
	return s.run(ctx, domain.TriggerScheduled)
}

// TriggerManual runs both content types regardless of the due time.
func (s *Scheduler) TriggerManual(ctx context.Context) (*domain.RunRecord, error) {
	return s.run(ctx, domain.TriggerManual)
}

// RunStale re-ingests stale sources of every content type under the same
// run guard as the daily run. It leaves the daily bookkeeping untouched.
func (s *Scheduler) RunStale(ctx context.Context, staleThresholdHours int) (map[domain.ContentType]*domain.RunOutcome, error) {
	release, err := s.guard.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := s.logger.With("trigger", "stale", "stale_threshold_hours", staleThresholdHours)
	logger.Info("stale refresh started")

	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	outcomes := make(map[domain.ContentType]*domain.RunOutcome, 2)
	for _, ct := range domain.ContentTypes() {
		outcomes[ct] = s.guarded(ct, func() *domain.RunOutcome {
			return s.orchestrator.RunStale(runCtx, ct, staleThresholdHours)
		})
	}

	logger.Info("stale refresh finished")
	return outcomes, nil
}

// State returns a snapshot of the scheduler bookkeeping.
func (s *Scheduler) State() domain.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Health() domain.Health {
	now := s.clock.Now()
	st := s.State()

	h := domain.Health{
		VideoStatus:   contentStatus(now, st.LastVideoRunAt),
		ArticleStatus: contentStatus(now, st.LastArticleRunAt),
	}

	if until := st.NextDueAt.Sub(now).Hours(); until > 0 {
		h.HoursUntilNext = until
	}

	if st.LastRunAt != nil {
		since := now.Sub(*st.LastRunAt)
		hours := since.Hours()
		h.HoursSinceLastRun = &hours
		h.IsHealthy = since < freshnessWindow
	}

	return h
}

func contentStatus(now time.Time, last *time.Time) domain.ContentStatus {
	switch {
	case last == nil:
		return domain.ContentNever
	case now.Sub(*last) < freshnessWindow:
		return domain.ContentHealthy
	default:
		return domain.ContentStale
	}
}

func (s *Scheduler) run(ctx context.Context, trigger domain.RunTrigger) (*domain.RunRecord, error) {
	release, err := s.guard.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// A run that held the guard before us may have just completed the day.
	if trigger == domain.TriggerScheduled && !s.IsDue() {
		return nil, ErrNotDue
	}

	startedAt := s.clock.Now()
	s.mu.Lock()
	s.state.Running = true
	s.state.LastRunStatus = domain.RunStatusPending
	s.state.TotalRuns++
	s.mu.Unlock()

	logger := s.logger.With("trigger", trigger)
	logger.Info("ingestion run started")

	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	outcomes := make(map[domain.ContentType]*domain.RunOutcome, 2)
	anySuccess := false
	var failures []string
	for _, ct := range domain.ContentTypes() {
		outcome := s.runContentType(runCtx, ct)
		outcomes[ct] = outcome
		if outcome.Success {
			anySuccess = true
		} else {
			failures = append(failures, fmt.Sprintf("%s: %s", ct, strings.Join(outcome.Errors, "; ")))
		}
	}

	finishedAt := s.clock.Now()
	record := &domain.RunRecord{
		ID:         uuid.NewString(),
		Trigger:    trigger,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Outcomes:   outcomes,
	}
	if len(failures) > 0 {
		combined := strings.Join(failures, " | ")
		record.Error = &combined
	}

	s.mu.Lock()
	if anySuccess {
		record.Status = domain.RunStatusSuccess
		s.state.LastRunStatus = domain.RunStatusSuccess
		s.state.LastRunAt = &finishedAt
		s.state.LastRunError = nil
		s.state.SuccessfulRuns++
		if outcomes[domain.ContentTypeVideo].Success {
			s.state.LastVideoRunAt = &finishedAt
		}
		if outcomes[domain.ContentTypeArticle].Success {
			s.state.LastArticleRunAt = &finishedAt
		}
		s.state.NextDueAt = s.NextDue(finishedAt)
	} else {
		record.Status = domain.RunStatusFailed
		s.state.LastRunStatus = domain.RunStatusFailed
		s.state.LastRunError = record.Error
		s.state.FailedRuns++
	}
	s.state.Running = false
	nextDue := s.state.NextDueAt
	s.mu.Unlock()

	if s.runLog != nil {
		if err := s.runLog.Append(ctx, record); err != nil {
			logger.Error("append run record failed", "run_id", record.ID, "error", err)
		}
	}
	if s.observer != nil {
		s.observer.ObserveSchedulerRun(record)
	}

	logger.Info("ingestion run finished",
		"run_id", record.ID,
		"status", record.Status,
		"duration", finishedAt.Sub(startedAt),
		"next_due_at", nextDue,
	)

	return record, nil
}

func (s *Scheduler) runContentType(ctx context.Context, ct domain.ContentType) *domain.RunOutcome {
	return s.guarded(ct, func() *domain.RunOutcome {
		return s.orchestrator.RunAll(ctx, ct)
	})
}

// guarded shields the run from a panicking orchestrator.
func (s *Scheduler) guarded(ct domain.ContentType, fn func() *domain.RunOutcome) (outcome *domain.RunOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("content type run panicked", "content_type", ct, "panic", r)
			outcome = domain.NewRunOutcome(ct, s.clock.Now())
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("panic: %v", r))
			outcome.Finish(s.clock.Now())
		}
	}()

	outcome = fn()
	if outcome == nil {
		outcome = domain.NewRunOutcome(ct, s.clock.Now())
		outcome.Errors = append(outcome.Errors, "no outcome returned")
		outcome.Finish(s.clock.Now())
	}
	return outcome
}

// Start checks for a due run immediately and then on every CheckSpec tick
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	if _, err := c.AddFunc(s.cfg.CheckSpec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule check %q: %w", s.cfg.CheckSpec, err)
	}

	s.logger.Info("scheduler started",
		"check_spec", s.cfg.CheckSpec,
		"target_hour", s.cfg.TargetHour,
		"timezone", s.cfg.Location.String(),
		"next_due_at", s.State().NextDueAt,
	)

	s.tick(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	_, err := s.RunDaily(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotDue):
		s.logger.Debug("daily run not due", "next_due_at", s.State().NextDueAt)
	case errors.Is(err, ErrRunInProgress):
		s.logger.Info("skipping tick, run in progress")
	default:
		s.logger.Error("daily run failed to start", "error", err)
	}
}
