package domain

import (
	"encoding/json"
	"time"
)

// SourceOutcome is the result of ingesting a single source.
type SourceOutcome struct {
	SourceID       string        `json:"source_id"`
	DisplayName    string        `json:"display_name"`
	ItemsSeen      int           `json:"items_seen"`
	ItemsProcessed int           `json:"items_processed"`
	Created        int           `json:"created"`
	Updated        int           `json:"updated"`
	Skipped        int           `json:"skipped"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// RunOutcome aggregates one orchestration call for one content type.
type RunOutcome struct {
	ContentType ContentType     `json:"content_type"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
	ItemsSeen   int             `json:"items_seen"`
	Created     int             `json:"created"`
	Updated     int             `json:"updated"`
	Skipped     int             `json:"skipped"`
	Sources     []SourceOutcome `json:"sources"`
	Errors      []string        `json:"errors"`
	Success     bool            `json:"success"`
}

func NewRunOutcome(ct ContentType, startedAt time.Time) *RunOutcome {
	return &RunOutcome{
		ContentType: ct,
		StartedAt:   startedAt,
		Sources:     []SourceOutcome{},
		Errors:      []string{},
	}
}

// Add folds a source outcome into the run totals.
func (o *RunOutcome) Add(so SourceOutcome) {
	o.Sources = append(o.Sources, so)
	o.ItemsSeen += so.ItemsSeen
	o.Created += so.Created
	o.Updated += so.Updated
	o.Skipped += so.Skipped
}

// Finish stamps the duration and derives the success flag.
func (o *RunOutcome) Finish(now time.Time) {
	o.Duration = now.Sub(o.StartedAt)
	o.Success = len(o.Errors) == 0
}

type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
)

// SchedulerState is the in-memory bookkeeping owned by the scheduler.
type SchedulerState struct {
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus    RunStatus  `json:"last_run_status"`
	LastRunError     *string    `json:"last_run_error,omitempty"`
	NextDueAt        time.Time  `json:"next_due_at"`
	TotalRuns        int        `json:"total_runs"`
	SuccessfulRuns   int        `json:"successful_runs"`
	FailedRuns       int        `json:"failed_runs"`
	LastVideoRunAt   *time.Time `json:"last_video_run_at,omitempty"`
	LastArticleRunAt *time.Time `json:"last_article_run_at,omitempty"`
	Running          bool       `json:"running"`
}

// RunRecord is the append-only audit entry written after every scheduler run.
type RunRecord struct {
	ID         string                      `json:"id"`
	Trigger    RunTrigger                  `json:"trigger"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Status     RunStatus                   `json:"status"`
	Error      *string                     `json:"error,omitempty"`
	Outcomes   map[ContentType]*RunOutcome `json:"outcomes"`
}

func (r *RunRecord) OutcomesJSON() (json.RawMessage, error) {
	return json.Marshal(r.Outcomes)
}

type ContentStatus string

const (
	ContentHealthy ContentStatus = "healthy"
	ContentStale   ContentStatus = "stale"
	ContentNever   ContentStatus = "never"
)

// Health is the scheduler's view of freshness. Hour values are nil when there
// is nothing to measure from.
type Health struct {
	IsHealthy         bool          `json:"is_healthy"`
	HoursSinceLastRun *float64      `json:"hours_since_last_run"`
	HoursUntilNext    float64       `json:"hours_until_next"`
	VideoStatus       ContentStatus `json:"video_status"`
	ArticleStatus     ContentStatus `json:"article_status"`
}
