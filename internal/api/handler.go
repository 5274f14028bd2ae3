package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fantasy_ingest/internal/domain"
	"fantasy_ingest/internal/scheduler"
)

type Scheduler interface {
	Health() domain.Health
	State() domain.SchedulerState
	RunDaily(ctx context.Context) (*domain.RunRecord, error)
	TriggerManual(ctx context.Context) (*domain.RunRecord, error)
	RunStale(ctx context.Context, staleThresholdHours int) (map[domain.ContentType]*domain.RunOutcome, error)
}

type Registry interface {
	Stats(ctx context.Context, staleThresholdHours int) (*domain.SourceStats, error)
}

type IngestHandler struct {
	scheduler  Scheduler
	registry   Registry
	staleHours int
	logger     *slog.Logger
}

func NewIngestHandler(sched Scheduler, registry Registry, staleHours int, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		scheduler:  sched,
		registry:   registry,
		staleHours: staleHours,
		logger:     logger.With("component", "api"),
	}
}

// runContext keeps request values but outlives the request: a client that
// disconnects must not abort a run that already started.
func runContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// Health reports freshness plus registry stats. A critical verdict answers 503
// so uptime checks can alert on it directly.
func (h *IngestHandler) Health(c *gin.Context) {
	stats, err := h.registry.Stats(c.Request.Context(), h.staleHours)
	if err != nil {
		h.logger.Error("registry stats failed", "error", err)
		stats = nil
	}

	a := Assess(h.scheduler.Health(), stats)
	status := http.StatusOK
	if a.Verdict == VerdictCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, a)
}

func (h *IngestHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.State())
}

func (h *IngestHandler) Trigger(c *gin.Context) {
	record, err := h.scheduler.TriggerManual(runContext(c))
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Tick is the external timer entry point: it runs only when the daily run is due.
func (h *IngestHandler) Tick(c *gin.Context) {
	record, err := h.scheduler.RunDaily(runContext(c))
	if errors.Is(err, scheduler.ErrNotDue) {
		c.JSON(http.StatusAccepted, gin.H{
			"status":      "not_due",
			"next_due_at": h.scheduler.State().NextDueAt,
		})
		return
	}
	if err != nil {
		h.runError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *IngestHandler) Stale(c *gin.Context) {
	hours := h.staleHours
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
			return
		}
		hours = n
	}

	outcomes, err := h.scheduler.RunStale(runContext(c), hours)
	if err != nil {
		h.runError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stale_threshold_hours": hours,
		"outcomes":              outcomes,
	})
}

func (h *IngestHandler) runError(c *gin.Context, err error) {
	if errors.Is(err, scheduler.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("run request failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "run failed to start"})
}
