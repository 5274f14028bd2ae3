package api

import (
	"fmt"

	"fantasy_ingest/internal/domain"
)

type Verdict string

const (
	VerdictHealthy  Verdict = "healthy"
	VerdictDegraded Verdict = "degraded"
	VerdictCritical Verdict = "critical"
)

// criticalAfterHours is how long without a successful run before the
// pipeline is considered down rather than lagging.
const criticalAfterHours = 48.0

// Assessment combines scheduler freshness with registry stats. Stats may be
// nil when the registry could not be queried.
type Assessment struct {
	Verdict         Verdict             `json:"verdict"`
	Scheduler       domain.Health       `json:"scheduler"`
	Sources         *domain.SourceStats `json:"sources,omitempty"`
	Recommendations []string            `json:"recommendations"`
}

func Assess(health domain.Health, stats *domain.SourceStats) Assessment {
	a := Assessment{
		Verdict:         VerdictHealthy,
		Scheduler:       health,
		Sources:         stats,
		Recommendations: []string{},
	}

	degrade := func(to Verdict, rec string) {
		if to == VerdictCritical || a.Verdict == VerdictHealthy {
			a.Verdict = to
		}
		a.Recommendations = append(a.Recommendations, rec)
	}

	switch {
	case health.HoursSinceLastRun == nil:
		degrade(VerdictCritical, "no successful run recorded yet; trigger a manual run")
	case *health.HoursSinceLastRun >= criticalAfterHours:
		degrade(VerdictCritical, fmt.Sprintf("last successful run was %.1f hours ago; check scheduler logs", *health.HoursSinceLastRun))
	case !health.IsHealthy:
		degrade(VerdictDegraded, fmt.Sprintf("last successful run was %.1f hours ago", *health.HoursSinceLastRun))
	}

	for _, ct := range []struct {
		name   domain.ContentType
		status domain.ContentStatus
	}{
		{domain.ContentTypeVideo, health.VideoStatus},
		{domain.ContentTypeArticle, health.ArticleStatus},
	} {
		if ct.status != domain.ContentHealthy && health.HoursSinceLastRun != nil {
			degrade(VerdictDegraded, fmt.Sprintf("%s ingestion is %s; run stale ingestion for %s sources", ct.name, ct.status, ct.name))
		}
	}

	if stats == nil {
		degrade(VerdictDegraded, "source registry unavailable; check database connectivity")
		return a
	}

	if stats.Enabled == 0 {
		degrade(VerdictCritical, "no enabled sources; add or enable sources")
	}
	if stats.Erroring > 0 {
		degrade(VerdictDegraded, fmt.Sprintf("%d sources are failing; inspect their last_error", stats.Erroring))
	}
	if stats.Never > 0 {
		degrade(VerdictDegraded, fmt.Sprintf("%d enabled sources have never succeeded", stats.Never))
	}
	if stats.Stale > 0 {
		degrade(VerdictDegraded, fmt.Sprintf("%d sources have not succeeded recently", stats.Stale))
	}

	return a
}
