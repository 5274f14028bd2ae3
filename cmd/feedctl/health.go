package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"fantasy_ingest/internal/domain"
)

func newHealthCommand(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show registry stats and the most recent runs from the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			stats, err := c.app.Registry.Stats(ctx, c.cfg.Ingest.StaleHours)
			if err != nil {
				return err
			}
			runs, err := c.app.RunLog.Recent(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "sources: %d total, %d enabled, %d erroring, %d stale, %d never succeeded\n",
				stats.Total, stats.Enabled, stats.Erroring, stats.Stale, stats.Never)
			renderRuns(c.out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of recent runs to show")
	return cmd
}

func renderRuns(w io.Writer, runs []domain.RunRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Started", "Trigger", "Status", "Duration", "Video", "Article", "Error"})

	for _, r := range runs {
		errText := ""
		if r.Error != nil {
			errText = truncate(*r.Error, 60)
		}
		t.AppendRow(table.Row{
			r.StartedAt.Format("2006-01-02 15:04 MST"),
			r.Trigger,
			r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(100 * time.Millisecond),
			outcomeSummary(r.Outcomes[domain.ContentTypeVideo]),
			outcomeSummary(r.Outcomes[domain.ContentTypeArticle]),
			errText,
		})
	}
	t.Render()
}

func outcomeSummary(o *domain.RunOutcome) string {
	if o == nil {
		return "-"
	}
	status := "ok"
	if !o.Success {
		status = "failed"
	}
	return fmt.Sprintf("%s +%d ~%d !%d", status, o.Created, o.Updated, o.Skipped)
}
