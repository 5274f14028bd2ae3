package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fantasy_ingest/internal/domain"
)

func newRunCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run ingestion now",
	}
	cmd.AddCommand(
		newRunManualCommand(c),
		newRunStaleCommand(c),
		newRunSourcesCommand(c),
	)
	return cmd
}

func newRunManualCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "manual",
		Short: "Run both content types through the scheduler, ignoring the due time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			record, err := c.app.Scheduler.TriggerManual(cmd.Context())
			if err != nil {
				return err
			}
			return c.printJSON(record)
		},
	}
}

func newRunStaleCommand(c *cli) *cobra.Command {
	var (
		hours       int
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "Re-run sources that are erroring, stale or never succeeded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, err := selectTypes(contentType)
			if err != nil {
				return err
			}
			if hours <= 0 {
				hours = c.cfg.Ingest.StaleHours
			}

			if contentType == "" {
				outcomes, err := c.app.Scheduler.RunStale(cmd.Context(), hours)
				if err != nil {
					return err
				}
				return c.printJSON(outcomes)
			}

			outcomes := make(map[domain.ContentType]*domain.RunOutcome, len(types))
			for _, ct := range types {
				outcomes[ct] = c.app.Orchestrator.RunStale(cmd.Context(), ct, hours)
			}
			return c.printJSON(outcomes)
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "staleness threshold in hours (default from config)")
	cmd.Flags().StringVarP(&contentType, "type", "t", "", "limit to one content type")
	return cmd
}

func newRunSourcesCommand(c *cli) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "sources <id>...",
		Short: "Run specific sources of one content type",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := domain.ParseContentType(contentType)
			if err != nil {
				return err
			}
			return c.printJSON(c.app.Orchestrator.RunSpecific(cmd.Context(), ct, args))
		},
	}

	cmd.Flags().StringVarP(&contentType, "type", "t", "", "content type of the listed sources")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func selectTypes(raw string) ([]domain.ContentType, error) {
	if raw == "" {
		return domain.ContentTypes(), nil
	}
	ct, err := domain.ParseContentType(raw)
	if err != nil {
		return nil, fmt.Errorf("--type: %w", err)
	}
	return []domain.ContentType{ct}, nil
}
