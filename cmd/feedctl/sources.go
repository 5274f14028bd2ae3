package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fantasy_ingest/internal/domain"
)

func newSourcesCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the source registry",
	}
	cmd.AddCommand(
		newSourcesListCommand(c),
		newSourcesAddCommand(c),
		newSourcesSetEnabledCommand(c, "enable", true),
		newSourcesSetEnabledCommand(c, "disable", false),
		newSourcesDeleteCommand(c),
		newSourcesSeedCommand(c),
	)
	return cmd
}

func newSourcesListCommand(c *cli) *cobra.Command {
	var (
		contentType string
		attention   bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var (
				sources []domain.Source
				err     error
			)
			switch {
			case attention:
				sources, err = c.app.Registry.ListNeedingAttention(ctx, c.cfg.Ingest.StaleHours)
			case contentType != "":
				ct, perr := domain.ParseContentType(contentType)
				if perr != nil {
					return perr
				}
				sources, err = c.app.Registry.ListEnabled(ctx, &ct)
			default:
				sources, err = c.app.Registry.List(ctx)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return c.printJSON(sources)
			}
			renderSources(c.out, sources, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVarP(&contentType, "type", "t", "", "only enabled sources of this content type")
	cmd.Flags().BoolVar(&attention, "attention", false, "only sources that are erroring, stale or never succeeded")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func renderSources(w io.Writer, sources []domain.Source, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Type", "Name", "Identifier", "Enabled", "Limit", "Last Success", "Errors", "Last Error"})

	for _, s := range sources {
		lastSuccess := "never"
		if s.LastSuccessAt != nil {
			lastSuccess = now.Sub(*s.LastSuccessAt).Truncate(time.Minute).String() + " ago"
		}
		lastError := ""
		if s.LastError != nil {
			lastError = truncate(*s.LastError, 60)
		}
		t.AppendRow(table.Row{
			s.ID,
			s.ContentType,
			s.DisplayName,
			s.Identifier,
			s.Enabled,
			s.PerRunLimit,
			lastSuccess,
			s.ConsecutiveErrorCount,
			lastError,
		})
	}

	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d sources", len(sources))})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newSourcesAddCommand(c *cli) *cobra.Command {
	var (
		spec        domain.SourceSpec
		contentType string
		category    string
		disabled    bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ct, err := domain.ParseContentType(contentType)
			if err != nil {
				return err
			}
			spec.ContentType = ct
			if category != "" {
				spec.Category = &category
			}
			if disabled {
				enabled := false
				spec.Enabled = &enabled
			}

			src, err := c.app.Registry.Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return c.printJSON(src)
		},
	}

	cmd.Flags().StringVarP(&contentType, "type", "t", "", "content type: video or article")
	cmd.Flags().StringVar(&spec.Identifier, "identifier", "", "channel id or feed URL")
	cmd.Flags().StringVar(&spec.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&category, "category", "", "fixed category for every item")
	cmd.Flags().IntVar(&spec.PerRunLimit, "limit", domain.DefaultPerRunLimit, "items fetched per run")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the source disabled")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSourcesSetEnabledCommand(c *cli, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("%s a source", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := c.app.Registry.Update(cmd.Context(), args[0], domain.SourcePatch{Enabled: &enabled})
			if err != nil {
				return err
			}
			return c.printJSON(src)
		},
	}
}

func newSourcesDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Registry.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "deleted %s\n", args[0])
			return nil
		},
	}
}

func newSourcesSeedCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create every source in a seed file that is not registered yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readSeedFile(args[0])
			if err != nil {
				return err
			}

			result, err := c.app.Registry.Seed(cmd.Context(), specs)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "created %d, skipped %d existing\n", len(result.Created), len(result.Skipped))
			return nil
		},
	}
}

type seedFile struct {
	Sources []domain.SourceSpec `yaml:"sources"`
}

func readSeedFile(path string) ([]domain.SourceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) ([]domain.SourceSpec, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("seed file has no sources")
	}
	return f.Sources, nil
}
