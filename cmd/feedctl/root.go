package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fantasy_ingest/internal/app"
	"fantasy_ingest/internal/config"
)

// cli holds what every subcommand needs once the root pre-run has connected.
type cli struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	app    *app.App
	logger *slog.Logger
	out    io.Writer
}

func newRootCommand() *cobra.Command {
	c := &cli{out: os.Stdout}

	root := &cobra.Command{
		Use:           "feedctl",
		Short:         "Operate the fantasy content ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.connect(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.app != nil {
				return c.app.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		newSourcesCommand(c),
		newRunCommand(c),
		newHealthCommand(c),
	)
	return root
}

func (c *cli) connect(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	a, err := app.Build(cmd.Context(), cfg, c.logger)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
