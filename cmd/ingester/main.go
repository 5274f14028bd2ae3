package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"fantasy_ingest/internal/api"
	"fantasy_ingest/internal/app"
	"fantasy_ingest/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.Server.TriggerToken == "" {
		logger.Warn("server.trigger_token not set, ingest endpoints will reject every request")
	}

	handler := api.NewIngestHandler(a.Scheduler, a.Registry, cfg.Ingest.StaleHours, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Token:   cfg.Server.TriggerToken,
		Metrics: promhttp.HandlerFor(a.Prometheus, promhttp.HandlerOpts{}),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting fantasy ingester",
		"addr", cfg.Server.Addr,
		"target_hour", cfg.Schedule.Hour(),
		"timezone", cfg.Schedule.Timezone,
		"concurrency", cfg.Ingest.Concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Scheduler.Start(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingester stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("ingester stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
