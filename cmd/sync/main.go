package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacesedan/commentguard/internal/app"
)

// One sync run per invocation, for cron or manual use.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := app.Bootstrap()
	if err != nil {
		slog.Error("[Sync] Failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("[Sync] Failed to initialize pipeline", slog.String("error", err.Error()))
		return 1
	}
	defer a.Close()

	result, err := a.Orchestrator.RunScheduled(ctx)
	if err != nil {
		slog.Error("[Sync] Run failed", slog.String("error", err.Error()))
		return 1
	}

	slog.Info("[Sync] Run finished",
		slog.String("run_id", result.ID),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("untouched", result.Untouched),
		slog.Bool("timed_out", result.TimedOut))
	return 0
}
