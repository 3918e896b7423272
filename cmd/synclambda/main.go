package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spacesedan/commentguard/internal/app"
)

var pipeline *app.App

// init runs once per cold start; warm invocations reuse the adapters.
func init() {
	cfg, err := app.Bootstrap()
	if err != nil {
		panic(fmt.Sprintf("load configuration: %v", err))
	}
	pipeline, err = app.New(context.Background(), cfg)
	if err != nil {
		panic(fmt.Sprintf("initialize pipeline: %v", err))
	}
	slog.Info("[SyncLambda] Cold start complete")
}

// HandleRequest runs one sync cycle per EventBridge scheduled event. A
// returned error marks the invocation failed so the platform can alert on it.
func HandleRequest(ctx context.Context, event events.CloudWatchEvent) (map[string]any, error) {
	slog.Info("[SyncLambda] Scheduled trigger received",
		slog.String("event_id", event.ID),
		slog.String("source", event.Source))

	run, err := pipeline.Orchestrator.RunScheduled(ctx)
	if err != nil {
		return nil, fmt.Errorf("[SyncLambda] sync run failed: %w", err)
	}
	return map[string]any{
		"run_id":    run.ID,
		"created":   run.Created,
		"updated":   run.Updated,
		"failed":    run.Failed,
		"untouched": run.Untouched,
		"timed_out": run.TimedOut,
	}, nil
}

func main() {
	lambda.Start(HandleRequest)
}
