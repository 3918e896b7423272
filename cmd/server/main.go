package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spacesedan/commentguard/internal/api"
	"github.com/spacesedan/commentguard/internal/app"
	"github.com/spacesedan/commentguard/internal/monitoring"
)

func main() {
	cfg, err := app.Bootstrap()
	if err != nil {
		slog.Error("[Main] Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("[Main] Failed to initialize pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	health := monitoring.NewHealth("classifier")
	go health.Monitor(ctx, a.Classifier, monitoring.HEALTHCHECK_INTERVAL)
	go a.Orchestrator.Schedule(ctx, cfg.Sync.Interval)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.NewHandler(a.Summary, a.Replies, a.Orchestrator, health))
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("[Main] HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[Main] HTTP server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("[Main] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sync.GracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("[Main] HTTP server shutdown failed", slog.String("error", err.Error()))
	}
	slog.Info("[Main] Shutdown complete")
}
