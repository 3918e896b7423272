package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/classifier"
	"github.com/spacesedan/commentguard/internal/clients"
	"github.com/spacesedan/commentguard/internal/db"
	"github.com/spacesedan/commentguard/internal/logging"
	"github.com/spacesedan/commentguard/internal/moderation"
	"github.com/spacesedan/commentguard/internal/processing"
	"github.com/spacesedan/commentguard/internal/reply"
	"github.com/spacesedan/commentguard/internal/summary"
)

const kafkaInitAttempts = 5

// App holds the wired pipeline shared by every entry point.
type App struct {
	Config       *config.Config
	Store        db.Store
	Source       *clients.YouTubeClient
	Classifier   *classifier.Client
	Orchestrator *processing.Orchestrator
	Replies      *reply.Service
	Summary      *summary.Service
	Events       processing.EventPublisher

	closers []func()
}

// Bootstrap loads the environment and configuration and installs the logger.
// APP_ENV selects the .env file, CONFIG_PATH the YAML settings.
func Bootstrap() (*config.Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	config.LoadEnv(env)

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(cfg.LogLevel)
	slog.Info("[App] Configuration loaded",
		slog.String("env", env),
		slog.String("config", path))
	return cfg, nil
}

// New connects every adapter. Valkey and Kafka are optional: an empty address
// or an unreachable server leaves the pipeline running without them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	dynamo, err := clients.NewDynamoDBClient(ctx, cfg.DynamoDB)
	if err != nil {
		return nil, err
	}
	if cfg.DynamoDB.Endpoint != "" {
		if err := db.EnsureTable(ctx, dynamo, cfg.DynamoDB.Table); err != nil {
			return nil, err
		}
	}
	a.Store = db.NewCommentStore(dynamo, cfg.DynamoDB.Table)

	a.Source, err = clients.NewYouTubeClient(ctx, cfg.YouTube)
	if err != nil {
		return nil, err
	}

	classifierClient, closeClassifier, err := classifier.NewFromConfig(ctx, cfg.Classifier, cfg.Moderation)
	if err != nil {
		return nil, err
	}
	a.Classifier = classifierClient
	a.closers = append(a.closers, func() {
		if err := closeClassifier(); err != nil {
			slog.Warn("[App] Failed to close classifier", slog.String("error", err.Error()))
		}
	})

	var cache processing.ProcessedCache
	if cfg.Valkey.Address != "" {
		vc, err := clients.NewValkeyClient(ctx, cfg.Valkey)
		if err != nil {
			slog.Warn("[App] Valkey unavailable, running without processed-id cache",
				slog.String("error", err.Error()))
		} else {
			cache = vc
			a.closers = append(a.closers, vc.Close)
		}
	}

	a.Events = clients.LogPublisher{}
	if cfg.Kafka.Broker != "" {
		publisher, err := connectKafka(ctx, cfg.Kafka)
		if err != nil {
			slog.Warn("[App] Kafka unavailable, logging events instead",
				slog.String("error", err.Error()))
		} else {
			a.Events = publisher
			a.closers = append(a.closers, publisher.Close)
		}
	}

	a.Orchestrator = processing.NewOrchestrator(processing.Deps{
		Source:     a.Source,
		Classifier: a.Classifier,
		Engine:     moderation.NewEngineFromConfig(cfg.Moderation),
		Store:      a.Store,
		Cache:      cache,
		Events:     a.Events,
	}, processing.OptionsFromConfig(cfg))
	a.Replies = reply.NewService(a.Store, a.Classifier, a.Source, a.Events)
	a.Summary = summary.NewService(a.Store)

	return a, nil
}

func connectKafka(ctx context.Context, cfg config.KafkaConfig) (*clients.KafkaPublisher, error) {
	var lastErr error
	for attempt := 1; attempt <= kafkaInitAttempts; attempt++ {
		publisher, err := clients.NewKafkaPublisher(ctx, cfg)
		if err == nil {
			return publisher, nil
		}
		lastErr = err
		slog.Warn("[App] Kafka init failed, retrying...",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return nil, fmt.Errorf("[App] kafka unavailable after %d attempts: %w", kafkaInitAttempts, lastErr)
}

// Close releases adapters in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
