package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spacesedan/commentguard/internal/app"
	"github.com/spacesedan/commentguard/internal/clients"
	"github.com/spacesedan/commentguard/internal/streams"
)

// Adapters are built once per cold start and reused by warm invocations.
func main() {
	cfg, err := app.Bootstrap()
	if err != nil {
		panic(fmt.Sprintf("load configuration: %v", err))
	}

	var publisher streams.EventPublisher = clients.LogPublisher{}
	if cfg.Kafka.Broker != "" {
		kp, err := clients.NewKafkaPublisher(context.Background(), cfg.Kafka)
		if err != nil {
			panic(fmt.Sprintf("connect kafka: %v", err))
		}
		defer kp.Close()
		publisher = kp
	}

	slog.Info("[StreamHandler] Initialization complete")
	lambda.Start(streams.NewProcessor(publisher).HandleBatch)
}
