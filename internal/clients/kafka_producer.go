package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
)

// KafkaPublisher publishes pipeline events (run summaries, reply
// reconciliation discrepancies) transactionally, one event per transaction.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	mu       sync.Mutex
}

func NewKafkaPublisher(ctx context.Context, cfg config.KafkaConfig) (*KafkaPublisher, error) {
	slog.Info("[KafkaClient] Initializing Kafka Producer...")

	host, _ := os.Hostname()
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Broker,
		"security.protocol":                     "PLAINTEXT",
		"api.version.request":                   "true",
		"enable.idempotence":                    true,
		"acks":                                  "all",
		"max.in.flight.requests.per.connection": 1,
		"transactional.id":                      KAFKA_TRANSACTION_ID + "-" + host,
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] Failed to create producer: %w", err)
	}

	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("[KafkaClient] Failed to init transactions: %w", err)
	}

	slog.Info("[KafkaClient] Kafka Producer initialized successfully",
		slog.String("topic", cfg.Topic))
	return &KafkaPublisher{producer: p, topic: cfg.Topic}, nil
}

func (kp *KafkaPublisher) Close() {
	slog.Info("[KafkaClient] Shutting down Kafka producer...")
	if remaining := kp.producer.Flush(5000); remaining > 0 {
		slog.Warn("[KafkaClient] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	kp.producer.Close()
	slog.Info("[KafkaClient] Kafka producer shut down")
}

// Publish sends evt keyed by evt.Key. Transactions are serialized because a
// transactional producer allows one open transaction at a time.
func (kp *KafkaPublisher) Publish(ctx context.Context, evt models.Event) error {
	jsonData, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("[KafkaClient] failed to marshal event: %w", err)
	}

	kp.mu.Lock()
	defer kp.mu.Unlock()

	if err := kp.producer.BeginTransaction(); err != nil {
		return fmt.Errorf("[KafkaClient] failed to begin transaction: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(evt.Key),
		Value:          jsonData,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(evt.Type)}},
	}

	backoff := INITIAL_BACKOFF
	for i := 0; i < MAX_RETRIES; i++ {
		err = kp.producer.Produce(msg, nil)
		if err == nil {
			break
		}
		slog.Warn("[KafkaClient] Failed to produce message, retrying...",
			slog.Int("attempt", i+1),
			slog.Duration("backoff", backoff))
		if i < MAX_RETRIES-1 {
			backoff = sleepBackoff(backoff)
		}
	}
	if err != nil {
		if abortErr := kp.producer.AbortTransaction(ctx); abortErr != nil {
			return fmt.Errorf("[KafkaClient] failed to abort transaction after produce error: %w", abortErr)
		}
		return fmt.Errorf("[KafkaClient] failed to produce event: %w", err)
	}

	var commitErr error
	backoff = INITIAL_BACKOFF
	for i := 0; i < MAX_RETRIES; i++ {
		commitErr = kp.producer.CommitTransaction(ctx)
		if commitErr == nil {
			break
		}
		slog.Warn("[KafkaClient] Failed to commit transaction, retrying...",
			slog.Int("attempt", i+1),
			slog.Duration("backoff", backoff))
		if i < MAX_RETRIES-1 {
			backoff = sleepBackoff(backoff)
		}
	}
	if commitErr != nil {
		if abortErr := kp.producer.AbortTransaction(ctx); abortErr != nil {
			slog.Error("[KafkaClient] Failed to abort transaction after commit error",
				slog.String("error", abortErr.Error()))
		}
		return fmt.Errorf("[KafkaClient] failed to commit transaction after %d attempts: %w", MAX_RETRIES, commitErr)
	}

	slog.Info("[KafkaClient] Published event",
		slog.String("type", evt.Type),
		slog.String("key", evt.Key))
	return nil
}

// LogPublisher stands in for Kafka when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, evt models.Event) error {
	attrs := []any{
		slog.String("type", evt.Type),
		slog.String("key", evt.Key),
	}
	if evt.Error != "" {
		attrs = append(attrs, slog.String("error", evt.Error))
	}
	if evt.Type == models.EventReplyUnrecorded || evt.Type == models.EventSyncFailed {
		slog.Error("[Events] Pipeline event", attrs...)
		return nil
	}
	slog.Info("[Events] Pipeline event", attrs...)
	return nil
}
