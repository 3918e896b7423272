package streams

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spacesedan/commentguard/internal/models"
)

type EventPublisher interface {
	Publish(ctx context.Context, evt models.Event) error
}

// Processor turns comment table changes into events: a comment that became
// blocked and a reply that became recorded. Events carry ids only.
type Processor struct {
	events EventPublisher
}

func NewProcessor(events EventPublisher) *Processor {
	return &Processor{events: events}
}

// HandleBatch processes a stream batch in order and fails on the first record
// that cannot be handled, so the batch is retried.
func (p *Processor) HandleBatch(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := p.ProcessRecord(ctx, record); err != nil {
			slog.Error("[Streams] Failed to process record, failing batch",
				slog.String("event_id", record.EventID),
				slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

func (p *Processor) ProcessRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != string(events.DynamoDBOperationTypeInsert) &&
		record.EventName != string(events.DynamoDBOperationTypeModify) {
		return nil
	}

	var current models.Comment
	if err := UnmarshalImage(record.Change.NewImage, &current); err != nil {
		return fmt.Errorf("[Streams] decode new image %s: %w", record.EventID, err)
	}

	var previous models.Comment
	if len(record.Change.OldImage) > 0 {
		if err := UnmarshalImage(record.Change.OldImage, &previous); err != nil {
			return fmt.Errorf("[Streams] decode old image %s: %w", record.EventID, err)
		}
	}

	for _, evt := range changes(&previous, &current) {
		if err := p.events.Publish(ctx, evt); err != nil {
			return fmt.Errorf("[Streams] publish %s for %s: %w", evt.Type, current.ID, err)
		}
		slog.Debug("[Streams] Published change event",
			slog.String("type", evt.Type),
			slog.String("comment_id", current.ID))
	}
	return nil
}

func changes(previous, current *models.Comment) []models.Event {
	var out []models.Event
	if current.Blocked && !previous.Blocked {
		out = append(out, models.Event{
			Type:       models.EventCommentBlocked,
			Key:        current.ID,
			OccurredAt: current.AnalyzedAt,
			CommentID:  current.ID,
		})
	}
	if current.Replied() && !previous.Replied() {
		out = append(out, models.Event{
			Type:       models.EventReplyRecorded,
			Key:        current.ID,
			OccurredAt: *current.ReplyPostedAt,
			CommentID:  current.ID,
		})
	}
	return out
}
