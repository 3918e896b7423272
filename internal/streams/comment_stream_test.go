package streams

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spacesedan/commentguard/internal/models"
)

type recordingEvents struct {
	events []models.Event
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, evt models.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, evt)
	return nil
}

func image(id string, blocked bool, repliedAt string) map[string]events.DynamoDBAttributeValue {
	img := map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"category":       events.NewStringAttribute("toxic"),
		"published_at":   events.NewStringAttribute("2026-05-01T12:00:00Z"),
		"analyzed_at":    events.NewStringAttribute("2026-05-01T12:05:00Z"),
		"toxicity_score": events.NewNumberAttribute("0.91"),
		"published_ts":   events.NewNumberAttribute("1777636800000"),
		"blocked":        events.NewBooleanAttribute(blocked),
		"needs_reply":    events.NewBooleanAttribute(false),
	}
	if repliedAt != "" {
		img["reply_posted_at"] = events.NewStringAttribute(repliedAt)
		img["category"] = events.NewStringAttribute("question")
	}
	return img
}

func record(name string, oldImage, newImage map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   name + "-1",
		EventName: name,
		Change: events.DynamoDBStreamRecord{
			OldImage: oldImage,
			NewImage: newImage,
		},
	}
}

func TestBlockedInsertPublishes(t *testing.T) {
	t.Parallel()
	rec := &recordingEvents{}
	p := NewProcessor(rec)

	err := p.HandleBatch(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", nil, image("t1", true, "")),
	}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Type != models.EventCommentBlocked || rec.events[0].CommentID != "t1" {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
	if rec.events[0].OccurredAt.IsZero() {
		t.Fatalf("event should carry the analysis time")
	}
}

func TestReplyRecordedOnModify(t *testing.T) {
	t.Parallel()
	rec := &recordingEvents{}
	p := NewProcessor(rec)

	err := p.ProcessRecord(context.Background(),
		record("MODIFY", image("q1", false, ""), image("q1", false, "2026-05-02T08:00:00Z")))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Type != models.EventReplyRecorded {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
}

func TestUnchangedAndRemovedRecordsAreIgnored(t *testing.T) {
	t.Parallel()
	rec := &recordingEvents{}
	p := NewProcessor(rec)

	records := []events.DynamoDBEventRecord{
		record("MODIFY", image("t1", true, ""), image("t1", true, "")),
		record("REMOVE", image("t2", true, ""), nil),
		record("INSERT", nil, image("p1", false, "")),
	}
	if err := p.HandleBatch(context.Background(), events.DynamoDBEvent{Records: records}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no events, got %+v", rec.events)
	}
}

func TestPublishFailureFailsBatch(t *testing.T) {
	t.Parallel()
	rec := &recordingEvents{err: errors.New("broker down")}
	p := NewProcessor(rec)

	err := p.HandleBatch(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", nil, image("t1", true, "")),
	}})
	if err == nil {
		t.Fatalf("expected batch failure")
	}
}
