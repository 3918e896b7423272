package processing

import (
	"context"

	"github.com/spacesedan/commentguard/internal/models"
)

// CommentSource is the read side of the video platform plus the moderation
// and discovery calls the orchestrator makes.
type CommentSource interface {
	ListComments(ctx context.Context, videoID, pageToken string) (*models.CommentPage, error)
	SetModerationStatus(ctx context.Context, commentID string, status models.ModerationStatus) error
	RecentUploads(ctx context.Context, n int64) ([]string, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string) (*models.ClassificationResult, error)
}

// ProcessedCache remembers ids that carry a real classification. A miss is
// always safe; the store stays authoritative.
type ProcessedCache interface {
	IsProcessed(ctx context.Context, id string) bool
	MarkProcessed(ctx context.Context, id string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt models.Event) error
}
