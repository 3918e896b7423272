package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spacesedan/commentguard/internal/db"
	"github.com/spacesedan/commentguard/internal/models"
)

// DefaultClaimLease bounds how long a reply attempt holds a comment.
const DefaultClaimLease = 2 * time.Minute

var ErrEmptyReply = errors.New("reply text is empty")

type Suggester interface {
	SuggestReply(ctx context.Context, mildText string) (string, error)
}

// Poster is the write path of the comment source.
type Poster interface {
	PostReply(ctx context.Context, videoID, commentID, text string) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, evt models.Event) error
}

// Service drafts and posts creator replies. Posting is guarded by a claim on
// the comment so concurrent or repeated submissions produce at most one
// platform reply.
type Service struct {
	store     db.Store
	suggester Suggester
	poster    Poster
	events    EventPublisher
	lease     time.Duration
	now       func() time.Time
}

func NewService(store db.Store, suggester Suggester, poster Poster, events EventPublisher) *Service {
	return &Service{
		store:     store,
		suggester: suggester,
		poster:    poster,
		events:    events,
		lease:     DefaultClaimLease,
		now:       time.Now,
	}
}

// Suggest drafts a reply from the comment's mild text without changing any
// state. Blocked comments get no suggestion.
func (s *Service) Suggest(ctx context.Context, id string) (string, error) {
	comment, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if comment.Blocked || !comment.Category.Listable() {
		return "", models.ErrCategoryNotListable
	}

	draft, err := s.suggester.SuggestReply(ctx, comment.MildText)
	if err != nil {
		return "", fmt.Errorf("[ReplyService] failed to suggest reply for %s: %w", id, err)
	}
	return draft, nil
}

// Post publishes text as the creator's reply to comment id. It fails with
// ErrNotFound or ErrAlreadyReplied before anything is posted. A reply that
// was posted but could not be recorded returns a ReconciliationError and is
// never re-posted automatically.
func (s *Service) Post(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyReply
	}

	if err := s.store.ClaimReply(ctx, id, s.now(), s.lease); err != nil {
		return err
	}

	comment, err := s.store.Get(ctx, id)
	if err != nil {
		s.release(id)
		return err
	}
	if comment.Blocked {
		s.release(id)
		return models.ErrCategoryNotListable
	}

	replyID, err := s.poster.PostReply(ctx, comment.VideoID, id, text)
	if err != nil {
		s.release(id)
		return fmt.Errorf("[ReplyService] failed to post reply for %s: %w", id, err)
	}

	// the reply exists on the platform now; record it even if the caller
	// has gone away
	markCtx := context.WithoutCancel(ctx)
	if err := s.store.MarkReplied(markCtx, id, s.now().UTC()); err != nil {
		recErr := &models.ReconciliationError{CommentID: id, ReplyID: replyID, Err: err}
		slog.Error("[ReplyService] Reply posted but not recorded",
			slog.String("comment_id", id),
			slog.String("reply_id", replyID),
			slog.String("error", err.Error()))
		s.publish(markCtx, models.Event{
			Type:      models.EventReplyUnrecorded,
			Key:       id,
			CommentID: id,
			ReplyID:   replyID,
			Error:     err.Error(),
		})
		return recErr
	}

	slog.Info("[ReplyService] Reply posted",
		slog.String("comment_id", id),
		slog.String("reply_id", replyID))
	return nil
}

func (s *Service) release(id string) {
	if err := s.store.ReleaseReply(context.Background(), id); err != nil {
		slog.Warn("[ReplyService] Failed to release reply claim",
			slog.String("comment_id", id),
			slog.String("error", err.Error()))
	}
}

func (s *Service) publish(ctx context.Context, evt models.Event) {
	if s.events == nil {
		return
	}
	evt.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		slog.Error("[ReplyService] Failed to publish event",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()))
	}
}
