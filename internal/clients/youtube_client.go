package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeClient is the comment source: it pages comment threads of a video,
// posts replies and applies moderation statuses on the creator's behalf.
type YouTubeClient struct {
	service  *youtube.Service
	pageSize int64
}

// NewYouTubeClient authenticates with the creator's OAuth refresh token.
func NewYouTubeClient(ctx context.Context, cfg config.YouTubeConfig) (*YouTubeClient, error) {
	oauthConf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeForceSslScope},
	}
	ts := oauthConf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("[YouTubeClient] failed to create service: %w", err)
	}

	slog.Info("[YouTubeClient] YouTube client initialized",
		slog.Int64("page_size", cfg.PageSize))
	return NewYouTubeClientWithService(svc, cfg.PageSize), nil
}

func NewYouTubeClientWithService(svc *youtube.Service, pageSize int64) *YouTubeClient {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &YouTubeClient{service: svc, pageSize: pageSize}
}

// ListComments fetches one page of top-level comments for videoID, newest
// first. An empty NextPageToken marks the last page.
func (yc *YouTubeClient) ListComments(ctx context.Context, videoID, pageToken string) (*models.CommentPage, error) {
	call := yc.service.CommentThreads.List([]string{"snippet"}).
		VideoId(videoID).
		MaxResults(yc.pageSize).
		Order("time").
		TextFormat("plainText").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapYouTubeErr("list comments", err)
	}

	fetchedAt := time.Now().UTC()
	page := &models.CommentPage{NextPageToken: resp.NextPageToken}
	for _, thread := range resp.Items {
		if thread.Snippet == nil || thread.Snippet.TopLevelComment == nil || thread.Snippet.TopLevelComment.Snippet == nil {
			continue
		}
		top := thread.Snippet.TopLevelComment
		published, err := time.Parse(time.RFC3339, top.Snippet.PublishedAt)
		if err != nil {
			// keeps the comment in newest-first listings instead of sorting it last
			slog.Warn("[YouTubeClient] Unparseable publish time, using fetch time",
				slog.String("comment_id", top.Id),
				slog.String("published_at", top.Snippet.PublishedAt))
			published = fetchedAt
		}

		text := top.Snippet.TextOriginal
		if text == "" {
			text = top.Snippet.TextDisplay
		}
		page.Comments = append(page.Comments, models.RawComment{
			ID:          top.Id,
			VideoID:     videoID,
			AuthorName:  top.Snippet.AuthorDisplayName,
			Text:        text,
			PublishedAt: published,
		})
	}
	return page, nil
}

// PostReply publishes text as a reply to commentID and returns the reply id.
func (yc *YouTubeClient) PostReply(ctx context.Context, videoID, commentID, text string) (string, error) {
	reply, err := yc.service.Comments.Insert([]string{"snippet"}, &youtube.Comment{
		Snippet: &youtube.CommentSnippet{
			ParentId:     commentID,
			TextOriginal: text,
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", mapYouTubeErr("post reply", err)
	}

	slog.Info("[YouTubeClient] Reply posted",
		slog.String("video_id", videoID),
		slog.String("comment_id", commentID),
		slog.String("reply_id", reply.Id))
	return reply.Id, nil
}

func (yc *YouTubeClient) SetModerationStatus(ctx context.Context, commentID string, status models.ModerationStatus) error {
	err := yc.service.Comments.SetModerationStatus([]string{commentID}, string(status)).Context(ctx).Do()
	if err != nil {
		return mapYouTubeErr("set moderation status", err)
	}
	return nil
}

// RecentUploads returns the ids of the authenticated channel's n most recent
// uploads.
func (yc *YouTubeClient) RecentUploads(ctx context.Context, n int64) ([]string, error) {
	channels, err := yc.service.Channels.List([]string{"contentDetails"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, mapYouTubeErr("list channels", err)
	}
	if len(channels.Items) == 0 || channels.Items[0].ContentDetails == nil || channels.Items[0].ContentDetails.RelatedPlaylists == nil {
		return nil, fmt.Errorf("[YouTubeClient] authenticated account has no channel")
	}
	uploads := channels.Items[0].ContentDetails.RelatedPlaylists.Uploads

	items, err := yc.service.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(uploads).
		MaxResults(n).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapYouTubeErr("list uploads", err)
	}

	videoIDs := make([]string, 0, len(items.Items))
	for _, item := range items.Items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			videoIDs = append(videoIDs, item.ContentDetails.VideoId)
		}
	}
	return videoIDs, nil
}

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// mapYouTubeErr sorts API failures into the pipeline taxonomy: quota and
// server errors are transient, rejected credentials are a run-level failure.
func mapYouTubeErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("[YouTubeClient] %s: %w: %v", op, models.ErrSourceUnauthorized, err)
		case gerr.Code == http.StatusForbidden:
			for _, item := range gerr.Errors {
				if quotaReasons[item.Reason] {
					return models.Transient("youtube "+op, err)
				}
			}
			return fmt.Errorf("[YouTubeClient] %s forbidden: %w", op, err)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("[YouTubeClient] %s: %w: %v", op, models.ErrNotFound, err)
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= http.StatusInternalServerError:
			return models.Transient("youtube "+op, err)
		}
		return fmt.Errorf("[YouTubeClient] %s failed: %w", op, err)
	}

	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		return fmt.Errorf("[YouTubeClient] %s: %w: %v", op, models.ErrSourceUnauthorized, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return models.Transient("youtube "+op, err)
	}
	return fmt.Errorf("[YouTubeClient] %s failed: %w", op, err)
}
