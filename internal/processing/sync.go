package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/db"
	"github.com/spacesedan/commentguard/internal/models"
	"github.com/spacesedan/commentguard/internal/moderation"
	"github.com/spacesedan/commentguard/internal/sentiment"
	"golang.org/x/sync/errgroup"
)

var ErrSourceUnreachable = errors.New("no monitored video could be read")

type Options struct {
	VideoIDs        []string
	DiscoverRecent  int64
	Concurrency     int
	RunTimeout      time.Duration
	GracePeriod     time.Duration
	PageRetries     int
	PageBackoff     time.Duration
	MaxAttempts     int
	ApplyModeration bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		VideoIDs:        cfg.Sync.VideoIDs,
		DiscoverRecent:  cfg.Sync.DiscoverRecent,
		Concurrency:     cfg.Sync.Concurrency,
		RunTimeout:      cfg.Sync.RunTimeout,
		GracePeriod:     cfg.Sync.GracePeriod,
		PageRetries:     cfg.Sync.PageRetries,
		PageBackoff:     cfg.Sync.PageBackoff,
		MaxAttempts:     cfg.Sync.MaxAttempts,
		ApplyModeration: cfg.YouTube.ApplyModeration,
	}
}

// Deps are the collaborators of a sync run. Cache and Events are optional.
type Deps struct {
	Source     CommentSource
	Classifier Classifier
	Engine     *moderation.Engine
	Store      db.Store
	Cache      ProcessedCache
	Events     EventPublisher
}

// Orchestrator runs ingestion cycles: fetch, dedup, classify, decide and
// persist every comment of a set of videos. It keeps no state between runs
// and may be invoked concurrently; the store's conditional upsert settles
// races between overlapping runs.
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	if opts.PageRetries <= 0 {
		opts.PageRetries = 1
	}
	if opts.PageBackoff <= 0 {
		opts.PageBackoff = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Orchestrator{deps: deps, opts: opts, now: time.Now}
}

// ResolveVideos returns the configured video set, or the channel's most
// recent uploads when none is configured.
func (o *Orchestrator) ResolveVideos(ctx context.Context) ([]string, error) {
	if len(o.opts.VideoIDs) > 0 {
		return o.opts.VideoIDs, nil
	}

	videoIDs, err := o.deps.Source.RecentUploads(ctx, o.opts.DiscoverRecent)
	if err != nil {
		return nil, fmt.Errorf("[SyncOrchestrator] failed to discover videos: %w", err)
	}
	slog.Info("[SyncOrchestrator] Discovered recent uploads",
		slog.Int("videos", len(videoIDs)))
	return videoIDs, nil
}

// RunScheduled is the scheduler entry point: resolve the video set, then run.
func (o *Orchestrator) RunScheduled(ctx context.Context) (*models.SyncRun, error) {
	videoIDs, err := o.ResolveVideos(ctx)
	if err != nil {
		run := models.NewSyncRun(uuid.NewString(), nil, o.now())
		run.Finish(o.now(), false)
		o.publishRun(ctx, run, err)
		return run, err
	}
	return o.Run(ctx, videoIDs)
}

// Run processes every comment of videoIDs. Item failures are recorded in the
// returned SyncRun; an error is returned only when the source is unreachable
// or rejects the credentials. The run stops submitting work at the run
// timeout and gives in-flight tasks the grace period to finish.
func (o *Orchestrator) Run(ctx context.Context, videoIDs []string) (*models.SyncRun, error) {
	run := models.NewSyncRun(uuid.NewString(), videoIDs, o.now())
	start := time.Now()
	slog.Info("[SyncOrchestrator] Starting sync run",
		slog.String("run_id", run.ID),
		slog.Int("videos", len(videoIDs)),
		slog.Int("concurrency", o.opts.Concurrency))

	runCtx, cancelRun := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancelRun()

	// tasks outlive the run deadline by the grace period
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	tasksDone := make(chan struct{})
	go func() {
		select {
		case <-tasksDone:
		case <-runCtx.Done():
			select {
			case <-tasksDone:
			case <-time.After(o.opts.GracePeriod):
				slog.Warn("[SyncOrchestrator] Grace period expired, cancelling in-flight tasks",
					slog.String("run_id", run.ID))
				cancelTasks()
			}
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)

	var runErr error
	seen := make(map[string]struct{})
	readable := 0
	for _, videoID := range videoIDs {
		if runCtx.Err() != nil {
			break
		}

		err := o.walkVideo(runCtx, videoID, func(raw models.RawComment) {
			if _, dup := seen[raw.ID]; dup {
				return
			}
			seen[raw.ID] = struct{}{}

			// fetched after the deadline: account for it without waiting on a worker
			if runCtx.Err() != nil {
				run.Record(raw.ID, models.OutcomeUntouched, false)
				return
			}
			g.Go(func() error {
				o.processComment(runCtx, taskCtx, run, raw)
				return nil
			})
		})

		switch {
		case err == nil:
			readable++
		case errors.Is(err, models.ErrSourceUnauthorized):
			runErr = err
		case runCtx.Err() != nil:
			// timed out mid-video; comments already seen are still processed
			readable++
		default:
			slog.Error("[SyncOrchestrator] Failed to read video comments",
				slog.String("run_id", run.ID),
				slog.String("video_id", videoID),
				slog.String("error", err.Error()))
			run.RecordFailedVideo(videoID)
		}
		if runErr != nil {
			break
		}
	}

	_ = g.Wait()
	close(tasksDone)

	if runErr == nil && len(videoIDs) > 0 && readable == 0 && runCtx.Err() == nil {
		runErr = ErrSourceUnreachable
	}

	run.Finish(o.now(), runCtx.Err() != nil)
	if runErr != nil {
		runErr = fmt.Errorf("[SyncOrchestrator] run %s failed: %w", run.ID, runErr)
	}
	o.publishRun(ctx, run, runErr)

	slog.Info("[SyncOrchestrator] Sync run finished",
		slog.String("run_id", run.ID),
		slog.Int("created", run.Created),
		slog.Int("updated", run.Updated),
		slog.Int("skipped", run.Skipped),
		slog.Int("failed", run.Failed),
		slog.Int("untouched", run.Untouched),
		slog.Int("blocked", run.Blocked),
		slog.Bool("timed_out", run.TimedOut),
		slog.Duration("duration", time.Since(start)))
	return run, runErr
}

// walkVideo pages through videoID in order, handing each comment to submit.
// Every comment of a fetched page is submitted; no page is fetched after ctx
// is done.
func (o *Orchestrator) walkVideo(ctx context.Context, videoID string, submit func(models.RawComment)) error {
	token := ""
	for {
		page, err := o.fetchPage(ctx, videoID, token)
		if err != nil {
			return err
		}
		for _, raw := range page.Comments {
			submit(raw)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if page.NextPageToken == "" || page.NextPageToken == token {
			return nil
		}
		token = page.NextPageToken
	}
}

func (o *Orchestrator) fetchPage(ctx context.Context, videoID, token string) (*models.CommentPage, error) {
	backoff := o.opts.PageBackoff
	for attempt := 1; ; attempt++ {
		page, err := o.deps.Source.ListComments(ctx, videoID, token)
		if err == nil {
			return page, nil
		}
		if !models.IsTransient(err) || attempt >= o.opts.PageRetries {
			return nil, err
		}

		slog.Warn("[SyncOrchestrator] Page fetch failed, retrying",
			slog.String("video_id", videoID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// processComment owns one comment end to end. runCtx decides whether the
// task may start; taskCtx bounds its external calls.
func (o *Orchestrator) processComment(runCtx, taskCtx context.Context, run *models.SyncRun, raw models.RawComment) {
	if runCtx.Err() != nil {
		run.Record(raw.ID, models.OutcomeUntouched, false)
		return
	}

	if o.deps.Cache != nil && o.deps.Cache.IsProcessed(taskCtx, raw.ID) {
		run.Record(raw.ID, models.OutcomeSkipped, false)
		return
	}

	attempts := 1
	existing, err := o.deps.Store.Get(taskCtx, raw.ID)
	switch {
	case err == nil && existing.ClassificationFallback:
		if existing.Replied() || existing.ClassificationAttempts >= o.opts.MaxAttempts {
			run.Record(raw.ID, models.OutcomeSkipped, false)
			return
		}
		attempts = existing.ClassificationAttempts + 1
	case err == nil && existing.Classified():
		o.markProcessed(taskCtx, raw.ID)
		run.Record(raw.ID, models.OutcomeSkipped, false)
		return
	case err == nil, errors.Is(err, models.ErrNotFound):
	default:
		slog.Warn("[SyncOrchestrator] Store lookup failed",
			slog.String("comment_id", raw.ID),
			slog.String("error", err.Error()))
		run.Record(raw.ID, models.OutcomeFailed, true)
		return
	}

	res, classifyErr := o.deps.Classifier.Classify(taskCtx, sentiment.Normalize(raw.Text))
	if taskCtx.Err() != nil {
		run.Record(raw.ID, models.OutcomeUntouched, false)
		return
	}
	if classifyErr != nil {
		slog.Warn("[SyncOrchestrator] Classification failed, applying fallback",
			slog.String("comment_id", raw.ID),
			slog.Bool("transient", models.IsTransient(classifyErr)),
			slog.Bool("malformed", models.IsMalformed(classifyErr)),
			slog.String("error", classifyErr.Error()))
	}

	decision := o.deps.Engine.Decide(raw.Text, res, classifyErr)
	comment := o.buildComment(raw, decision, attempts)

	created, err := o.deps.Store.Upsert(taskCtx, comment)
	switch {
	case models.IsAlreadyHandled(err):
		// another run committed first
		run.Record(raw.ID, models.OutcomeSkipped, false)
		return
	case err != nil && taskCtx.Err() != nil:
		run.Record(raw.ID, models.OutcomeUntouched, false)
		return
	case err != nil:
		slog.Warn("[SyncOrchestrator] Failed to persist comment",
			slog.String("comment_id", raw.ID),
			slog.String("error", err.Error()))
		run.Record(raw.ID, models.OutcomeFailed, true)
		return
	}

	outcome := models.OutcomeUpdated
	if created {
		outcome = models.OutcomeCreated
	}
	run.Record(raw.ID, outcome, decision.Fallback)
	if decision.Blocked {
		run.RecordBlocked()
	}
	if !decision.Fallback {
		o.markProcessed(taskCtx, raw.ID)
	}

	o.applyModeration(taskCtx, run, comment)
}

func (o *Orchestrator) buildComment(raw models.RawComment, decision models.Decision, attempts int) *models.Comment {
	polarity, _ := sentiment.AnalyzeWithVADER(raw.Text)

	comment := &models.Comment{
		ID:                     raw.ID,
		VideoID:                raw.VideoID,
		AuthorName:             raw.AuthorName,
		PublishedAt:            raw.PublishedAt,
		OriginalText:           raw.Text,
		Category:               decision.Category,
		ToxicityScore:          decision.ToxicityScore,
		LocalPolarity:          polarity,
		MildText:               decision.MildText,
		NeedsReply:             decision.NeedsReply,
		Blocked:                decision.Blocked,
		ClassificationFallback: decision.Fallback,
		ClassificationAttempts: attempts,
		AnalyzedAt:             o.now().UTC(),
	}
	if o.opts.ApplyModeration {
		comment.ModerationStatus = decision.Moderation
	}
	return comment
}

// applyModeration mirrors the decision on the platform. Only the run whose
// write committed gets here, so each comment is moderated once.
func (o *Orchestrator) applyModeration(ctx context.Context, run *models.SyncRun, comment *models.Comment) {
	if comment.ModerationStatus == "" {
		return
	}

	if ctx.Err() != nil {
		slog.Warn("[SyncOrchestrator] Run cancelled before moderation status was applied",
			slog.String("comment_id", comment.ID),
			slog.String("status", string(comment.ModerationStatus)))
		return
	}
	if err := o.deps.Source.SetModerationStatus(ctx, comment.ID, comment.ModerationStatus); err != nil {
		if ctx.Err() != nil {
			slog.Warn("[SyncOrchestrator] Moderation call cancelled with the run",
				slog.String("comment_id", comment.ID),
				slog.String("status", string(comment.ModerationStatus)))
			return
		}
		slog.Warn("[SyncOrchestrator] Failed to apply moderation status",
			slog.String("comment_id", comment.ID),
			slog.String("status", string(comment.ModerationStatus)),
			slog.String("error", err.Error()))
		o.publish(ctx, models.Event{
			Type:      models.EventModerationActionFailed,
			Key:       comment.ID,
			RunID:     run.ID,
			CommentID: comment.ID,
			Error:     err.Error(),
		})
		return
	}
	run.RecordModeration(comment.ModerationStatus)
}

func (o *Orchestrator) markProcessed(ctx context.Context, id string) {
	if o.deps.Cache == nil {
		return
	}
	if err := o.deps.Cache.MarkProcessed(ctx, id); err != nil {
		slog.Debug("[SyncOrchestrator] Failed to cache processed id",
			slog.String("comment_id", id),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) publishRun(ctx context.Context, run *models.SyncRun, runErr error) {
	evt := models.Event{Type: models.EventSyncCompleted, Key: run.ID, RunID: run.ID, Run: run}
	if runErr != nil {
		evt.Type = models.EventSyncFailed
		evt.Error = runErr.Error()
	}
	o.publish(context.WithoutCancel(ctx), evt)
}

func (o *Orchestrator) publish(ctx context.Context, evt models.Event) {
	if o.deps.Events == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = o.now().UTC()
	}
	if err := o.deps.Events.Publish(ctx, evt); err != nil {
		slog.Error("[SyncOrchestrator] Failed to publish event",
			slog.String("type", evt.Type),
			slog.String("key", evt.Key),
			slog.String("error", err.Error()))
	}
}

// Schedule triggers RunScheduled every interval until ctx is done. Ticks do
// not wait for the previous run.
func (o *Orchestrator) Schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping sync scheduler")
			return
		case <-ticker.C:
			go func() {
				if _, err := o.RunScheduled(ctx); err != nil {
					slog.Error("[Scheduler] Scheduled sync failed",
						slog.String("error", err.Error()))
				}
			}()
		}
	}
}
