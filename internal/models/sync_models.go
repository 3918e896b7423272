package models

import (
	"sort"
	"sync"
	"time"
)

type ItemOutcome string

const (
	OutcomeCreated   ItemOutcome = "created"
	OutcomeUpdated   ItemOutcome = "updated"
	OutcomeSkipped   ItemOutcome = "skipped"
	OutcomeFailed    ItemOutcome = "failed"
	OutcomeUntouched ItemOutcome = "untouched"
)

// SyncRun summarizes one orchestrator invocation. It is safe for concurrent
// use by the worker pool; read it only after the run returns.
type SyncRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	TimedOut   bool      `json:"timed_out"`

	VideoIDs     []string `json:"video_ids"`
	FailedVideos []string `json:"failed_videos,omitempty"`

	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Untouched int `json:"untouched"`
	Blocked   int `json:"blocked"`

	// platform moderation actions applied by this run
	Rejected int `json:"rejected"`
	Held     int `json:"held"`

	// FailedIDs holds comment ids whose classification or persistence failed
	// and should be retried by a later pass.
	FailedIDs []string `json:"failed_ids,omitempty"`

	mu     sync.Mutex
	failed map[string]struct{}
}

func NewSyncRun(id string, videoIDs []string, startedAt time.Time) *SyncRun {
	return &SyncRun{
		ID:        id,
		StartedAt: startedAt,
		VideoIDs:  append([]string(nil), videoIDs...),
		failed:    make(map[string]struct{}),
	}
}

// Record tallies one comment outcome. failed marks the id for retry even when
// the comment itself was persisted (fallback decision).
func (r *SyncRun) Record(id string, outcome ItemOutcome, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	case OutcomeUntouched:
		r.Untouched++
	}

	if failed || outcome == OutcomeFailed {
		if _, seen := r.failed[id]; !seen {
			r.failed[id] = struct{}{}
			r.FailedIDs = append(r.FailedIDs, id)
		}
	}
}

// RecordBlocked counts a comment this run committed as blocked.
func (r *SyncRun) RecordBlocked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Blocked++
}

// RecordModeration counts a platform moderation action.
func (r *SyncRun) RecordModeration(status ModerationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch status {
	case ModerationRejected:
		r.Rejected++
	case ModerationHeldForReview:
		r.Held++
	}
}

func (r *SyncRun) RecordFailedVideo(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailedVideos = append(r.FailedVideos, videoID)
}

// HasFailure reports whether id is in the failure set.
func (r *SyncRun) HasFailure(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failed[id]
	return ok
}

// Finish stamps the run and sorts the id sets for stable output.
func (r *SyncRun) Finish(at time.Time, timedOut bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = at
	r.TimedOut = timedOut
	sort.Strings(r.FailedIDs)
	sort.Strings(r.FailedVideos)
}
