package models

import "time"

const (
	EventSyncCompleted          = "sync.completed"
	EventSyncFailed             = "sync.failed"
	EventReplyUnrecorded        = "reply.unrecorded"
	EventModerationActionFailed = "moderation.action_failed"
	EventCommentBlocked         = "comment.blocked"
	EventReplyRecorded          = "reply.recorded"
)

// Event is published for alerting and downstream consumers. It never carries
// comment text.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	RunID      string    `json:"run_id,omitempty"`
	CommentID  string    `json:"comment_id,omitempty"`
	ReplyID    string    `json:"reply_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Run        *SyncRun  `json:"run,omitempty"`
}

// DashboardStats are aggregate counts; blocked comments appear only here.
type DashboardStats struct {
	PositiveCount     int `json:"positive_count"`
	QuestionCount     int `json:"question_count"`
	ConstructiveCount int `json:"constructive_count"`
	BlockedCount      int `json:"blocked_count"`
	AwaitingReply     int `json:"awaiting_reply"`
	TotalProcessed    int `json:"total_processed"`
}

// CommentListPage is a page of listable comments.
type CommentListPage struct {
	Category   Category      `json:"category"`
	Comments   []CommentView `json:"comments"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// Dashboard is the summary payload consumed by the presentation layer.
type Dashboard struct {
	Stats    DashboardStats             `json:"stats"`
	Comments map[Category][]CommentView `json:"comments"`
}
