package db

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spacesedan/commentguard/internal/models"
)

const DefaultQueryLimit = 50

// Store is the comment persistence contract shared by the DynamoDB and
// in-memory implementations.
type Store interface {
	Get(ctx context.Context, id string) (*models.Comment, error)
	// Upsert writes c if no classification has been committed for c.ID yet
	// (first-committed-wins). A fallback placeholder may be replaced once by a
	// real classification. Returns ErrAlreadyClassified when the write is
	// rejected; callers must re-read to learn the committed state.
	Upsert(ctx context.Context, c *models.Comment) (created bool, err error)
	Query(ctx context.Context, q Query) (*QueryPage, error)
	Count(ctx context.Context, category models.Category, awaitingReply bool) (int, error)
	// ClaimReply takes a short lease on posting a reply. It fails with
	// ErrNotFound or ErrAlreadyReplied.
	ClaimReply(ctx context.Context, id string, at time.Time, lease time.Duration) error
	ReleaseReply(ctx context.Context, id string) error
	// MarkReplied sets reply_posted_at and clears needs_reply exactly once.
	MarkReplied(ctx context.Context, id string, at time.Time) error
}

// Query selects comments ordered by published_at descending.
type Query struct {
	Category       *models.Category
	MinToxicity    *float64
	ExcludeBlocked bool
	Limit          int
	Cursor         string
}

type QueryPage struct {
	Comments   []*models.Comment
	NextCursor string
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

func (q Query) matches(c *models.Comment) bool {
	if q.Category != nil && c.Category != *q.Category {
		return false
	}
	if q.MinToxicity != nil && c.ToxicityScore < *q.MinToxicity {
		return false
	}
	if q.ExcludeBlocked && c.Blocked {
		return false
	}
	return true
}

// pageCursor identifies the last comment of a page on the
// (category, published_at) index.
type pageCursor struct {
	ID          string `json:"id"`
	Category    string `json:"c"`
	PublishedTS int64  `json:"ts"`
}

func encodeCursor(c *models.Comment) string {
	raw, _ := json.Marshal(pageCursor{
		ID:          c.ID,
		Category:    string(c.Category),
		PublishedTS: publishedTS(c.PublishedAt),
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (*pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCursor, err)
	}
	var cur pageCursor
	if err := json.Unmarshal(raw, &cur); err != nil || cur.ID == "" {
		return nil, models.ErrInvalidCursor
	}
	return &cur, nil
}

func publishedTS(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
