package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spacesedan/commentguard/internal/models"
)

// MemoryStore is an in-process Store with the same conditional-write rules as
// CommentStore. It backs the service and API tests.
type MemoryStore struct {
	mu       sync.Mutex
	comments map[string]*models.Comment
	claims   map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		comments: make(map[string]*models.Comment),
		claims:   make(map[string]time.Time),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneComment(c), nil
}

func (m *MemoryStore) Upsert(_ context.Context, c *models.Comment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.comments[c.ID]
	if ok && existing.Classified() {
		_, claimed := m.claims[c.ID]
		replaceable := existing.ClassificationFallback && !existing.Replied() && !claimed
		if c.ClassificationFallback {
			replaceable = replaceable && existing.ClassificationAttempts < c.ClassificationAttempts
		}
		if !replaceable {
			return false, models.ErrAlreadyClassified
		}
	}

	m.comments[c.ID] = cloneComment(c)
	return !ok, nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q.Category == nil && q.Cursor != "" {
		return nil, models.ErrInvalidCursor
	}

	var matched []*models.Comment
	for _, c := range m.comments {
		if q.matches(c) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		ti, tj := publishedTS(matched[i].PublishedAt), publishedTS(matched[j].PublishedAt)
		if ti != tj {
			return ti > tj
		}
		return matched[i].ID > matched[j].ID
	})

	if q.Cursor != "" {
		cur, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
		if cur.Category != string(*q.Category) {
			return nil, models.ErrInvalidCursor
		}
		start := len(matched)
		for i, c := range matched {
			ts := publishedTS(c.PublishedAt)
			if ts < cur.PublishedTS || (ts == cur.PublishedTS && c.ID < cur.ID) {
				start = i
				break
			}
		}
		matched = matched[start:]
	}

	limit := q.limit()
	page := &QueryPage{}
	for _, c := range matched {
		if len(page.Comments) == limit {
			break
		}
		page.Comments = append(page.Comments, cloneComment(c))
	}
	if q.Category != nil && len(page.Comments) == limit && len(matched) > limit {
		page.NextCursor = encodeCursor(page.Comments[limit-1])
	}
	return page, nil
}

func (m *MemoryStore) Count(_ context.Context, category models.Category, awaitingReply bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.comments {
		if c.Category != category {
			continue
		}
		if awaitingReply && !c.NeedsReply {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) ClaimReply(_ context.Context, id string, at time.Time, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.Replied() {
		return models.ErrAlreadyReplied
	}
	if until, claimed := m.claims[id]; claimed && !until.Before(at) {
		return models.ErrAlreadyReplied
	}
	m.claims[id] = at.Add(lease)
	return nil
}

func (m *MemoryStore) ReleaseReply(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.Replied() {
		return models.ErrAlreadyReplied
	}
	delete(m.claims, id)
	return nil
}

func (m *MemoryStore) MarkReplied(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return models.ErrNotFound
	}
	if c.Replied() {
		return models.ErrAlreadyReplied
	}
	posted := at.UTC()
	c.ReplyPostedAt = &posted
	c.NeedsReply = false
	delete(m.claims, id)
	return nil
}

// Len returns the number of stored comments.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.comments)
}

func cloneComment(c *models.Comment) *models.Comment {
	out := *c
	if c.ReplyPostedAt != nil {
		t := *c.ReplyPostedAt
		out.ReplyPostedAt = &t
	}
	return &out
}
