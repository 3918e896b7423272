package summary

import (
	"context"
	"fmt"
	"sync"

	"github.com/spacesedan/commentguard/internal/db"
	"github.com/spacesedan/commentguard/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Service builds the read-only dashboard views. Everything it returns is
// built from models.CommentView, so original text and toxicity scores never
// leave the store layer.
type Service struct {
	store db.Store
}

func NewService(store db.Store) *Service {
	return &Service{store: store}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// Stats counts comments per category. Blocked comments only ever appear here.
func (s *Service) Stats(ctx context.Context) (*models.DashboardStats, error) {
	type countQuery struct {
		category models.Category
		awaiting bool
		dst      *int
	}

	stats := &models.DashboardStats{}
	var awaitingQuestions, awaitingConstructive int
	queries := []countQuery{
		{category: models.CategoryPositive, dst: &stats.PositiveCount},
		{category: models.CategoryQuestion, dst: &stats.QuestionCount},
		{category: models.CategoryConstructive, dst: &stats.ConstructiveCount},
		{category: models.CategoryToxic, dst: &stats.BlockedCount},
		{category: models.CategoryQuestion, awaiting: true, dst: &awaitingQuestions},
		{category: models.CategoryConstructive, awaiting: true, dst: &awaitingConstructive},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			n, err := s.store.Count(gctx, q.category, q.awaiting)
			if err != nil {
				return fmt.Errorf("[SummaryService] failed to count %s comments: %w", q.category, err)
			}
			*q.dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.AwaitingReply = awaitingQuestions + awaitingConstructive
	stats.TotalProcessed = stats.PositiveCount + stats.QuestionCount + stats.ConstructiveCount + stats.BlockedCount
	return stats, nil
}

// List returns one page of non-blocked comments of a listable category,
// newest first.
func (s *Service) List(ctx context.Context, category models.Category, limit int, cursor string) (*models.CommentListPage, error) {
	if !category.Listable() {
		return nil, models.ErrCategoryNotListable
	}

	page, err := s.store.Query(ctx, db.Query{
		Category:       &category,
		ExcludeBlocked: true,
		Limit:          clampLimit(limit),
		Cursor:         cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("[SummaryService] failed to list %s comments: %w", category, err)
	}

	return &models.CommentListPage{
		Category:   category,
		Comments:   views(page.Comments),
		NextCursor: page.NextCursor,
	}, nil
}

// Dashboard returns the stats and the newest comments of every listable
// category.
func (s *Service) Dashboard(ctx context.Context, limit int) (*models.Dashboard, error) {
	dashboard := &models.Dashboard{
		Comments: make(map[models.Category][]models.CommentView, len(models.ListableCategories)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.Stats(gctx)
		if err != nil {
			return err
		}
		dashboard.Stats = *stats
		return nil
	})
	for _, category := range models.ListableCategories {
		category := category
		g.Go(func() error {
			page, err := s.List(gctx, category, limit, "")
			if err != nil {
				return err
			}
			mu.Lock()
			dashboard.Comments[category] = page.Comments
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dashboard, nil
}

func views(comments []*models.Comment) []models.CommentView {
	out := make([]models.CommentView, 0, len(comments))
	for _, c := range comments {
		if c.Blocked {
			continue
		}
		out = append(out, c.View())
	}
	return out
}
