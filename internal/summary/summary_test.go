package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spacesedan/commentguard/internal/db"
	"github.com/spacesedan/commentguard/internal/models"
)

const toxicText = "this creator is an idiot, waste of time"

func seed(t *testing.T) *db.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	add := func(c *models.Comment) {
		if _, err := store.Upsert(ctx, c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
	for i := 0; i < 3; i++ {
		add(&models.Comment{
			ID: fmt.Sprintf("q%d", i), Category: models.CategoryQuestion, NeedsReply: true,
			OriginalText: "question?", MildText: "Question?", PublishedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	add(&models.Comment{
		ID: "p1", Category: models.CategoryPositive, OriginalText: "great!",
		MildText: "Great!", PublishedAt: base,
	})
	add(&models.Comment{
		ID: "k1", Category: models.CategoryConstructive, NeedsReply: true, ToxicityScore: 0.3,
		OriginalText: "audio too quiet", MildText: "The audio is too quiet.", PublishedAt: base,
	})
	add(&models.Comment{
		ID: "t1", Category: models.CategoryToxic, Blocked: true, ToxicityScore: 0.91,
		OriginalText: toxicText, MildText: "Viewer expressed strong dissatisfaction with the content.",
		PublishedAt: base.Add(time.Hour),
	})
	if err := store.MarkReplied(ctx, "q0", base); err != nil {
		t.Fatalf("mark replied: %v", err)
	}
	return store
}

func TestStats(t *testing.T) {
	t.Parallel()
	stats, err := NewService(seed(t)).Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	want := models.DashboardStats{
		PositiveCount:     1,
		QuestionCount:     3,
		ConstructiveCount: 1,
		BlockedCount:      1,
		AwaitingReply:     3,
		TotalProcessed:    6,
	}
	if *stats != want {
		t.Fatalf("Stats() = %+v, want %+v", *stats, want)
	}
}

func TestListRejectsToxicCategory(t *testing.T) {
	t.Parallel()
	_, err := NewService(seed(t)).List(context.Background(), models.CategoryToxic, 10, "")
	if !errors.Is(err, models.ErrCategoryNotListable) {
		t.Fatalf("expected ErrCategoryNotListable, got %v", err)
	}
}

func TestListPages(t *testing.T) {
	t.Parallel()
	svc := NewService(seed(t))

	first, err := svc.List(context.Background(), models.CategoryQuestion, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Comments) != 2 || first.Comments[0].ID != "q2" || first.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", first)
	}

	second, err := svc.List(context.Background(), models.CategoryQuestion, 2, first.NextCursor)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Comments) != 1 || second.Comments[0].ID != "q0" || second.Comments[0].NeedsReply {
		t.Fatalf("unexpected second page: %+v", second)
	}
}

func TestDashboardNeverExposesBlockedOrRawText(t *testing.T) {
	t.Parallel()
	dashboard, err := NewService(seed(t)).Dashboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}

	if _, ok := dashboard.Comments[models.CategoryToxic]; ok {
		t.Fatalf("toxic comments listed")
	}
	if dashboard.Stats.BlockedCount != 1 {
		t.Fatalf("blocked comments must still be counted")
	}

	payload, err := json.Marshal(dashboard)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(payload)
	for _, leaked := range []string{toxicText, "audio too quiet", "toxicity", "original_text", "t1"} {
		if strings.Contains(body, leaked) {
			t.Fatalf("dashboard payload leaks %q: %s", leaked, body)
		}
	}
}
