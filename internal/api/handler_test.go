package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spacesedan/commentguard/internal/db"
	"github.com/spacesedan/commentguard/internal/models"
	"github.com/spacesedan/commentguard/internal/monitoring"
	"github.com/spacesedan/commentguard/internal/reply"
	"github.com/spacesedan/commentguard/internal/summary"
)

const toxicText = "this creator is an idiot, waste of time"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePoster struct{ calls int }

func (f *fakePoster) PostReply(_ context.Context, _, commentID, _ string) (string, error) {
	f.calls++
	return commentID + ".reply", nil
}

type fakeSuggester struct{}

func (fakeSuggester) SuggestReply(context.Context, string) (string, error) {
	return "Thanks for watching!", nil
}

type fakeSyncer struct {
	run *models.SyncRun
	err error
}

func (f *fakeSyncer) RunScheduled(context.Context) (*models.SyncRun, error) {
	return f.run, f.err
}

type fixture struct {
	router *gin.Engine
	poster *fakePoster
	syncer *fakeSyncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	comments := []*models.Comment{
		{ID: "q1", Category: models.CategoryQuestion, NeedsReply: true,
			OriginalText: "how did you do the intro?", MildText: "How did you do the intro?"},
		{ID: "q2", Category: models.CategoryQuestion, NeedsReply: true,
			OriginalText: "what mic is that?", MildText: "What mic is that?"},
		{ID: "p1", Category: models.CategoryPositive,
			OriginalText: "love it", MildText: "Love it."},
		{ID: "t1", Category: models.CategoryToxic, Blocked: true, ToxicityScore: 0.93,
			OriginalText: toxicText, MildText: "Viewer expressed strong dissatisfaction with the content."},
	}
	for i, c := range comments {
		c.VideoID = "v1"
		c.PublishedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := store.Upsert(ctx, c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}

	poster := &fakePoster{}
	syncer := &fakeSyncer{run: models.NewSyncRun("run-1", []string{"v1"}, base)}
	h := NewHandler(
		summary.NewService(store),
		reply.NewService(store, fakeSuggester{}, poster, nil),
		syncer,
		monitoring.NewHealth("classifier"),
	)
	return &fixture{router: NewRouter(h), poster: poster, syncer: syncer}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestSummaryHidesBlockedContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/comments/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, toxicText) || strings.Contains(body, `"id":"t1"`) || strings.Contains(body, "toxicity") {
		t.Fatalf("summary leaked blocked content: %s", body)
	}

	var dashboard models.Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &dashboard); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dashboard.Stats.BlockedCount != 1 || dashboard.Stats.QuestionCount != 2 {
		t.Fatalf("unexpected stats: %+v", dashboard.Stats)
	}
	if len(dashboard.Comments[models.CategoryQuestion]) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(dashboard.Comments[models.CategoryQuestion]))
	}
}

func TestCategoryListing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/comments/category/question?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var page models.CommentListPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Comments) != 1 || page.Comments[0].ID != "q2" || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	rec = f.do(t, http.MethodGet, "/api/comments/category/question?limit=1&cursor="+page.NextCursor, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second page status = %d", rec.Code)
	}
	page = models.CommentListPage{}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Comments) != 1 || page.Comments[0].ID != "q1" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	for _, path := range []string{
		"/api/comments/category/toxic",
		"/api/comments/category/spam",
		"/api/comments/category/question?cursor=not-a-cursor",
	} {
		if rec := f.do(t, http.MethodGet, path, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/comments/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats models.DashboardStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalProcessed != 4 || stats.AwaitingReply != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReplyFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/comments/q1/suggest-reply", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Thanks for watching!") {
		t.Fatalf("suggest: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/comments/q1/reply", `{"text":"A simple crossfade."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reply: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/comments/q1/reply", `{"text":"A simple crossfade."}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second reply: status = %d, want 409", rec.Code)
	}
	if f.poster.calls != 1 {
		t.Fatalf("expected one platform post, got %d", f.poster.calls)
	}
}

func TestReplyErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown comment", "/api/comments/nope/reply", `{"text":"hi"}`, http.StatusNotFound},
		{"missing text", "/api/comments/q1/reply", `{}`, http.StatusBadRequest},
		{"blank text", "/api/comments/q1/reply", `{"text":"   "}`, http.StatusBadRequest},
		{"blocked comment", "/api/comments/t1/reply", `{"text":"hi"}`, http.StatusBadRequest},
		{"suggest for blocked", "/api/comments/t1/suggest-reply", "", http.StatusBadRequest},
		{"suggest for unknown", "/api/comments/nope/suggest-reply", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (body %s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), toxicText) {
			t.Fatalf("%s: response leaked blocked text", tc.name)
		}
	}
	if f.poster.calls != 0 {
		t.Fatalf("no reply should have been posted, got %d", f.poster.calls)
	}
}

func TestSyncEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{"/api/comments/sync", "/api/scheduler/process"} {
		rec := f.do(t, http.MethodPost, path, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"run-1"`) {
			t.Fatalf("%s: status = %d, body %s", path, rec.Code, rec.Body.String())
		}
	}

	f.syncer.err = errors.Join(models.ErrSourceUnauthorized, errors.New("token revoked"))
	rec := f.do(t, http.MethodPost, "/api/comments/sync", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rejected credentials") || strings.Contains(rec.Body.String(), "token revoked") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v, want ok", body["status"])
	}
	classifier, ok := body["classifier"].(map[string]any)
	if !ok || classifier["healthy"] != true {
		t.Fatalf("unexpected classifier health: %v", body["classifier"])
	}
}
