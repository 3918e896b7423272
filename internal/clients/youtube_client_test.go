package clients

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spacesedan/commentguard/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

func newTestYouTubeClient(t *testing.T, handler http.HandlerFunc) *YouTubeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := youtube.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("youtube.NewService: %v", err)
	}
	return NewYouTubeClientWithService(svc, 2)
}

func writeAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": reason,
			"errors":  []map[string]string{{"reason": reason, "message": reason}},
		},
	})
}

func TestYouTubeClientListCommentsPaging(t *testing.T) {
	t.Parallel()
	client := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/commentThreads") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("videoId") != "v1" {
			t.Errorf("unexpected video id %q", r.URL.Query().Get("videoId"))
		}

		resp := youtube.CommentThreadListResponse{}
		switch r.URL.Query().Get("pageToken") {
		case "":
			resp.NextPageToken = "p2"
			resp.Items = []*youtube.CommentThread{thread("c1", "first"), thread("c2", "second")}
		case "p2":
			resp.Items = []*youtube.CommentThread{thread("c3", "third")}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	first, err := client.ListComments(context.Background(), "v1", "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Comments) != 2 || first.NextPageToken != "p2" {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if first.Comments[0].ID != "c1" || first.Comments[0].Text != "first" || first.Comments[0].AuthorName != "viewer" {
		t.Fatalf("unexpected comment mapping: %+v", first.Comments[0])
	}
	if first.Comments[0].PublishedAt.IsZero() {
		t.Fatalf("published time not parsed")
	}

	second, err := client.ListComments(context.Background(), "v1", "p2")
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Comments) != 1 || second.NextPageToken != "" {
		t.Fatalf("unexpected second page: %+v", second)
	}
}

func TestYouTubeClientUnparseablePublishTimeUsesFetchTime(t *testing.T) {
	t.Parallel()
	client := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		bad := thread("c1", "first")
		bad.Snippet.TopLevelComment.Snippet.PublishedAt = "yesterday"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(youtube.CommentThreadListResponse{
			Items: []*youtube.CommentThread{bad},
		})
	})

	before := time.Now().Add(-time.Second)
	page, err := client.ListComments(context.Background(), "v1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Comments) != 1 {
		t.Fatalf("comment with a bad publish time was dropped")
	}
	if got := page.Comments[0].PublishedAt; got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Fatalf("published_at = %v, want the fetch time", got)
	}
}

func thread(id, text string) *youtube.CommentThread {
	return &youtube.CommentThread{
		Id: id,
		Snippet: &youtube.CommentThreadSnippet{
			TopLevelComment: &youtube.Comment{
				Id: id,
				Snippet: &youtube.CommentSnippet{
					AuthorDisplayName: "viewer",
					TextOriginal:      text,
					PublishedAt:       "2026-05-01T10:00:00Z",
				},
			},
		},
	}
}

func TestYouTubeClientErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		code      int
		reason    string
		transient bool
		unauth    bool
	}{
		{name: "quota", code: http.StatusForbidden, reason: "quotaExceeded", transient: true},
		{name: "unauthorized", code: http.StatusUnauthorized, reason: "authError", unauth: true},
		{name: "comments disabled", code: http.StatusForbidden, reason: "commentsDisabled"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeAPIError(w, tt.code, tt.reason)
			})

			_, err := client.ListComments(context.Background(), "v1", "")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := models.IsTransient(err); got != tt.transient {
				t.Fatalf("IsTransient = %v, want %v (%v)", got, tt.transient, err)
			}
			if got := errors.Is(err, models.ErrSourceUnauthorized); got != tt.unauth {
				t.Fatalf("unauthorized = %v, want %v (%v)", got, tt.unauth, err)
			}
		})
	}
}

func TestMapYouTubeErrRetryableCodes(t *testing.T) {
	t.Parallel()
	for _, code := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		if err := mapYouTubeErr("list comments", &googleapi.Error{Code: code}); !models.IsTransient(err) {
			t.Fatalf("code %d should be transient, got %v", code, err)
		}
	}
	if err := mapYouTubeErr("post reply", &googleapi.Error{Code: http.StatusNotFound}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("404 should map to ErrNotFound, got %v", err)
	}
}

func TestYouTubeClientPostReply(t *testing.T) {
	t.Parallel()
	client := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/comments") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var in youtube.Comment
		if err := json.Unmarshal(body, &in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if in.Snippet.ParentId != "c1" || in.Snippet.TextOriginal != "Thanks for watching!" {
			t.Errorf("unexpected reply body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(youtube.Comment{Id: "c1.r1"})
	})

	id, err := client.PostReply(context.Background(), "v1", "c1", "Thanks for watching!")
	if err != nil {
		t.Fatalf("post reply: %v", err)
	}
	if id != "c1.r1" {
		t.Fatalf("unexpected reply id %q", id)
	}
}

func TestYouTubeClientRecentUploads(t *testing.T) {
	t.Parallel()
	client := newTestYouTubeClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/channels"):
			_ = json.NewEncoder(w).Encode(youtube.ChannelListResponse{Items: []*youtube.Channel{{
				ContentDetails: &youtube.ChannelContentDetails{
					RelatedPlaylists: &youtube.ChannelContentDetailsRelatedPlaylists{Uploads: "UU1"},
				},
			}}})
		case strings.HasSuffix(r.URL.Path, "/playlistItems"):
			if r.URL.Query().Get("playlistId") != "UU1" {
				t.Errorf("unexpected playlist %q", r.URL.Query().Get("playlistId"))
			}
			_ = json.NewEncoder(w).Encode(youtube.PlaylistItemListResponse{Items: []*youtube.PlaylistItem{
				{ContentDetails: &youtube.PlaylistItemContentDetails{VideoId: "v9"}},
				{ContentDetails: &youtube.PlaylistItemContentDetails{VideoId: "v8"}},
			}})
		default:
			http.NotFound(w, r)
		}
	})

	ids, err := client.RecentUploads(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent uploads: %v", err)
	}
	if len(ids) != 2 || ids[0] != "v9" {
		t.Fatalf("unexpected uploads %v", ids)
	}
}
