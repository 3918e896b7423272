package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spacesedan/commentguard/config"
	"github.com/spacesedan/commentguard/internal/models"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewOpenAIProvider(config.ClassifierConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
}

func TestOpenAIProviderJSONMode(t *testing.T) {
	t.Parallel()
	provider := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		format, _ := req["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", req["response_format"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"category":"toxic","toxicity_score":0.91,"mild_text":"Viewer expressed strong dissatisfaction with the content."}`,
				},
			}},
		})
	})

	content, err := provider.Complete(context.Background(), "system", "this creator is an idiot, waste of time", true)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	res, err := parseClassification(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.CategoryHint != models.CategoryToxic || res.ToxicityScore != 0.91 {
		t.Fatalf("unexpected classification: %+v", res)
	}
}

func TestOpenAIProviderErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status    int
		transient bool
	}{
		{status: http.StatusTooManyRequests, transient: true},
		{status: http.StatusInternalServerError, transient: true},
		{status: http.StatusUnauthorized, transient: false},
		{status: http.StatusBadRequest, transient: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			provider := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "nope", "type": "test_error"},
				})
			})

			_, err := provider.Complete(context.Background(), "system", "hello", true)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := models.IsTransient(err); got != tt.transient {
				t.Fatalf("IsTransient = %v, want %v (%v)", got, tt.transient, err)
			}
		})
	}
}
