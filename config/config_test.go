package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "sync:\n  video_ids: [v1, v2]\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Sync.VideoIDs) != 2 || cfg.Sync.Concurrency != 4 || cfg.Sync.RunTimeout != 5*time.Minute {
		t.Fatalf("unexpected sync config: %+v", cfg.Sync)
	}
	if cfg.Moderation.BlockThreshold != 0.8 || cfg.Moderation.HoldThreshold != 0.5 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Moderation)
	}
	if cfg.Moderation.ToxicParaphraseStyle == "" || cfg.Moderation.ReviewPlaceholder == "" {
		t.Fatalf("moderation text defaults missing")
	}
	if cfg.Classifier.Provider != ProviderOpenAI || cfg.Classifier.Model != "gpt-4o-mini" || cfg.Classifier.MaxRetries != 3 {
		t.Fatalf("unexpected classifier config: %+v", cfg.Classifier)
	}
	if cfg.DynamoDB.Table != "Comments" || cfg.Kafka.Topic != "commentguard.events" || cfg.Valkey.TTL != 24*time.Hour {
		t.Fatalf("unexpected adapter defaults: %+v %+v %+v", cfg.DynamoDB, cfg.Kafka, cfg.Valkey)
	}
}

func TestLoadGeminiModelDefault(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "classifier:\n  provider: gemini\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.HasPrefix(cfg.Classifier.Model, "gemini") {
		t.Fatalf("model = %q", cfg.Classifier.Model)
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"block above one":     "moderation:\n  block_threshold: 1.5\n",
		"hold above block":    "moderation:\n  block_threshold: 0.6\n  hold_threshold: 0.7\n",
		"unknown provider":    "classifier:\n  provider: llama\n",
		"malformed yaml":      "sync: [\n",
		"duration as garbage": "sync:\n  run_timeout: soon\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
