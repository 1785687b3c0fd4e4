package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assembler.FeedCap != 25 {
		t.Errorf("FeedCap = %d, want 25", cfg.Assembler.FeedCap)
	}
	if cfg.Relevance.MaxTokens != 120 {
		t.Errorf("MaxTokens = %d, want 120", cfg.Relevance.MaxTokens)
	}
	if len(cfg.Sources.RSS.Feeds) == 0 {
		t.Error("expected default feeds")
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: 9999
cache:
  articlesTTL: 30s
assembler:
  feedCap: 10
  reservedSocial: 2
sources:
  rss:
    feeds:
      - url: https://example.com/feed
        name: Example
        category: breaking
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANTHROPIC_API_KEY", " sk-test ")
	t.Setenv("SF_CACHE_SOCIAL_TTL", "5s")
	t.Setenv("SF_REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Cache.ArticlesTTL != 30*time.Second {
		t.Errorf("ArticlesTTL = %v", cfg.Cache.ArticlesTTL)
	}
	if cfg.Cache.SocialTTL != 5*time.Second {
		t.Errorf("SocialTTL = %v", cfg.Cache.SocialTTL)
	}
	if cfg.Relevance.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.Relevance.APIKey)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis override not applied: %+v", cfg.Redis)
	}
	if len(cfg.Sources.RSS.Feeds) != 1 || cfg.Sources.RSS.Feeds[0].Name != "Example" {
		t.Errorf("feeds = %+v", cfg.Sources.RSS.Feeds)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("X_BEARER_TOKEN=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("X_BEARER_TOKEN", "")
	os.Unsetenv("X_BEARER_TOKEN")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sources.X.BearerToken != "from-dotenv" {
		t.Errorf("BearerToken = %q, want from-dotenv", cfg.Sources.X.BearerToken)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Assembler.FeedCap = 0
	cfg.Relevance.BatchSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"feedCap", "batchSize"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := defaultConfig()
	cfg.Relevance.APIKey = "secret"
	red := cfg.Redacted()
	if red.Relevance.APIKey != "****" {
		t.Errorf("APIKey not masked: %q", red.Relevance.APIKey)
	}
	if cfg.Relevance.APIKey != "secret" {
		t.Error("Redacted mutated the original")
	}
	if red.Sources.X.BearerToken != "" {
		t.Error("empty token should stay empty")
	}
}
