package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
)

func TestClassTimeouts(t *testing.T) {
	cfg := &config.Config{}
	cfg.Sources.RSS.Feeds = make([]config.FeedSource, 10)
	cfg.Sources.RSS.Workers = 4
	cfg.Sources.RSS.Timeout = 6 * time.Second
	cfg.Sources.X.Timeout = 8 * time.Second
	cfg.Sources.Polymarket.Timeout = 5 * time.Second

	articles, social, markets := ClassTimeouts(cfg)
	if articles != 20*time.Second {
		t.Errorf("articles = %v, want 3 rounds of 6s plus slack", articles)
	}
	if social != 10*time.Second || markets != 7*time.Second {
		t.Errorf("social = %v, markets = %v", social, markets)
	}

	cfg.Sources.RSS.Workers = 0
	cfg.Sources.RSS.Feeds = nil
	if articles, _, _ := ClassTimeouts(cfg); articles != 8*time.Second {
		t.Errorf("no feeds: articles = %v", articles)
	}
}

func TestNewWithoutInfrastructure(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Redis.Enabled = false
	cfg.Kafka.Enabled = false

	a, err := New(context.Background(), cfg, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Aggregator == nil {
		t.Fatal("events should be aggregated in process without kafka")
	}

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("cache stats: status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("analytics: status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready: status = %d", rec.Code)
	}
}
