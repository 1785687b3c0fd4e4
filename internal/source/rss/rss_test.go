package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Wire</title>
    <item>
      <title>Iran&amp;#039;s escalation prompts response</title>
      <description>US Central Command said five others were &amp;#039;seriously wounded&amp;#039;.</description>
      <link>https://example.com/story</link>
      <pubDate>Sat, 28 Feb 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Football scores</title>
      <description>Weekend results.</description>
      <link>https://example.com/sport</link>
    </item>
    <item>
      <title>Tanker traffic slows in the Strait of Hormuz</title>
      <description>&lt;p&gt;Shipping data shows fewer transits.&lt;/p&gt;</description>
      <link>https://example.com/hormuz</link>
    </item>
  </channel>
</rss>`

const atomBody = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Analysis</title>
  <entry>
    <title>What IRGC doctrine says about retaliation</title>
    <link href="https://analysis.example/irgc-doctrine"/>
    <updated>2026-02-28T09:30:00Z</updated>
    <summary>Long read.</summary>
  </entry>
  <entry>
    <title>Tanker traffic slows in the Strait of Hormuz</title>
    <link href="https://example.com/hormuz"/>
    <updated>2026-02-28T08:00:00Z</updated>
  </entry>
</feed>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wire", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(rssBody)) })
	mux.HandleFunc("/analysis", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(atomBody)) })
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	mux.HandleFunc("/junk", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not a feed")) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(base string, paths ...string) config.RSSConfig {
	cfg := config.RSSConfig{MaxPerFeed: 10, MergeLimit: 60, Timeout: 2 * time.Second, Workers: 5, ExcerptSize: 180}
	for _, p := range paths {
		cfg.Feeds = append(cfg.Feeds, config.FeedSource{URL: base + "/" + p, Name: p, Category: "breaking"})
	}
	return cfg
}

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFetchParsesFiltersAndMerges(t *testing.T) {
	srv := newServer(t)
	a := New(testConfig(srv.URL, "wire", "down", "analysis"), []string{"Iran", "hormuz", "irgc"}, WithClock(func() time.Time { return fixed }))

	res, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var titles []string
	for _, it := range res.Items {
		titles = append(titles, it.Title)
	}
	want := []string{
		"Iran's escalation prompts response",
		"Tanker traffic slows in the Strait of Hormuz",
		"What IRGC doctrine says about retaliation",
	}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Fatalf("titles = %q, want %q", titles, want)
	}

	first := res.Items[0]
	if first.Time != "2026-02-28T10:00:00Z" || first.Timestamp != first.Time {
		t.Errorf("time = %q", first.Time)
	}
	if !strings.Contains(first.Excerpt, "'seriously wounded'") {
		t.Errorf("excerpt = %q", first.Excerpt)
	}
	if first.ID != ItemID(first.Title, first.URL) || !strings.HasPrefix(first.ID, "rss-") || len(first.ID) != 16 {
		t.Errorf("id = %q", first.ID)
	}
	if first.Kind != feed.KindArticle || first.Category != "breaking" || first.Source != "wire" {
		t.Errorf("item = %+v", first)
	}
	if got := res.Items[1].Time; got != "2026-03-01T12:00:00Z" {
		t.Errorf("undated entry time = %q, want fetch time", got)
	}
	if res.Counters["feedsFailed"] != 1 || res.Counters["merged"] != 3 {
		t.Errorf("counters = %v", res.Counters)
	}
}

func TestFetchAllFeedsFailed(t *testing.T) {
	srv := newServer(t)
	_, err := New(testConfig(srv.URL, "down", "junk"), nil).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "all 2 feeds failed") {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, apperrors.ErrTransient) {
		t.Errorf("first failure should classify as transient: %v", err)
	}
}

func TestMaxPerFeedAppliesBeforeKeywordGate(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(srv.URL, "wire")
	cfg.MaxPerFeed = 2
	res, err := New(cfg, []string{"hormuz"}).Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 0 {
		t.Errorf("items = %+v, want none (third entry is past the per-feed cap)", res.Items)
	}
}
