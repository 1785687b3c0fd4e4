package xsearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const searchBody = `{
  "data": [
    {"id": "1", "author_id": "100", "created_at": "2026-03-01T11:00:00.000Z",
     "text": "Iran moves additional air defense batteries toward the Strait of Hormuz https://t.co/abc",
     "public_metrics": {"like_count": 20, "retweet_count": 0, "reply_count": 0, "quote_count": 0}},
    {"id": "2", "author_id": "100", "created_at": "2026-03-01T10:00:00.000Z",
     "text": "Second Iran update: naval drills continue near Bandar Abbas port today",
     "public_metrics": {"like_count": 15}},
    {"id": "3", "author_id": "100", "created_at": "2026-03-01T09:00:00.000Z",
     "text": "Third Iran post with enough text to pass the minimum length gate",
     "public_metrics": {"like_count": 30}},
    {"id": "4", "author_id": "200", "created_at": "2026-03-01T11:00:00.000Z",
     "text": "Iran statement expected within the hour per regional officials",
     "public_metrics": {"like_count": 5}},
    {"id": "5", "author_id": "300", "created_at": "2026-03-01T11:00:00.000Z",
     "text": "Iran rumor from an account that is not on the allowlist at all",
     "public_metrics": {"like_count": 900}},
    {"id": "6", "author_id": "200", "created_at": "2026-02-28T20:00:00.000Z",
     "text": "Iran headline from yesterday evening that is now past the age gate",
     "public_metrics": {"like_count": 90}},
    {"id": "7", "author_id": "200", "created_at": "2026-03-01T11:00:00.000Z",
     "text": "short iran", "public_metrics": {"like_count": 90}},
    {"id": "8", "author_id": "200", "created_at": "2026-03-01T11:30:00.000Z",
     "text": "Hormuz shipping lanes remain open according to maritime trackers",
     "public_metrics": {"retweet_count": 10}}
  ],
  "includes": {"users": [
    {"id": "100", "username": "AuroraIntel"},
    {"id": "200", "username": "intelcrab"},
    {"id": "300", "username": "someone"}
  ]}
}`

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(baseURL string) config.XConfig {
	return config.XConfig{
		BaseURL:        baseURL,
		BearerToken:    "token",
		Accounts:       []string{"auroraintel", "intelcrab"},
		AccountWeights: map[string]float64{"auroraintel": 1.25, "intelcrab": 1.05},
		Keywords:       []string{"iran", "hormuz", "strait of hormuz"},
		MaxResults:     5,
		MaxItems:       6,
		MaxPerAccount:  2,
		MaxAge:         12 * time.Hour,
		MinTextLength:  40,
		MinEngagement:  12,
		MinScore:       22,
		Timeout:        2 * time.Second,
	}
}

func TestBuildQuery(t *testing.T) {
	got := BuildQuery([]string{"@AuroraIntel", "intelcrab", " "}, []string{"iran", "strait of hormuz", ""})
	want := `(from:auroraintel OR from:intelcrab) (iran OR "strait of hormuz") -is:retweet -is:reply -is:quote lang:en`
	if got != want {
		t.Errorf("BuildQuery =\n%s\nwant\n%s", got, want)
	}
}

func TestFetchSelectsHighSignalPosts(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets/search/recent" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), WithClock(func() time.Time { return now }))
	res, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "max_results=10") || !strings.Contains(gotQuery, "expansions=author_id") {
		t.Errorf("query = %s", gotQuery)
	}

	var ids []string
	for _, it := range res.Items {
		ids = append(ids, it.ID)
	}
	if strings.Join(ids, ",") != "x-3,x-1,x-8" {
		t.Fatalf("ids = %v, want [x-3 x-1 x-8]", ids)
	}

	first := res.Items[1]
	if first.Title != "Iran moves additional air defense batteries toward the Strait of Hormuz" {
		t.Errorf("title = %q", first.Title)
	}
	if first.URL != "https://x.com/AuroraIntel/status/1" || first.Source != "@AuroraIntel" {
		t.Errorf("url/source = %q %q", first.URL, first.Source)
	}
	if first.Kind != feed.KindSocialPost || first.Category != "osint" || first.Time != "2026-03-01T11:00:00Z" {
		t.Errorf("item = %+v", first)
	}

	want := map[string]int{"fetched": 8, "users": 3, "passedScore": 4, "selected": 3}
	for k, v := range want {
		if res.Counters[k] != v {
			t.Errorf("counter %s = %d, want %d", k, res.Counters[k], v)
		}
	}
}

func TestFetchSkipsPostsWithoutID(t *testing.T) {
	body := `{
  "data": [
    {"author_id": "100", "created_at": "2026-03-01T11:00:00.000Z",
     "text": "Iran moves additional air defense batteries toward the Strait of Hormuz",
     "public_metrics": {"like_count": 40}},
    {"id": " ", "author_id": "200", "created_at": "2026-03-01T11:10:00.000Z",
     "text": "Hormuz shipping lanes remain open according to maritime trackers",
     "public_metrics": {"like_count": 40}},
    {"id": "9", "author_id": "200", "created_at": "2026-03-01T11:20:00.000Z",
     "text": "Iran navy announces drills in the Strait of Hormuz starting tomorrow",
     "public_metrics": {"like_count": 40}}
  ],
  "includes": {"users": [
    {"id": "100", "username": "AuroraIntel"},
    {"id": "200", "username": "intelcrab"}
  ]}
}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), WithClock(func() time.Time { return now }))
	res, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "x-9" {
		t.Fatalf("items = %+v, want only x-9", res.Items)
	}
	if res.Items[0].URL != "https://x.com/intelcrab/status/9" {
		t.Errorf("url = %q", res.Items[0].URL)
	}
	if res.Counters["skipped"] != 2 {
		t.Errorf("skipped = %d, want 2", res.Counters["skipped"])
	}
}

func TestFetchWithoutTokenIsNotConfigured(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.BearerToken = " "
	a := New(cfg)
	if a.Enabled() {
		t.Fatal("adapter should be disabled")
	}
	if _, err := a.Fetch(context.Background()); !errors.Is(err, apperrors.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestFetchBudgetExhausted(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data": [], "includes": {"users": []}}`))
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), WithBudget(ratelimit.New(1, time.Hour)))
	if _, err := a.Fetch(context.Background()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	_, err := a.Fetch(context.Background())
	if !errors.Is(err, apperrors.ErrRateLimited) || !errors.Is(err, apperrors.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if apperrors.Kind(err) != apperrors.KindRateLimited {
		t.Errorf("kind = %s", apperrors.Kind(err))
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestFetchUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL)).Fetch(context.Background())
	if !errors.Is(err, apperrors.ErrAuth) || apperrors.StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("err = %v", err)
	}
}

func TestScore(t *testing.T) {
	if got := Engagement(10, 3, 2, 1); got != 19 {
		t.Errorf("Engagement = %d, want 19", got)
	}
	if got := Score(19, 2, 1.15); got != 32.75 {
		t.Errorf("Score = %v, want 32.75", got)
	}
}
