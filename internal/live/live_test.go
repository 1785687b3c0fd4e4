package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feedcache"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/health"
)

type stubFeed struct {
	snap        *pipeline.Snapshot
	err         error
	invalidated [][]feed.Class
}

func (s *stubFeed) Live(ctx context.Context) (*pipeline.Snapshot, error) {
	return s.snap, s.err
}

func (s *stubFeed) Invalidate(ctx context.Context, classes ...feed.Class) int {
	s.invalidated = append(s.invalidated, classes)
	if len(classes) == 0 {
		return 3
	}
	return len(classes)
}

func (s *stubFeed) CacheStats() feedcache.Stats {
	return feedcache.Stats{Hits: 4, Misses: 1, Slots: []feedcache.SlotStats{{Class: feed.ClassArticles, Items: 7, Fresh: true}}}
}

func newServer(f *stubFeed, token string) http.Handler {
	h := NewHandler(f, Config{CacheMaxAge: 55 * time.Second})
	return NewRouter(h, Routes{Health: health.NewChecker()}, RouterConfig{AdminToken: token, RequestTimeout: time.Second})
}

func TestLiveWritesSnapshot(t *testing.T) {
	body := `{"news":[],"markets":[],"meta":{"degraded":true}}`
	srv := newServer(&stubFeed{snap: &pipeline.Snapshot{Body: []byte(body), Degraded: true, Origin: pipeline.OriginLastGood}}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != body {
		t.Errorf("body = %s", rec.Body.String())
	}
	for header, want := range map[string]string{
		"Cache-Control":   "public, max-age=55",
		"X-Feed-Degraded": "true",
		"X-Feed-Origin":   "last_good",
		"Content-Type":    "application/json",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestLiveUnavailable(t *testing.T) {
	err := apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "no live response available")
	srv := newServer(&stubFeed{err: err}, "")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/live", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp["error"] == "" {
		t.Errorf("error body = %v (%v)", resp, err)
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Error("failures must not be cacheable")
	}
}

func TestCacheInvalidate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		status  int
		classes []feed.Class
	}{
		{"all classes", "", http.StatusOK, nil},
		{"single class", "?class=markets", http.StatusOK, []feed.Class{feed.ClassMarkets}},
		{"comma list", "?class=articles,social", http.StatusOK, []feed.Class{feed.ClassArticles, feed.ClassSocial}},
		{"unknown class", "?class=weather", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFeed{}
			rec := httptest.NewRecorder()
			newServer(f, "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate"+tt.query, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				if len(f.invalidated) != 0 {
					t.Error("bad request must not invalidate")
				}
				return
			}
			if len(f.invalidated) != 1 || len(f.invalidated[0]) != len(tt.classes) {
				t.Fatalf("invalidated = %v, want %v", f.invalidated, tt.classes)
			}
			for i, c := range tt.classes {
				if f.invalidated[0][i] != c {
					t.Errorf("class %d = %s, want %s", i, f.invalidated[0][i], c)
				}
			}
		})
	}
}

func TestCacheInvalidateRequiresAdminToken(t *testing.T) {
	f := &stubFeed{}
	srv := newServer(f, "s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || len(f.invalidated) != 1 {
		t.Fatalf("valid token: status = %d, invalidated = %v", rec.Code, f.invalidated)
	}

	// The live feed stays public.
	f.snap = &pipeline.Snapshot{Body: []byte(`{}`), Origin: pipeline.OriginLive}
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live with admin token configured: status = %d", rec.Code)
	}
}

func TestCacheStats(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(&stubFeed{}, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st feedcache.Stats
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Hits != 4 || len(st.Slots) != 1 || st.Slots[0].Items != 7 {
		t.Errorf("stats = %+v", st)
	}
}

func TestHealthRoutes(t *testing.T) {
	srv := newServer(&stubFeed{}, "")
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(&stubFeed{}, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "invalidated") {
		t.Error("GET must not invalidate")
	}
}
