package feedcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func batchOf(ids ...string) feed.Batch {
	b := feed.Batch{}
	for _, id := range ids {
		b.Items = append(b.Items, feed.Item{ID: id})
	}
	return b
}

func TestFetcherInvokedOnceWithinTTL(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	var calls int
	fetch := func(ctx context.Context) (feed.Batch, error) {
		calls++
		return batchOf("a"), nil
	}

	first := c.GetOrRefresh(context.Background(), feed.ClassArticles, fetch, time.Minute)
	clk.Advance(59 * time.Second)
	second := c.GetOrRefresh(context.Background(), feed.ClassArticles, fetch, time.Minute)

	if calls != 1 {
		t.Fatalf("fetcher calls = %d, want 1", calls)
	}
	if first.Served != feed.ServedFresh || second.Served != feed.ServedCache {
		t.Errorf("served = %s, %s", first.Served, second.Served)
	}
	if second.Data.Class != feed.ClassArticles || len(second.Data.Items) != 1 {
		t.Errorf("cached batch = %+v", second.Data)
	}

	clk.Advance(time.Second)
	c.GetOrRefresh(context.Background(), feed.ClassArticles, fetch, time.Minute)
	if calls != 2 {
		t.Errorf("fetcher calls after expiry = %d, want 2", calls)
	}
}

func TestStaleFallbackOnFailure(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	ok := func(ctx context.Context) (feed.Batch, error) { return batchOf("a", "b"), nil }
	fail := func(ctx context.Context) (feed.Batch, error) {
		return feed.Batch{}, apperrors.FromStatus("rss", 503, "")
	}

	stored := c.GetOrRefresh(context.Background(), feed.ClassArticles, ok, time.Minute)
	clk.Advance(10 * time.Minute)
	res := c.GetOrRefresh(context.Background(), feed.ClassArticles, fail, time.Minute)

	if res.Served != feed.ServedStale || !res.Degraded || res.Reason != apperrors.KindTransient {
		t.Fatalf("res = %+v", res)
	}
	if len(res.Data.Items) != 2 {
		t.Errorf("stale items = %d, want 2", len(res.Data.Items))
	}
	if !res.ExpiresAt.Equal(stored.ExpiresAt) {
		t.Errorf("expiry moved on failure: %v -> %v", stored.ExpiresAt, res.ExpiresAt)
	}
	if st := c.Stats(); st.Stale != 1 || st.Slots[0].Fresh {
		t.Errorf("stats = %+v", st)
	}
}

func TestEmptyWhenNothingCached(t *testing.T) {
	c := New()
	res := c.GetOrRefresh(context.Background(), feed.ClassSocial, func(ctx context.Context) (feed.Batch, error) {
		return feed.Batch{}, apperrors.FromStatus("x", 401, "")
	}, time.Minute)
	if res.Served != feed.ServedEmpty || !res.Degraded || res.Reason != apperrors.KindAuth {
		t.Fatalf("res = %+v", res)
	}
	if res.Data.Class != feed.ClassSocial || res.Data.Len() != 0 {
		t.Errorf("data = %+v", res.Data)
	}
}

func TestSingleFlightPerClass(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (feed.Batch, error) {
		calls.Add(1)
		<-release
		return batchOf("m"), nil
	}

	var wg sync.WaitGroup
	results := make([]feed.StageResult[feed.Batch], 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.GetOrRefresh(context.Background(), feed.ClassMarkets, fetch, time.Minute)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("fetcher calls = %d, want 1", calls.Load())
	}
	for i, r := range results {
		if len(r.Data.Items) != 1 {
			t.Errorf("caller %d got %+v", i, r)
		}
	}
}

func TestRefreshSurvivesCallerCancel(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.GetOrRefresh(ctx, feed.ClassArticles, func(ctx context.Context) (feed.Batch, error) {
		if ctx.Err() != nil {
			return feed.Batch{}, ctx.Err()
		}
		return batchOf("a"), nil
	}, time.Minute)
	if res.Served != feed.ServedFresh {
		t.Fatalf("cancelled caller aborted the shared refresh: %+v", res)
	}
}

func TestInvalidateKeepsFallback(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	ctx := context.Background()
	c.GetOrRefresh(ctx, feed.ClassArticles, func(context.Context) (feed.Batch, error) { return batchOf("a"), nil }, time.Hour)
	c.GetOrRefresh(ctx, feed.ClassSocial, func(context.Context) (feed.Batch, error) { return batchOf("s"), nil }, time.Hour)

	if n := c.Invalidate(feed.ClassArticles); n != 1 {
		t.Fatalf("invalidated %d slots, want 1", n)
	}
	res := c.GetOrRefresh(ctx, feed.ClassArticles, func(context.Context) (feed.Batch, error) {
		return feed.Batch{}, errors.New("down")
	}, time.Hour)
	if res.Served != feed.ServedStale || len(res.Data.Items) != 1 {
		t.Errorf("after invalidate res = %+v", res)
	}
	if res := c.GetOrRefresh(ctx, feed.ClassSocial, nil, time.Hour); res.Served != feed.ServedCache {
		t.Errorf("social should still be fresh: %+v", res)
	}

	c.Purge()
	if st := c.Stats(); len(st.Slots) != 0 {
		t.Errorf("slots after purge = %d", len(st.Slots))
	}
}

func TestInvalidateConcurrentWithRefresh(t *testing.T) {
	c := New()
	fail := atomic.Bool{}
	fetch := func(ctx context.Context) (feed.Batch, error) {
		if fail.Load() {
			return feed.Batch{}, apperrors.ErrTransient
		}
		return batchOf("a"), nil
	}
	c.GetOrRefresh(context.Background(), feed.ClassArticles, fetch, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Invalidate()
		}()
		go func(i int) {
			defer wg.Done()
			fail.Store(i%2 == 0)
			res := c.GetOrRefresh(context.Background(), feed.ClassArticles, fetch, time.Minute)
			if res.Data.Len() != 1 {
				t.Errorf("items = %d, want the stored batch", res.Data.Len())
			}
			_ = c.Stats()
		}(i)
	}
	wg.Wait()
}
