// Package feedcache keeps the last successful batch per source class with a
// TTL. Refreshes are single-flighted per class, and an expired batch stays
// available as the fallback when a refresh fails.
package feedcache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/metrics"
)

// Fetcher produces a fresh batch for one class.
type Fetcher func(ctx context.Context) (feed.Batch, error)

// A stored slot is never modified; Invalidate swaps in an expired copy so
// readers may use a slot after releasing the lock.
type slot struct {
	batch     feed.Batch
	storedAt  time.Time
	expiresAt time.Time
}

type Cache struct {
	mu    sync.RWMutex
	slots map[feed.Class]*slot
	group singleflight.Group
	now   func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	stale  atomic.Int64
	empty  atomic.Int64

	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		slots:  make(map[feed.Class]*slot),
		now:    time.Now,
		logger: slog.Default().With("component", "feedcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrRefresh returns the cached batch for class while it is fresh.
// Otherwise it runs fetch once for all concurrent callers. A failed fetch
// falls back to the previous batch regardless of its age, leaving the
// expiry untouched, and to an empty batch when there is none. It never
// returns an error; failures show up as Degraded with a Reason.
func (c *Cache) GetOrRefresh(ctx context.Context, class feed.Class, fetch Fetcher, ttl time.Duration) feed.StageResult[feed.Batch] {
	if res, ok := c.fresh(class); ok {
		c.hits.Add(1)
		c.observe(class, "hit")
		return res
	}
	c.misses.Add(1)
	c.observe(class, "miss")

	v, _, _ := c.group.Do(string(class), func() (any, error) {
		// Another flight may have stored while this caller waited.
		if res, ok := c.fresh(class); ok {
			return res, nil
		}
		return c.refresh(context.WithoutCancel(ctx), class, fetch, ttl), nil
	})
	return v.(feed.StageResult[feed.Batch])
}

func (c *Cache) fresh(class feed.Class) (feed.StageResult[feed.Batch], bool) {
	c.mu.RLock()
	s, ok := c.slots[class]
	c.mu.RUnlock()
	if !ok || !c.now().Before(s.expiresAt) {
		return feed.StageResult[feed.Batch]{}, false
	}
	return feed.StageResult[feed.Batch]{
		Data:      s.batch,
		Served:    feed.ServedCache,
		StoredAt:  s.storedAt,
		ExpiresAt: s.expiresAt,
	}, true
}

func (c *Cache) refresh(ctx context.Context, class feed.Class, fetch Fetcher, ttl time.Duration) feed.StageResult[feed.Batch] {
	batch, err := fetch(ctx)
	if err == nil {
		now := c.now()
		batch.Class = class
		s := &slot{batch: batch, storedAt: now, expiresAt: now.Add(ttl)}
		c.mu.Lock()
		c.slots[class] = s
		c.mu.Unlock()
		return feed.StageResult[feed.Batch]{
			Data:      batch,
			Served:    feed.ServedFresh,
			StoredAt:  s.storedAt,
			ExpiresAt: s.expiresAt,
		}
	}

	reason := apperrors.Kind(err)
	c.mu.RLock()
	prev, ok := c.slots[class]
	c.mu.RUnlock()
	if ok {
		c.stale.Add(1)
		c.logger.Warn("refresh failed, serving previous batch",
			"class", class,
			"kind", reason,
			"age", c.now().Sub(prev.storedAt).Round(time.Second),
			"error", err,
		)
		return feed.StageResult[feed.Batch]{
			Data:      prev.batch,
			Degraded:  true,
			Reason:    reason,
			Served:    feed.ServedStale,
			StoredAt:  prev.storedAt,
			ExpiresAt: prev.expiresAt,
		}
	}

	c.empty.Add(1)
	c.logger.Warn("refresh failed with nothing cached", "class", class, "kind", reason, "error", err)
	return feed.StageResult[feed.Batch]{
		Data:     feed.Batch{Class: class},
		Degraded: true,
		Reason:   reason,
		Served:   feed.ServedEmpty,
	}
}

func (c *Cache) observe(class feed.Class, result string) {
	if c.metrics != nil {
		c.metrics.CacheLookupsTotal.WithLabelValues(string(class), result).Inc()
	}
}

// Invalidate expires the named classes, or every class when none are given.
// Expired batches remain as fallback values. It returns the number of slots
// touched.
func (c *Cache) Invalidate(classes ...feed.Class) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for class, s := range c.slots {
		if len(classes) > 0 && !contains(classes, class) {
			continue
		}
		expired := *s
		expired.expiresAt = now
		c.slots[class] = &expired
		n++
	}
	return n
}

// Purge drops every slot, fallbacks included.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.slots = make(map[feed.Class]*slot)
	c.mu.Unlock()
}

type SlotStats struct {
	Class     feed.Class `json:"class"`
	Items     int        `json:"items"`
	Fresh     bool       `json:"fresh"`
	StoredAt  time.Time  `json:"storedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

type Stats struct {
	Hits   int64       `json:"hits"`
	Misses int64       `json:"misses"`
	Stale  int64       `json:"stale"`
	Empty  int64       `json:"empty"`
	Slots  []SlotStats `json:"slots"`
}

func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Stale:  c.stale.Load(),
		Empty:  c.empty.Load(),
		Slots:  []SlotStats{},
	}
	now := c.now()
	c.mu.RLock()
	for class, s := range c.slots {
		st.Slots = append(st.Slots, SlotStats{
			Class:     class,
			Items:     s.batch.Len(),
			Fresh:     now.Before(s.expiresAt),
			StoredAt:  s.storedAt,
			ExpiresAt: s.expiresAt,
		})
	}
	c.mu.RUnlock()
	sort.Slice(st.Slots, func(i, j int) bool { return st.Slots[i].Class < st.Slots[j].Class })
	return st
}

func contains(classes []feed.Class, c feed.Class) bool {
	for _, x := range classes {
		if x == c {
			return true
		}
	}
	return false
}
