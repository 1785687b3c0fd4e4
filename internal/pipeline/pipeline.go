// Package pipeline runs the per-class fetch chains behind the cache and
// turns their results into the encoded live response. When assembly fails
// it answers from the last good response, in process first and then from
// the shared mirror.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feedcache"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/market"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/tracing"
)

// Response origins.
const (
	OriginLive     = "live"
	OriginLastGood = "last_good"
	OriginMirror   = "mirror"
)

const (
	historyConcurrency = 3
	mirrorTimeout      = time.Second
)

type Config struct {
	ArticlesTTL time.Duration
	SocialTTL   time.Duration
	MarketsTTL  time.Duration
	LastGoodTTL time.Duration

	ArticlesTimeout time.Duration
	SocialTimeout   time.Duration
	MarketsTimeout  time.Duration
	HistoryTimeout  time.Duration

	FilterArticles bool
	FilterSocial   bool
	RankMarkets    bool
	MarketCap      int
}

// Deps are the collaborators. Articles, Markets, Cache and Assembler are
// required; the rest may be nil.
type Deps struct {
	Cache     *feedcache.Cache
	Articles  ItemSource
	Social    SocialSource
	Markets   MarketSource
	Filter    ItemFilter
	Ranker    MarketRanker
	Assembler Assembler
	Mirror    Mirror
	Tracker   analytics.Tracker
	Metrics   *metrics.Metrics
	Breakers  map[string]*resilience.CircuitBreaker
	Now       func() time.Time
}

// Snapshot is an encoded live response.
type Snapshot struct {
	Body         []byte
	Degraded     bool
	Origin       string
	NewsCount    int
	MarketsCount int
	GeneratedAt  time.Time
}

type Pipeline struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu       sync.RWMutex
	lastGood *Snapshot
}

func New(cfg Config, deps Deps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if cfg.MarketCap <= 0 {
		cfg.MarketCap = 6
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		now:  now,
	}
}

// Live refreshes the three classes concurrently and returns the encoded
// response. It fails only when assembly fails and no last good response
// is available.
func (p *Pipeline) Live(ctx context.Context) (*Snapshot, error) {
	start := p.now()
	ctx, span := tracing.StartChildSpan(ctx, "pipeline.live")
	defer span.End()

	in := p.refreshAll(ctx)
	in.Now = start

	snap, err := p.build(in)
	if err == nil {
		p.remember(ctx, snap)
		p.observeResponse(ctx, snap, start)
		span.SetAttr("origin", snap.Origin)
		return snap, nil
	}

	p.log(ctx).Error("assembly failed, falling back to last good response", "error", err)
	if snap, ok := p.inProcess(); ok {
		p.observeResponse(ctx, snap, start)
		span.SetAttr("origin", snap.Origin)
		return snap, nil
	}
	if snap, ok := p.fromMirror(ctx); ok {
		p.observeResponse(ctx, snap, start)
		span.SetAttr("origin", snap.Origin)
		return snap, nil
	}
	return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("no live response available: %v", err))
}

// refreshAll runs one cache-gated refresh per class. Each class is
// isolated: a failure only degrades that class.
func (p *Pipeline) refreshAll(ctx context.Context) assembler.Input {
	var in assembler.Input
	var g errgroup.Group
	g.Go(func() error {
		in.Articles = p.runClass(ctx, feed.ClassArticles, p.fetchArticles, p.cfg.ArticlesTTL)
		return nil
	})
	g.Go(func() error {
		if p.deps.Social == nil || !p.deps.Social.Enabled() {
			in.Social = p.disabled(ctx, feed.ClassSocial)
			return nil
		}
		in.Social = p.runClass(ctx, feed.ClassSocial, p.fetchSocial, p.cfg.SocialTTL)
		return nil
	})
	g.Go(func() error {
		in.Markets = p.runClass(ctx, feed.ClassMarkets, p.fetchMarkets, p.cfg.MarketsTTL)
		return nil
	})
	_ = g.Wait()
	return in
}

func (p *Pipeline) runClass(ctx context.Context, class feed.Class, fetch feedcache.Fetcher, ttl time.Duration) feed.StageResult[feed.Batch] {
	start := p.now()
	ctx, span := tracing.StartChildSpan(ctx, "class."+string(class))
	defer span.End()

	res := p.deps.Cache.GetOrRefresh(ctx, class, fetch, ttl)
	span.SetAttr("served", string(res.Served))
	span.SetAttr("items", res.Data.Len())
	p.observeClass(ctx, class, res, p.now().Sub(start))
	return res
}

func (p *Pipeline) disabled(ctx context.Context, class feed.Class) feed.StageResult[feed.Batch] {
	res := feed.StageResult[feed.Batch]{
		Data: feed.Batch{
			Class: class,
			Stages: []feed.StageReport{{
				Name:   "fetch",
				Class:  class,
				Reason: apperrors.KindNotConfigured,
			}},
		},
		Served: feed.ServedDisabled,
		Reason: apperrors.KindNotConfigured,
	}
	p.observeClass(ctx, class, res, 0)
	return res
}

func (p *Pipeline) fetchArticles(ctx context.Context) (feed.Batch, error) {
	return p.fetchItems(ctx, feed.ClassArticles, p.deps.Articles, p.cfg.ArticlesTimeout, p.cfg.FilterArticles)
}

func (p *Pipeline) fetchSocial(ctx context.Context) (feed.Batch, error) {
	return p.fetchItems(ctx, feed.ClassSocial, p.deps.Social, p.cfg.SocialTimeout, p.cfg.FilterSocial)
}

func (p *Pipeline) fetchItems(ctx context.Context, class feed.Class, src ItemSource, timeout time.Duration, filter bool) (feed.Batch, error) {
	var items []feed.Item
	var counters map[string]int
	err := resilience.Call(ctx, p.breaker(src.Name()), timeout, func(ctx context.Context) error {
		res, err := src.Fetch(ctx)
		if err != nil {
			return err
		}
		items, counters = res.Items, res.Counters
		return nil
	})
	if err != nil {
		p.adapterError(ctx, src.Name(), err)
		return feed.Batch{}, fmt.Errorf("%s fetch: %w", class, err)
	}

	stages := []feed.StageReport{{
		Name:     "fetch",
		Class:    class,
		Input:    counters["parsed"] + counters["fetched"],
		Output:   len(items),
		Executed: true,
		Service:  src.Name(),
		Counters: counters,
	}}
	if merged, ok := counters["merged"]; ok {
		stages = append(stages, feed.StageReport{
			Name:     "dedupe",
			Class:    class,
			Input:    counters["matched"],
			Output:   merged,
			Executed: true,
		})
	}

	if filter && p.deps.Filter != nil {
		res, meta := p.deps.Filter.Apply(ctx, class, items)
		stages = append(stages, feed.StageReport{
			Name:      "relevance",
			Class:     class,
			Input:     len(items),
			Output:    len(res.Data),
			Executed:  meta.LLMApplied,
			Degraded:  res.Degraded,
			Reason:    res.Reason,
			Service:   "anthropic",
			Relevance: &meta,
		})
		items = res.Data
	}

	return feed.Batch{Class: class, Items: items, Stages: stages, FetchedAt: p.now()}, nil
}

func (p *Pipeline) fetchMarkets(ctx context.Context) (feed.Batch, error) {
	src := p.deps.Markets
	var quotes []feed.MarketQuote
	var counters map[string]int
	err := resilience.Call(ctx, p.breaker(src.Name()), p.cfg.MarketsTimeout, func(ctx context.Context) error {
		q, c, err := src.Fetch(ctx)
		if err != nil {
			return err
		}
		quotes, counters = q, c
		return nil
	})
	if err != nil {
		p.adapterError(ctx, src.Name(), err)
		return feed.Batch{}, fmt.Errorf("markets fetch: %w", err)
	}

	stages := []feed.StageReport{{
		Name:     "fetch",
		Class:    feed.ClassMarkets,
		Input:    counters["events"],
		Output:   len(quotes),
		Executed: true,
		Service:  src.Name(),
		Counters: counters,
	}}

	selected := quotes
	if p.cfg.RankMarkets && p.deps.Ranker != nil {
		var report feed.StageReport
		selected, report = p.deps.Ranker.Select(ctx, quotes)
		stages = append(stages, report)
	}
	if len(selected) > p.cfg.MarketCap {
		selected = selected[:p.cfg.MarketCap]
	}
	// Quotes are copied so cached pool entries never share History.
	selected = append([]feed.MarketQuote(nil), selected...)

	if src.HistoryEnabled() {
		stages = append(stages, p.attachHistory(ctx, selected))
	}
	return feed.Batch{Class: feed.ClassMarkets, Markets: selected, Stages: stages, FetchedAt: p.now()}, nil
}

// attachHistory fills History and Direction in place. A market whose
// history cannot be fetched keeps no history and a flat direction.
func (p *Pipeline) attachHistory(ctx context.Context, quotes []feed.MarketQuote) feed.StageReport {
	src := p.deps.Markets
	var failed, withHistory int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyConcurrency)
	for i := range quotes {
		token := quotes[i].ClobTokenID
		if token == "" {
			quotes[i].Direction = feed.DirectionFlat
			continue
		}
		g.Go(func() error {
			var points []feed.PricePoint
			err := resilience.WithTimeout(gctx, p.cfg.HistoryTimeout, "price-history", func(ctx context.Context) error {
				var err error
				points, err = src.History(ctx, token)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				p.adapterError(ctx, "polymarket-clob", err)
				quotes[i].Direction = feed.DirectionFlat
				return nil
			}
			if len(points) > 0 {
				withHistory++
			}
			quotes[i].History = points
			quotes[i].Direction = market.Direction(points)
			return nil
		})
	}
	_ = g.Wait()

	report := feed.StageReport{
		Name:     "history",
		Class:    feed.ClassMarkets,
		Input:    len(quotes),
		Output:   withHistory,
		Executed: true,
		Service:  "polymarket-clob",
		Counters: map[string]int{"failed": failed},
	}
	if failed > 0 {
		report.Reason = "partial"
	}
	return report
}

// build assembles and encodes. A panic in either step is an error.
func (p *Pipeline) build(in assembler.Input) (snap *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = fmt.Errorf("%w: assembly panicked: %v", apperrors.ErrInternal, r)
		}
	}()
	resp, err := p.deps.Assembler.Assemble(in)
	if err != nil {
		return nil, fmt.Errorf("assembling response: %w", err)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding response: %v", apperrors.ErrInternal, err)
	}
	return &Snapshot{
		Body:         body,
		Degraded:     resp.Meta.Degraded,
		Origin:       OriginLive,
		NewsCount:    resp.Meta.NewsCount,
		MarketsCount: resp.Meta.MarketsCount,
		GeneratedAt:  in.Now,
	}, nil
}

func (p *Pipeline) remember(ctx context.Context, snap *Snapshot) {
	p.mu.Lock()
	p.lastGood = snap
	p.mu.Unlock()

	if p.deps.Mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	if err := p.deps.Mirror.Store(mctx, snap.Body, p.cfg.LastGoodTTL); err != nil {
		p.log(ctx).Warn("mirroring last good response failed", "error", err)
	}
}

func (p *Pipeline) inProcess() (*Snapshot, bool) {
	p.mu.RLock()
	last := p.lastGood
	p.mu.RUnlock()
	if last == nil {
		return nil, false
	}
	if p.cfg.LastGoodTTL > 0 && p.now().Sub(last.GeneratedAt) > p.cfg.LastGoodTTL {
		return nil, false
	}
	out := *last
	out.Origin = OriginLastGood
	out.Degraded = true
	return &out, true
}

func (p *Pipeline) fromMirror(ctx context.Context) (*Snapshot, bool) {
	if p.deps.Mirror == nil {
		return nil, false
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	body, found, err := p.deps.Mirror.Load(mctx)
	if err != nil {
		p.log(ctx).Warn("loading mirrored response failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var counts struct {
		Meta struct {
			NewsCount    int `json:"newsCount"`
			MarketsCount int `json:"marketsCount"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &counts); err != nil {
		p.log(ctx).Warn("mirrored response is not valid JSON", "error", err)
		return nil, false
	}
	return &Snapshot{
		Body:         body,
		Degraded:     true,
		Origin:       OriginMirror,
		NewsCount:    counts.Meta.NewsCount,
		MarketsCount: counts.Meta.MarketsCount,
		GeneratedAt:  p.now(),
	}, true
}

// Invalidate drops the cached classes (all when none are named) and the
// mirrored response. It returns how many cache slots were removed.
func (p *Pipeline) Invalidate(ctx context.Context, classes ...feed.Class) int {
	n := p.deps.Cache.Invalidate(classes...)
	if p.deps.Mirror != nil {
		if _, err := p.deps.Mirror.Clear(ctx); err != nil {
			p.log(ctx).Warn("clearing mirrored response failed", "error", err)
		}
	}
	return n
}

func (p *Pipeline) CacheStats() feedcache.Stats {
	return p.deps.Cache.Stats()
}

func (p *Pipeline) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx).With("component", "pipeline")
}

func (p *Pipeline) breaker(name string) *resilience.CircuitBreaker {
	return p.deps.Breakers[name]
}

func (p *Pipeline) adapterError(ctx context.Context, adapter string, err error) {
	kind := apperrors.Kind(err)
	level := slog.LevelWarn
	if kind == apperrors.KindAuth {
		level = slog.LevelError
	}
	p.log(ctx).Log(ctx, level, "upstream failed",
		"upstream", adapter,
		"kind", kind,
		"status", apperrors.StatusOf(err),
		"error", err,
	)
	if p.deps.Metrics != nil {
		p.deps.Metrics.AdapterErrorsTotal.WithLabelValues(adapter, kind).Inc()
	}
}

func (p *Pipeline) observeClass(ctx context.Context, class feed.Class, res feed.StageResult[feed.Batch], elapsed time.Duration) {
	if m := p.deps.Metrics; m != nil {
		m.ClassRefreshTotal.WithLabelValues(string(class), string(res.Served), res.Reason).Inc()
		m.ClassRefreshDuration.WithLabelValues(string(class)).Observe(elapsed.Seconds())
	}
	if p.deps.Tracker == nil {
		return
	}
	ev := analytics.RefreshEvent{
		Type:      analytics.EventClassRefresh,
		Class:     string(class),
		Served:    string(res.Served),
		Degraded:  res.Degraded,
		Reason:    res.Reason,
		Items:     res.Data.Len(),
		LatencyMs: elapsed.Milliseconds(),
		Timestamp: p.now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
	if res.Served == feed.ServedFresh {
		for _, s := range res.Data.Stages {
			if s.Relevance != nil {
				ev.Relevance = s.Relevance.Result
			}
		}
	}
	p.deps.Tracker.Track(string(class), ev)
}

func (p *Pipeline) observeResponse(ctx context.Context, snap *Snapshot, start time.Time) {
	if m := p.deps.Metrics; m != nil {
		m.FeedItems.WithLabelValues("news").Set(float64(snap.NewsCount))
		m.FeedItems.WithLabelValues("markets").Set(float64(snap.MarketsCount))
		if snap.Origin != OriginLive {
			m.LastGoodServedTotal.WithLabelValues(snap.Origin).Inc()
		}
	}
	if p.deps.Tracker == nil {
		return
	}
	p.deps.Tracker.Track("live", analytics.RequestEvent{
		Type:         analytics.EventLiveRequest,
		Origin:       snap.Origin,
		Degraded:     snap.Degraded,
		NewsCount:    snap.NewsCount,
		MarketsCount: snap.MarketsCount,
		LatencyMs:    p.now().Sub(start).Milliseconds(),
		Timestamp:    p.now().UTC(),
		RequestID:    logger.RequestID(ctx),
	})
}
