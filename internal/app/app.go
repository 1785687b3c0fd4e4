// Package app builds the feed pipeline, its optional infrastructure and the
// HTTP handler from configuration. Both the server and the operator CLI
// start from here.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/assembler"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feedcache"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/live"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/relevance"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source/polymarket"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source/rss"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/source/xsearch"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"
)

// Adapter breakers trip after this many consecutive failures.
const (
	breakerFailures = 5
	breakerReset    = 30 * time.Second
	fetchSlack      = 2 * time.Second
)

type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Markets  *polymarket.Adapter
	Handler  http.Handler
	Health   *health.Checker
	Metrics  *metrics.Metrics

	// Aggregator is set when refresh events stay in process, that is when
	// kafka is disabled.
	Aggregator *analytics.Aggregator

	closers []func() error
	logger  *slog.Logger
}

// New wires everything. Redis and kafka are optional: a redis that cannot
// be reached leaves the mirror off instead of failing startup.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config: cfg,
		Health: health.NewChecker(),
		logger: slog.Default().With("component", "app"),
	}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	breakers := make(map[string]*resilience.CircuitBreaker)
	for _, name := range []string{"rss", "x", "polymarket"} {
		cb := resilience.NewCircuitBreaker(name, resilience.CircuitBreakerConfig{
			FailureThreshold:    breakerFailures,
			ResetTimeout:        breakerReset,
			HalfOpenMaxRequests: 1,
			OnStateChange:       a.Metrics.BreakerObserver(),
		})
		breakers[name] = cb
		a.Health.Register("upstream-"+name, health.BreakerCheck(cb))
	}

	x := xsearch.New(cfg.Sources.X)
	if !x.Enabled() {
		a.logger.Info("X_BEARER_TOKEN not set, social class disabled")
	}
	a.Markets = polymarket.New(cfg.Sources.Polymarket, cfg.Sources.Keywords)

	var classifier relevance.Classifier
	if c := relevance.NewAnthropicClassifier(cfg.Relevance.APIKey, cfg.Relevance.BaseURL, cfg.Relevance.Timeout); c != nil {
		classifier = c
	} else {
		a.logger.Warn("ANTHROPIC_API_KEY not set, relevance filter passes items through")
	}
	budget := ratelimit.New(cfg.Relevance.CallsPerWindow, cfg.Relevance.BudgetWindow)
	filter := relevance.NewFilter(classifier, relevance.Config{
		Model:         cfg.Relevance.Model,
		BatchSize:     cfg.Relevance.BatchSize,
		MaxConcurrent: cfg.Relevance.MaxConcurrent,
		MaxTokens:     cfg.Relevance.MaxTokens,
		Timeout:       cfg.Relevance.Timeout,
	}, budget, a.Metrics)
	ranker := relevance.NewMarketSelector(classifier, relevance.MarketConfig{
		Model:     cfg.Relevance.MarketModel,
		Pool:      cfg.Relevance.MarketPool,
		Keep:      cfg.Assembler.MarketCap,
		MaxTokens: cfg.Relevance.MaxTokens,
		Timeout:   cfg.Relevance.Timeout,
	}, budget, a.Metrics)

	tracker := a.tracker(ctx)

	var mirror pipeline.Mirror
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, last good mirror disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			mirror = pipeline.NewRedisMirror(rc)
			a.Health.Register("redis", health.OptionalPingCheck(rc.Ping))
			a.closers = append(a.closers, rc.Close)
		}
	}

	articles, social, markets := ClassTimeouts(cfg)
	a.Pipeline = pipeline.New(pipeline.Config{
		ArticlesTTL:     cfg.Cache.ArticlesTTL,
		SocialTTL:       cfg.Cache.SocialTTL,
		MarketsTTL:      cfg.Cache.MarketsTTL,
		LastGoodTTL:     cfg.Cache.LastGoodTTL,
		ArticlesTimeout: articles,
		SocialTimeout:   social,
		MarketsTimeout:  markets,
		HistoryTimeout:  cfg.Sources.Polymarket.HistoryTimeout,
		FilterArticles:  cfg.Relevance.FilterArticles,
		FilterSocial:    cfg.Relevance.FilterSocial,
		RankMarkets:     cfg.Relevance.RankMarkets,
		MarketCap:       cfg.Assembler.MarketCap,
	}, pipeline.Deps{
		Cache:    feedcache.New(feedcache.WithMetrics(a.Metrics)),
		Articles: rss.New(cfg.Sources.RSS, cfg.Sources.Keywords),
		Social:   x,
		Markets:  a.Markets,
		Filter:   filter,
		Ranker:   ranker,
		Assembler: assembler.New(assembler.Config{
			FeedCap:        cfg.Assembler.FeedCap,
			MarketCap:      cfg.Assembler.MarketCap,
			ReservedSocial: cfg.Assembler.ReservedSocial,
		}),
		Mirror:   mirror,
		Tracker:  tracker,
		Metrics:  a.Metrics,
		Breakers: breakers,
	})

	routes := live.Routes{Health: a.Health, Metrics: a.Metrics}
	if a.Aggregator != nil {
		routes.Analytics = analytics.NewHandler(a.Aggregator)
	}
	a.Handler = live.NewRouter(
		live.NewHandler(a.Pipeline, live.Config{CacheMaxAge: cfg.HTTP.CacheMaxAge}),
		routes,
		live.RouterConfig{
			AllowOrigins:   cfg.HTTP.AllowOrigins,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			AdminToken:     cfg.HTTP.AdminToken,
		},
	)
	return a, nil
}

// tracker publishes refresh events to kafka when enabled and otherwise
// aggregates them in process.
func (a *App) tracker(ctx context.Context) analytics.Tracker {
	cfg := a.Config
	if !cfg.Kafka.Enabled {
		a.Aggregator = analytics.NewAggregator(nil)
		return a.Aggregator
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RefreshEvents)
	bc := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	bc.Start(bctx)
	a.closers = append(a.closers,
		producer.Close,
		func() error {
			cancel()
			bc.Close()
			return nil
		},
	)
	a.logger.Info("publishing refresh events", "topic", cfg.Kafka.Topics.RefreshEvents, "brokers", cfg.Kafka.Brokers)
	return bc
}

// ClassTimeouts bounds each class fetch. RSS feeds are fetched in rounds of
// Workers, each round bounded by the per-feed timeout.
func ClassTimeouts(cfg *config.Config) (articles, social, markets time.Duration) {
	workers := cfg.Sources.RSS.Workers
	if workers <= 0 {
		workers = 1
	}
	rounds := (len(cfg.Sources.RSS.Feeds) + workers - 1) / workers
	if rounds < 1 {
		rounds = 1
	}
	articles = time.Duration(rounds)*cfg.Sources.RSS.Timeout + fetchSlack
	social = cfg.Sources.X.Timeout + fetchSlack
	markets = cfg.Sources.Polymarket.Timeout + fetchSlack
	return articles, social, markets
}

// Close releases the infrastructure in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
