package relevance

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"
)

// Market selection result codes. Every failure falls back to the first
// Keep markets of the pool.
const (
	MarketRanked          = "ranked"
	MarketNoItems         = "no_items"
	MarketNoAPIKey        = "no_api_key"
	MarketUnparseable     = "unparseable_fallback"
	MarketBudgetExhausted = "budget_exhausted_fallback"
	MarketCallFailed      = "call_failed_fallback"
)

type MarketConfig struct {
	Model     string
	Topic     string
	Pool      int
	Keep      int
	MaxTokens int64
	Timeout   time.Duration
}

type MarketSelector struct {
	classifier Classifier
	cfg        MarketConfig
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewMarketSelector(classifier Classifier, cfg MarketConfig, limiter *ratelimit.Limiter, m *metrics.Metrics) *MarketSelector {
	if cfg.Pool <= 0 {
		cfg.Pool = 20
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 6
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 80
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &MarketSelector{
		classifier: classifier,
		cfg:        cfg,
		limiter:    limiter,
		metrics:    m,
		logger:     slog.Default().With("component", "market-selector"),
	}
}

// Select picks up to Keep markets from the first Pool entries, ranked by the
// classifier when it answers and in pool order otherwise.
func (s *MarketSelector) Select(ctx context.Context, markets []feed.MarketQuote) ([]feed.MarketQuote, feed.StageReport) {
	report := feed.StageReport{
		Name:     "select",
		Class:    feed.ClassMarkets,
		Input:    len(markets),
		Executed: true,
		Service:  upstreamAnthropic,
	}
	pool := markets[:min(len(markets), s.cfg.Pool)]

	finish := func(selected []feed.MarketQuote, result string, degraded bool) ([]feed.MarketQuote, feed.StageReport) {
		report.Output = len(selected)
		report.Degraded = degraded
		report.Reason = result
		if s.metrics != nil {
			s.metrics.ClassifierCallsTotal.WithLabelValues(string(feed.ClassMarkets), result).Inc()
		}
		return selected, report
	}

	if len(pool) == 0 {
		report.Executed = false
		return finish(nil, MarketNoItems, false)
	}
	if s.classifier == nil {
		report.Executed = false
		return finish(SelectRanked(pool, nil, s.cfg.Keep), MarketNoAPIKey, true)
	}
	if !s.limiter.Allow(BudgetKey) {
		return finish(SelectRanked(pool, nil, s.cfg.Keep), MarketBudgetExhausted, true)
	}

	var reply string
	prompt := marketPrompt(s.cfg.Model, s.cfg.Topic, pool, s.cfg.Keep, s.cfg.MaxTokens)
	err := resilience.WithTimeout(ctx, s.cfg.Timeout, "market-ranking", func(ctx context.Context) error {
		var err error
		reply, err = s.classifier.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		s.logger.Warn("market ranking failed, using volume order", "error", err)
		return finish(SelectRanked(pool, nil, s.cfg.Keep), MarketCallFailed, true)
	}

	ranked := RankedIDs(reply, s.cfg.Keep, len(pool))
	if len(ranked) == 0 {
		return finish(SelectRanked(pool, nil, s.cfg.Keep), MarketUnparseable, true)
	}
	return finish(SelectRanked(pool, ranked, s.cfg.Keep), MarketRanked, false)
}

// SelectRanked takes the pool entries named by ranked (1-based) in order,
// then fills from the pool in its own order up to keep.
func SelectRanked(pool []feed.MarketQuote, ranked []int, keep int) []feed.MarketQuote {
	selected := make([]feed.MarketQuote, 0, min(keep, len(pool)))
	used := make(map[int]bool, keep)
	for _, id := range ranked {
		idx := id - 1
		if idx < 0 || idx >= len(pool) || used[idx] {
			continue
		}
		selected = append(selected, pool[idx])
		used[idx] = true
		if len(selected) >= keep {
			return selected
		}
	}
	for idx, m := range pool {
		if len(selected) >= keep {
			break
		}
		if !used[idx] {
			selected = append(selected, m)
		}
	}
	return selected
}
