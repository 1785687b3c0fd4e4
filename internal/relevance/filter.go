// Package relevance asks a language-model classifier which items matter to
// the dashboard. Every failure path returns the input unchanged: a
// classifier problem can hide nothing the user would otherwise see.
package relevance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/textclean"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"
)

// Result codes recorded in RelevanceMeta.Result and per batch.
const (
	ResultNotRun          = "not_run"
	ResultNoItems         = "no_items"
	ResultNoAPIKey        = "no_api_key"
	ResultFilteredNone    = "filtered_none"
	ResultFilteredIndices = "filtered_indices"
	ResultUnparseable     = "unparseable_passthrough"
	ResultParseFailed     = "parse_failed_passthrough"
	ResultNetworkError    = "network_error_passthrough"
	ResultRequestFailed   = "request_failed_passthrough"
	ResultBudgetExhausted = "budget_exhausted_passthrough"
	ResultMixed           = "mixed"
)

// BudgetKey is the limiter key shared by every classifier call.
const BudgetKey = "anthropic"

const errorDetailLen = 180

type Config struct {
	Model         string
	Topic         string
	BatchSize     int
	MaxConcurrent int
	MaxTokens     int64
	Timeout       time.Duration
}

type Filter struct {
	classifier Classifier
	cfg        Config
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewFilter builds a filter. A nil classifier turns every Apply into a
// no_api_key passthrough.
func NewFilter(classifier Classifier, cfg Config, limiter *ratelimit.Limiter, m *metrics.Metrics) *Filter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 120
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 6 * time.Second
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Filter{
		classifier: classifier,
		cfg:        cfg,
		limiter:    limiter,
		metrics:    m,
		logger:     slog.Default().With("component", "relevance"),
	}
}

// Apply filters items in batches of at most BatchSize. Kept items stay in
// input order and are never modified.
func (f *Filter) Apply(ctx context.Context, class feed.Class, items []feed.Item) (feed.StageResult[[]feed.Item], feed.RelevanceMeta) {
	meta := feed.RelevanceMeta{
		InputCount:  len(items),
		OutputCount: len(items),
		Result:      ResultNotRun,
	}
	passthrough := feed.StageResult[[]feed.Item]{Data: items, Served: feed.ServedFresh}

	if len(items) == 0 {
		meta.Result = ResultNoItems
		return passthrough, meta
	}
	if f.classifier == nil {
		meta.Result = ResultNoAPIKey
		f.observe(class, ResultNoAPIKey)
		passthrough.Degraded = true
		passthrough.Reason = ResultNoAPIKey
		return passthrough, meta
	}
	meta.LLMEnabled = true
	meta.Model = f.cfg.Model

	batches := split(items, f.cfg.BatchSize)
	kept := make([][]feed.Item, len(batches))
	outcomes := make([]feed.BatchOutcome, len(batches))
	attempted := make([]bool, len(batches))

	var g errgroup.Group
	g.SetLimit(f.cfg.MaxConcurrent)
	for i, batch := range batches {
		g.Go(func() error {
			kept[i], outcomes[i], attempted[i] = f.runBatch(ctx, class, i, batch)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]feed.Item, 0, len(items))
	degraded := false
	for i := range batches {
		out = append(out, kept[i]...)
		meta.LLMApplied = meta.LLMApplied || attempted[i]
		if isPassthrough(outcomes[i].Result) {
			degraded = true
		}
	}
	meta.Batches = outcomes
	meta.OutputCount = len(out)
	meta.Result = summarize(outcomes)

	res := feed.StageResult[[]feed.Item]{Data: out, Served: feed.ServedFresh, Degraded: degraded}
	if degraded {
		res.Reason = meta.Result
	}
	return res, meta
}

func (f *Filter) runBatch(ctx context.Context, class feed.Class, index int, batch []feed.Item) ([]feed.Item, feed.BatchOutcome, bool) {
	out := feed.BatchOutcome{Index: index, Input: len(batch), Output: len(batch)}

	if !f.limiter.Allow(BudgetKey) {
		out.Result = ResultBudgetExhausted
		f.observe(class, out.Result)
		f.logger.Warn("classifier budget exhausted, passing batch through", "class", class, "batch", index)
		return batch, out, false
	}

	var reply string
	prompt := filterPrompt(class, f.cfg.Model, f.cfg.Topic, batch, f.cfg.MaxTokens)
	err := resilience.WithTimeout(ctx, f.cfg.Timeout, "classifier", func(ctx context.Context) error {
		var err error
		reply, err = f.classifier.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		out.Result, out.HTTPStatus = resultFor(err)
		out.ErrorDetail = textclean.Truncate(err.Error(), errorDetailLen)
		f.observe(class, out.Result)
		f.logger.Warn("classifier call failed, passing batch through",
			"class", class,
			"batch", index,
			"result", out.Result,
			"status", out.HTTPStatus,
			"error", err,
		)
		return batch, out, true
	}

	sel := ParseSelection(reply, len(batch))
	switch {
	case sel.None:
		out.Output = 0
		out.Result = ResultFilteredNone
		f.observe(class, out.Result)
		return nil, out, true
	case !sel.Parsed():
		out.Result = ResultUnparseable
		out.ErrorDetail = textclean.Truncate(reply, errorDetailLen)
		f.observe(class, out.Result)
		f.logger.Warn("unparseable classifier reply, passing batch through", "class", class, "batch", index)
		return batch, out, true
	}

	kept := make([]feed.Item, 0, len(sel.Indices))
	for _, idx := range sel.Indices {
		kept = append(kept, batch[idx])
	}
	out.Output = len(kept)
	out.Result = ResultFilteredIndices
	f.observe(class, out.Result)
	return kept, out, true
}

func (f *Filter) observe(class feed.Class, result string) {
	if f.metrics != nil {
		f.metrics.ClassifierCallsTotal.WithLabelValues(string(class), result).Inc()
	}
}

// resultFor maps a classifier error to a passthrough result code and the
// upstream HTTP status, when there was one.
func resultFor(err error) (string, int) {
	var up *apperrors.UpstreamError
	switch {
	case errors.As(err, &up) && up.StatusCode > 0:
		return fmt.Sprintf("http_%d_passthrough", up.StatusCode), up.StatusCode
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return ResultParseFailed, 0
	case errors.Is(err, apperrors.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return ResultNetworkError, 0
	default:
		return ResultRequestFailed, 0
	}
}

func isPassthrough(result string) bool {
	return strings.HasSuffix(result, "_passthrough")
}

func summarize(outcomes []feed.BatchOutcome) string {
	if len(outcomes) == 0 {
		return ResultNotRun
	}
	first := outcomes[0].Result
	for _, o := range outcomes[1:] {
		if o.Result != first {
			return ResultMixed
		}
	}
	return first
}

func split(items []feed.Item, size int) [][]feed.Item {
	var out [][]feed.Item
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
