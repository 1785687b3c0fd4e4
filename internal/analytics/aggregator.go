package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/kafka"
)

// maxSamples bounds the latency window kept per series.
const maxSamples = 10000

type LatencySummary struct {
	AvgMs float64 `json:"avg_ms"`
	P50Ms int64   `json:"p50_ms"`
	P95Ms int64   `json:"p95_ms"`
	P99Ms int64   `json:"p99_ms"`
}

type ClassStats struct {
	Refreshes int64            `json:"refreshes"`
	Degraded  int64            `json:"degraded"`
	Served    map[string]int64 `json:"served"`
	Reasons   map[string]int64 `json:"reasons"`
	Relevance map[string]int64 `json:"relevance,omitempty"`
	Latency   LatencySummary   `json:"latency"`
}

type AggregatedStats struct {
	TotalRequests     int64                 `json:"total_requests"`
	DegradedResponses int64                 `json:"degraded_responses"`
	LastGoodServed    int64                 `json:"last_good_served"`
	TotalRefreshes    int64                 `json:"total_refreshes"`
	RequestLatency    LatencySummary        `json:"request_latency"`
	RequestsPerMinute float64               `json:"requests_per_minute"`
	Classes           map[string]ClassStats `json:"classes"`
	Since             time.Time             `json:"since"`
}

type classAgg struct {
	refreshes int64
	degraded  int64
	served    map[string]int64
	reasons   map[string]int64
	relevance map[string]int64
	latencies []int64
}

type Aggregator struct {
	mu                sync.RWMutex
	totalRequests     atomic.Int64
	degradedResponses atomic.Int64
	lastGoodServed    atomic.Int64
	totalRefreshes    atomic.Int64
	requestLatencies  []int64
	classes           map[string]*classAgg
	startTime         time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator creates an aggregator. consumer may be nil when events are
// fed in-process through Track.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		requestLatencies: make([]int64, 0, 1024),
		classes:          make(map[string]*classAgg),
		startTime:        time.Now(),
		consumer:         consumer,
		logger:           slog.Default().With("component", "analytics-aggregator"),
	}
}

// SetConsumer attaches the consumer Start reads from.
func (a *Aggregator) SetConsumer(c *kafka.Consumer) {
	a.consumer = c
}

// Start consumes until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return fmt.Errorf("analytics aggregator has no consumer")
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent decodes kafka messages by their type field. Undecodable
// messages are logged and committed.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if err := agg.Ingest(value); err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
		}
		return nil
	}
}

// Ingest records one JSON-encoded event.
func (a *Aggregator) Ingest(value []byte) error {
	envelope, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		return err
	}
	switch envelope.Type {
	case EventClassRefresh:
		ev, err := kafka.DecodeJSON[RefreshEvent](value)
		if err != nil {
			return err
		}
		a.RecordRefresh(ev)
	case EventLiveRequest:
		ev, err := kafka.DecodeJSON[RequestEvent](value)
		if err != nil {
			return err
		}
		a.RecordRequest(ev)
	default:
		return fmt.Errorf("unknown event type %q", envelope.Type)
	}
	return nil
}

// Track records events in-process, so an Aggregator can stand in for the
// kafka collector.
func (a *Aggregator) Track(_ string, value any) {
	switch ev := value.(type) {
	case RefreshEvent:
		a.RecordRefresh(ev)
	case RequestEvent:
		a.RecordRequest(ev)
	default:
		raw, err := json.Marshal(value)
		if err == nil {
			err = a.Ingest(raw)
		}
		if err != nil {
			a.logger.Warn("dropping untrackable event", "error", err)
		}
	}
}

func (a *Aggregator) RecordRefresh(ev RefreshEvent) {
	a.totalRefreshes.Add(1)

	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.classes[ev.Class]
	if !ok {
		c = &classAgg{
			served:    make(map[string]int64),
			reasons:   make(map[string]int64),
			relevance: make(map[string]int64),
		}
		a.classes[ev.Class] = c
	}
	c.refreshes++
	c.served[ev.Served]++
	if ev.Degraded {
		c.degraded++
	}
	if ev.Reason != "" {
		c.reasons[ev.Reason]++
	}
	if ev.Relevance != "" {
		c.relevance[ev.Relevance]++
	}
	c.latencies = appendBounded(c.latencies, ev.LatencyMs)
}

func (a *Aggregator) RecordRequest(ev RequestEvent) {
	a.totalRequests.Add(1)
	if ev.Degraded {
		a.degradedResponses.Add(1)
	}
	if ev.Origin != "" && ev.Origin != "live" {
		a.lastGoodServed.Add(1)
	}
	a.mu.Lock()
	a.requestLatencies = appendBounded(a.requestLatencies, ev.LatencyMs)
	a.mu.Unlock()
}

func appendBounded(s []int64, v int64) []int64 {
	if len(s) >= maxSamples {
		s = append(s[:0], s[len(s)-maxSamples+1:]...)
	}
	return append(s, v)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRequests:     a.totalRequests.Load(),
		DegradedResponses: a.degradedResponses.Load(),
		LastGoodServed:    a.lastGoodServed.Load(),
		TotalRefreshes:    a.totalRefreshes.Load(),
		RequestLatency:    summarize(a.requestLatencies),
		Classes:           make(map[string]ClassStats, len(a.classes)),
		Since:             a.startTime.UTC(),
	}
	for name, c := range a.classes {
		stats.Classes[name] = ClassStats{
			Refreshes: c.refreshes,
			Degraded:  c.degraded,
			Served:    copyCounts(c.served),
			Reasons:   copyCounts(c.reasons),
			Relevance: copyCounts(c.relevance),
			Latency:   summarize(c.latencies),
		}
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.RequestsPerMinute = float64(stats.TotalRequests) / elapsed
	}
	return stats
}

func summarize(latencies []int64) LatencySummary {
	if len(latencies) == 0 {
		return LatencySummary{}
	}
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, l := range sorted {
		sum += l
	}
	return LatencySummary{
		AvgMs: float64(sum) / float64(len(sorted)),
		P50Ms: percentile(sorted, 50),
		P95Ms: percentile(sorted, 95),
		P99Ms: percentile(sorted, 99),
	}
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func copyCounts(m map[string]int64) map[string]int64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
