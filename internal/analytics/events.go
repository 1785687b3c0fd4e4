// Package analytics aggregates feed refresh and request events into
// per-class operational statistics.
package analytics

import "time"

type EventType string

const (
	EventClassRefresh EventType = "class_refresh"
	EventLiveRequest  EventType = "live_request"
)

// RefreshEvent describes how one source class was produced for a request.
type RefreshEvent struct {
	Type      EventType `json:"type"`
	Class     string    `json:"class"`
	Served    string    `json:"served"`
	Degraded  bool      `json:"degraded"`
	Reason    string    `json:"reason,omitempty"`
	Items     int       `json:"items"`
	Relevance string    `json:"relevance,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// RequestEvent describes one live response.
type RequestEvent struct {
	Type         EventType `json:"type"`
	Origin       string    `json:"origin"`
	Degraded     bool      `json:"degraded"`
	NewsCount    int       `json:"news_count"`
	MarketsCount int       `json:"markets_count"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Tracker accepts events for delivery. Key groups related events.
type Tracker interface {
	Track(key string, value any)
}
