package feed

import "time"

// Served says where a class result came from.
type Served string

const (
	ServedFresh    Served = "fresh"
	ServedCache    Served = "cache"
	ServedStale    Served = "stale"
	ServedEmpty    Served = "empty"
	ServedDisabled Served = "disabled"
)

// StageResult is the uniform output of the cache layer and the relevance
// filter. Degraded is set whenever Data is not the product of a successful
// run of the stage (stale cache, empty fallback, filter passthrough).
type StageResult[T any] struct {
	Data      T
	Degraded  bool
	Reason    string
	Served    Served
	StoredAt  time.Time
	ExpiresAt time.Time
}

// StageReport is the per-stage diagnostic entry of the response metadata.
type StageReport struct {
	Name      string         `json:"name"`
	Class     Class          `json:"class"`
	Input     int            `json:"input"`
	Output    int            `json:"output"`
	Executed  bool           `json:"executed"`
	Degraded  bool           `json:"degraded"`
	Reason    string         `json:"reason,omitempty"`
	Service   string         `json:"service,omitempty"`
	Counters  map[string]int `json:"counters,omitempty"`
	Relevance *RelevanceMeta `json:"relevance,omitempty"`
}

// RelevanceMeta records one relevance-filter invocation.
type RelevanceMeta struct {
	InputCount  int            `json:"inputCount"`
	OutputCount int            `json:"outputCount"`
	LLMEnabled  bool           `json:"llmEnabled"`
	LLMApplied  bool           `json:"llmApplied"`
	Result      string         `json:"result"`
	Model       string         `json:"model,omitempty"`
	Batches     []BatchOutcome `json:"batches,omitempty"`
}

type BatchOutcome struct {
	Index       int    `json:"index"`
	Input       int    `json:"input"`
	Output      int    `json:"output"`
	Result      string `json:"result"`
	HTTPStatus  int    `json:"httpStatus,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
}
