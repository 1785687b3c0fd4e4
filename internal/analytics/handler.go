package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the aggregated refresh statistics. A class query
// parameter narrows the classes block to that source class.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	status := http.StatusOK
	var body any
	if class := r.URL.Query().Get("class"); class != "" {
		cs, ok := stats.Classes[class]
		if !ok {
			status = http.StatusNotFound
			body = map[string]string{"error": "no refreshes recorded for class " + class}
		} else {
			stats.Classes = map[string]ClassStats{class: cs}
		}
	}
	if body == nil {
		body = stats
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("writing analytics response", "class", r.URL.Query().Get("class"), "error", err)
	}
}
