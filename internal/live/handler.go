// Package live serves the assembled feed over HTTP, along with the cache
// inspection and invalidation endpoints.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feedcache"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/tracing"
)

// Feed is the part of the pipeline the handlers need.
type Feed interface {
	Live(ctx context.Context) (*pipeline.Snapshot, error)
	Invalidate(ctx context.Context, classes ...feed.Class) int
	CacheStats() feedcache.Stats
}

type Config struct {
	CacheMaxAge time.Duration
}

type Handler struct {
	feed   Feed
	cfg    Config
	logger *slog.Logger
}

func NewHandler(f Feed, cfg Config) *Handler {
	return &Handler{
		feed:   f,
		cfg:    cfg,
		logger: slog.Default().With("component", "live-handler"),
	}
}

// Live writes the encoded feed. The body is served as produced by the
// pipeline; degradation is surfaced in X-Feed-Degraded.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "live", logger.RequestID(r.Context()))
	defer func() {
		span.End()
		span.Log(ctx, logger.FromContext(ctx))
	}()

	snap, err := h.feed.Live(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("live feed unavailable", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "feed temporarily unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.cfg.CacheMaxAge.Seconds())))
	w.Header().Set("X-Feed-Degraded", strconv.FormatBool(snap.Degraded))
	w.Header().Set("X-Feed-Origin", snap.Origin)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(snap.Body); err != nil {
		h.logger.Error("failed to write live response", "error", err)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, h.feed.CacheStats())
}

// CacheInvalidate expires the classes named by ?class= (repeated or
// comma-separated), or every class when none is given.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	classes, err := parseClasses(r.URL.Query()["class"])
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	n := h.feed.Invalidate(r.Context(), classes...)
	logger.FromContext(r.Context()).Info("cache invalidated", "classes", classes, "slots", n)

	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, string(c))
	}
	if len(names) == 0 {
		names = append(names, "all")
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"invalidated": n,
		"classes":     names,
	})
}

func parseClasses(values []string) ([]feed.Class, error) {
	var classes []feed.Class
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c, ok := feed.ParseClass(part)
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown class %q", part)
			}
			classes = append(classes, c)
		}
	}
	return classes, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
