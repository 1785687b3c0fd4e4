package live

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/middleware"
)

type RouterConfig struct {
	AllowOrigins   []string
	RequestTimeout time.Duration
	AdminToken     string
}

// Routes are optional collaborators mounted next to the feed handler.
type Routes struct {
	Health    *health.Checker
	Analytics *analytics.Handler
	Metrics   *metrics.Metrics
}

// NewRouter builds the feed server's HTTP handler.
//
// Route table:
//
//	GET  /api/v1/live              assembled feed
//	GET  /api/v1/cache/stats       per-class cache slots
//	POST /api/v1/cache/invalidate  expire classes (?class=), admin token
//	GET  /api/v1/analytics         in-process refresh statistics
//	GET  /health/live
//	GET  /health/ready
//
// Middleware chain, outermost first:
//
//	RequestID → CORS → Metrics → Timeout → handler
func NewRouter(h *Handler, routes Routes, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/live", h.Live)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", AdminAuth(cfg.AdminToken)(http.HandlerFunc(h.CacheInvalidate)))

	if routes.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", routes.Analytics.Stats)
	}
	if routes.Health != nil {
		mux.HandleFunc("GET /health/live", routes.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", routes.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if cfg.RequestTimeout > 0 {
		chain = pkgmw.Timeout(cfg.RequestTimeout)(chain)
	}
	chain = pkgmw.Metrics(routes.Metrics)(chain)
	chain = pkgmw.CORS(pkgmw.DefaultCORSConfig(cfg.AllowOrigins))(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
