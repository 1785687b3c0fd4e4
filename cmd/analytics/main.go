// Command analytics aggregates feed refresh events.
//
// It consumes the refresh and live-request events the feed servers publish
// to Kafka, aggregates them in memory (served/degraded counts per class,
// latency percentiles, classifier outcomes) and snapshots the aggregate to
// PostgreSQL on an interval. GET /api/v1/analytics serves the live view,
// GET /api/v1/analytics/snapshots the stored history and
// GET /api/v1/analytics/snapshots/latest the newest entry.
// GET /api/v1/analytics/consumer reports consumer progress and lag.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 8082]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8082, "HTTP port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port, "topic", cfg.Kafka.Topics.RefreshEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *postgres.Client
	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{Permanent: postgres.IsPermanent}, func() error {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := aggregator.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to migrate analytics schema", "error", err)
		os.Exit(1)
	}

	agg := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RefreshEvents, analytics.HandleEvent(agg))
	defer consumer.Close()
	agg.SetConsumer(consumer)

	go func() {
		if err := agg.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", snapshotsHandler(store))
	mux.HandleFunc("GET /api/v1/analytics/snapshots/latest", latestSnapshotHandler(store))
	mux.HandleFunc("GET /api/v1/analytics/consumer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(consumer.Stats())
	})
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}

// snapshotsHandler lists stored snapshots, newest first. ?limit= caps the
// count at 100.
func snapshotsHandler(store *aggregator.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		snaps, err := store.ListSnapshots(ctx, limit)
		if err != nil {
			logger.FromContext(r.Context()).Error("failed to list snapshots", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "failed to list snapshots"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"snapshots": snaps,
			"count":     len(snaps),
		})
	}
}

func latestSnapshotHandler(store *aggregator.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		snap, err := store.LatestSnapshot(ctx)
		switch {
		case err != nil:
			logger.FromContext(r.Context()).Error("failed to load latest snapshot", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "failed to load latest snapshot"})
		case snap == nil:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no snapshot recorded yet"})
		default:
			json.NewEncoder(w).Encode(snap)
		}
	}
}
