// Package metrics exposes the Prometheus metrics of the batch downloader.
// Metrics are defined in their respective packages (fetch, client, cache,
// ratelimit, persist, batch) to avoid circular dependencies; this package
// serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the downloader.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Paths served by Handler.
const (
	MetricsPath = "/metrics"
	HealthPath  = "/health"
)

// shutdownTimeout bounds the graceful shutdown of Serve.
const shutdownTimeout = 5 * time.Second

// Handler returns a mux serving the metrics and health endpoints.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.Handler())
	mux.HandleFunc(HealthPath, healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger("metrics")
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Fetch Metrics (pkg/fetch):
//   - batchdl_fetch_attempts_total (Counter): Fetch attempts including retries
//   - batchdl_fetch_retries_total (Counter): Retries after a connection failure
//   - batchdl_fetch_retry_exhausted_total (Counter): Items whose retry budget ran out
//   - batchdl_fetch_outcomes_total{kind} (Counter): Outcomes by kind (found, absent, failed)
//
// Request Metrics (pkg/client):
//   - batchdl_http_requests_total{status} (Counter): Record requests by HTTP status
//   - batchdl_http_request_duration_seconds (Histogram): Record request duration
//   - batchdl_http_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Cache Metrics (pkg/cache):
//   - batchdl_cache_hits_total{kind} (Counter): Cache hits by outcome kind
//   - batchdl_cache_misses_total (Counter): Cache misses
//   - batchdl_cache_stored_bytes_total (Counter): Bytes written to Redis
//   - batchdl_cache_errors_total{operation} (Counter): Cache operation errors
//
// Throttle Metrics (pkg/ratelimit):
//   - batchdl_throttle_wait_seconds (Histogram): Time spent waiting for the limiter
//   - batchdl_throttle_aborts_total (Counter): Fetches abandoned while waiting
//
// Persist Metrics (pkg/persist):
//   - batchdl_saves_total (Counter): Successful saves
//   - batchdl_save_errors_total{reason} (Counter): Failed saves by reason
//   - batchdl_saved_file_bytes (Histogram): Size of saved files
//
// Task Metrics (pkg/batch):
//   - batchdl_task_transitions_total{state} (Counter): Accepted transitions by target state
//   - batchdl_tasks_running (Gauge): Tasks currently in the started state
//   - batchdl_discarded_outcomes_total (Counter): Outcomes dropped after a stop
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(batchdl_cache_hits_total[5m])) /
//   (sum(rate(batchdl_cache_hits_total[5m])) + sum(rate(batchdl_cache_misses_total[5m])))
//
//   # Failed Item Rate
//   rate(batchdl_fetch_outcomes_total{kind="failed"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(batchdl_http_request_duration_seconds_bucket[5m]))
