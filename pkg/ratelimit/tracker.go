package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for throttling.
var (
	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchdl_throttle_wait_seconds",
		Help:    "Time spent waiting for the request rate limiter",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	})

	throttleAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchdl_throttle_aborts_total",
		Help: "Total number of fetches abandoned while waiting for the rate limiter",
	})
)

// Fetcher is a fetch.Fetcher that waits on a shared rate.Limiter before
// each call to the wrapped fetcher.
type Fetcher struct {
	inner   fetch.Fetcher
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger
}

// NewFetcher wraps inner with a throttle. All callers of the returned
// Fetcher share one limiter.
func NewFetcher(inner fetch.Fetcher, config Config) *Fetcher {
	return &Fetcher{
		inner:   inner,
		limiter: rate.NewLimiter(config.Limit(), config.burst()),
		config:  config,
		logger:  logging.NewLogger("throttle"),
	}
}

// Config returns the throttle configuration.
func (f *Fetcher) Config() Config {
	return f.config
}

// Fetch implements fetch.Fetcher. A context cancelled while waiting is
// returned as a plain error and is not retried.
func (f *Fetcher) Fetch(ctx context.Context, id int) (fetch.Record, error) {
	if f.config.Enabled() {
		start := time.Now()
		if err := f.limiter.Wait(ctx); err != nil {
			throttleAbortsTotal.Inc()
			f.logger.Debug().Err(err).Int("id", id).Msg("Throttle wait aborted")
			return nil, fmt.Errorf("throttle %d: %w", id, err)
		}
		waited := time.Since(start)
		throttleWaitSeconds.Observe(waited.Seconds())
		if waited > time.Second {
			f.logger.Debug().Int("id", id).Dur("waited", waited).Msg("Request throttled")
		}
	}
	return f.inner.Fetch(ctx, id)
}
