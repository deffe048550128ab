package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for fetch attempts.
var (
	fetchAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchdl_fetch_attempts_total",
		Help: "Total number of fetch attempts, including retries",
	})

	fetchRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchdl_fetch_retries_total",
		Help: "Total number of fetch retries after a connection failure",
	})

	fetchRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchdl_fetch_retry_exhausted_total",
		Help: "Total number of items whose retry budget was exhausted",
	})

	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdl_fetch_outcomes_total",
		Help: "Total fetch outcomes by kind",
	}, []string{"kind"})
)

// DefaultMaxAttempts is the fixed attempt budget for connection failures.
const DefaultMaxAttempts = 4

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial one).
	MaxAttempts int

	// Delay is a fixed pause between attempts. Zero retries immediately.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       0,
	}
}

// RetryingFetcher wraps a Fetcher with a fixed retry budget for transient
// connection failures. Every other result ends the loop on the first attempt.
type RetryingFetcher struct {
	fetcher Fetcher
	config  RetryConfig
	logger  zerolog.Logger
}

// NewRetrying creates a RetryingFetcher around f.
func NewRetrying(f Fetcher, config RetryConfig) *RetryingFetcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Delay < 0 {
		config.Delay = 0
	}

	return &RetryingFetcher{
		fetcher: f,
		config:  config,
		logger:  logging.NewLogger("retrying-fetch"),
	}
}

// Call fetches id and classifies the result. It never returns an error:
// exhausted retries and structural failures both become a Failed outcome.
func (r *RetryingFetcher) Call(ctx context.Context, id int) Outcome {
	record, err := r.fetchWithRetry(ctx, id)
	outcome := Classify(record, err)
	fetchOutcomesTotal.WithLabelValues(outcome.Kind.String()).Inc()

	if outcome.Kind == Failed {
		r.logger.Warn().Err(err).Int("id", id).Msg("Item fetch failed")
	}

	return outcome
}

// fetchWithRetry runs the attempt loop and returns the last result.
func (r *RetryingFetcher) fetchWithRetry(ctx context.Context, id int) (Record, error) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		fetchAttemptsTotal.Inc()

		record, err := r.fetcher.Fetch(ctx, id)
		if err == nil || !IsTransient(err) {
			if err == nil && attempt > 1 {
				r.logger.Info().
					Int("id", id).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return record, err
		}

		lastErr = err

		if attempt >= r.config.MaxAttempts {
			break
		}

		fetchRetriesTotal.Inc()
		r.logger.Warn().
			Err(err).
			Int("id", id).
			Int("attempt", attempt).
			Msg("Connection failure, retrying")

		if err := r.wait(ctx); err != nil {
			return nil, err
		}
	}

	fetchRetryExhaustedTotal.Inc()
	r.logger.Error().
		Int("id", id).
		Int("max_attempts", r.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, r.config.MaxAttempts, lastErr)
}

// wait pauses for the configured delay, or just checks ctx when the delay is zero.
func (r *RetryingFetcher) wait(ctx context.Context) error {
	if r.config.Delay == 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry aborted: %w", ctx.Err())
	case <-time.After(r.config.Delay):
		return nil
	}
}

