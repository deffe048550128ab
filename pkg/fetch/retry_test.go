package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingFetcher returns the scripted errors in order, then the final result.
func countingFetcher(calls *int, errs []error, final Record, finalErr error) Fetcher {
	return FetcherFunc(func(ctx context.Context, id int) (Record, error) {
		*calls++
		if *calls <= len(errs) {
			return nil, errs[*calls-1]
		}
		return final, finalErr
	})
}

func connErr(id int) error {
	return &ConnectionError{ID: id, Err: errors.New("connection refused")}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", config.MaxAttempts)
	}
	if config.Delay != 0 {
		t.Errorf("Delay = %v, want 0", config.Delay)
	}
}

func TestNewRetrying_NormalizesConfig(t *testing.T) {
	r := NewRetrying(FetcherFunc(nil), RetryConfig{MaxAttempts: 0, Delay: -time.Second})

	if r.config.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", r.config.MaxAttempts, DefaultMaxAttempts)
	}
	if r.config.Delay != 0 {
		t.Errorf("Delay = %v, want 0", r.config.Delay)
	}
}

func TestRetryingFetcher_Call(t *testing.T) {
	record := Record{"number": "7", "name": "Ana"}

	tests := []struct {
		name          string
		errs          []error
		finalRecord   Record
		finalErr      error
		expectedKind  OutcomeKind
		expectedCalls int
	}{
		{
			name:          "found on first attempt",
			finalRecord:   record,
			expectedKind:  Found,
			expectedCalls: 1,
		},
		{
			name:          "absent ends loop",
			finalErr:      ErrAbsent,
			expectedKind:  Absent,
			expectedCalls: 1,
		},
		{
			name:          "missing fields is not retried",
			finalErr:      ErrMissingFields,
			expectedKind:  Failed,
			expectedCalls: 1,
		},
		{
			name:          "found after two connection failures",
			errs:          []error{connErr(7), connErr(7)},
			finalRecord:   record,
			expectedKind:  Found,
			expectedCalls: 3,
		},
		{
			name:          "absent after connection failure",
			errs:          []error{connErr(7)},
			finalErr:      ErrAbsent,
			expectedKind:  Absent,
			expectedCalls: 2,
		},
		{
			name:          "budget exhausted",
			errs:          []error{connErr(7), connErr(7), connErr(7), connErr(7)},
			finalRecord:   record,
			expectedKind:  Failed,
			expectedCalls: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			r := NewRetrying(countingFetcher(&calls, tt.errs, tt.finalRecord, tt.finalErr), DefaultRetryConfig())

			outcome := r.Call(context.Background(), 7)

			if outcome.Kind != tt.expectedKind {
				t.Errorf("Kind = %v, want %v", outcome.Kind, tt.expectedKind)
			}
			if calls != tt.expectedCalls {
				t.Errorf("calls = %d, want %d", calls, tt.expectedCalls)
			}
			if tt.expectedKind == Found && outcome.Record["name"] != "Ana" {
				t.Errorf("Record = %v, want name=Ana", outcome.Record)
			}
			if tt.expectedKind != Found && outcome.Record != nil {
				t.Errorf("Record = %v, want nil for %v", outcome.Record, tt.expectedKind)
			}
		})
	}
}

func TestRetryingFetcher_ExhaustedError(t *testing.T) {
	calls := 0
	f := countingFetcher(&calls, []error{connErr(1), connErr(1), connErr(1), connErr(1)}, nil, nil)
	r := NewRetrying(f, DefaultRetryConfig())

	_, err := r.fetchWithRetry(context.Background(), 1)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !IsTransient(err) {
		t.Errorf("Exhausted error should still wrap the connection failure: %v", err)
	}
}

func TestRetryingFetcher_ContextCancelledDuringDelay(t *testing.T) {
	calls := 0
	f := countingFetcher(&calls, []error{connErr(1), connErr(1), connErr(1), connErr(1)}, nil, nil)
	r := NewRetrying(f, RetryConfig{MaxAttempts: 4, Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := r.Call(ctx, 1)

	if outcome.Kind != Failed {
		t.Errorf("Kind = %v, want Failed", outcome.Kind)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Call did not return promptly after cancellation")
	}
}

func TestRetryingFetcher_FixedDelay(t *testing.T) {
	calls := 0
	f := countingFetcher(&calls, []error{connErr(1), connErr(1)}, Record{"a": "b"}, nil)
	r := NewRetrying(f, RetryConfig{MaxAttempts: 4, Delay: 10 * time.Millisecond})

	start := time.Now()
	outcome := r.Call(context.Background(), 1)
	elapsed := time.Since(start)

	if outcome.Kind != Found {
		t.Errorf("Kind = %v, want Found", outcome.Kind)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 20ms for two fixed delays", elapsed)
	}
}
