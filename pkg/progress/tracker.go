// Package progress keeps a moving history of per-item wait times and derives
// an ETA and throughput figure from it.
//
// In parallel mode each sample is measured per worker lane: the time since the
// completion workers items earlier. Samples then approximate per-item latency,
// and the ETA divides remaining work by the worker count. It is a heuristic: retry stalls and uneven latency are not modelled, so the ETA is
// an approximation rather than a bound.
package progress

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// DefaultHistory is the number of samples kept.
	DefaultHistory = 1024

	// ETAWindow is the number of most recent samples averaged for the ETA.
	ETAWindow = 4
)

// Tracker records elapsed time between completed items. Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	samples  []time.Duration
	limit    int
	lanes    []time.Time
	recorded int
	workers  int
	parallel bool
	now      func() time.Time
}

// NewTracker creates a tracker. In parallel mode the ETA and speed are
// adjusted by workers.
func NewTracker(parallel bool, workers int) *Tracker {
	if workers <= 0 {
		workers = 1
	}
	return &Tracker{
		limit:    DefaultHistory,
		workers:  workers,
		parallel: parallel,
		now:      time.Now,
	}
}

// Reset clears the history and starts timing from now.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = t.samples[:0]
	t.recorded = 0
	t.lanes = make([]time.Time, t.laneCount())
	now := t.now()
	for i := range t.lanes {
		t.lanes[i] = now
	}
}

func (t *Tracker) laneCount() int {
	if t.parallel {
		return t.workers
	}
	return 1
}

// Record appends the time since the previous sample of the same lane (or
// Reset). Sequential mode has a single lane.
func (t *Tracker) Record() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.lanes) == 0 {
		t.lanes = make([]time.Time, t.laneCount())
	}
	lane := t.recorded % len(t.lanes)
	t.recorded++

	now := t.now()
	if t.lanes[lane].IsZero() {
		t.lanes[lane] = now
	}
	elapsed := now.Sub(t.lanes[lane])
	if elapsed < 0 {
		elapsed = 0
	}
	t.lanes[lane] = now

	t.samples = append(t.samples, elapsed)
	if len(t.samples) > t.limit {
		t.samples = t.samples[len(t.samples)-t.limit:]
	}
	return elapsed
}

// Len returns the number of samples held.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.samples)
}

// ETA estimates the time left for remaining items, rounded to the second.
// ok is false when no sample exists yet.
func (t *Tracker) ETA(remaining int) (eta time.Duration, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.samples) == 0 {
		return 0, false
	}
	if remaining < 0 {
		remaining = 0
	}

	window := min(ETAWindow, len(t.samples))
	average := mean(t.samples[len(t.samples)-window:])

	packets := float64(remaining)
	if t.parallel {
		packets /= float64(t.workers)
	}

	seconds := math.Round(average.Seconds() * packets)
	return time.Duration(seconds) * time.Second, true
}

// Speed returns items per second over the whole history. ok is false when
// no sample exists or the average wait is zero.
func (t *Tracker) Speed() (perSecond float64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.samples) == 0 {
		return 0, false
	}

	average := mean(t.samples).Seconds()
	if t.parallel {
		average /= float64(t.workers)
	}
	if average <= 0 {
		return 0, false
	}
	return 1 / average, true
}

// FormatETA renders d as h:mm:ss.
func FormatETA(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatSpeed renders items per second with two decimals.
func FormatSpeed(perSecond float64) string {
	return fmt.Sprintf("%.2f /s", perSecond)
}

func mean(samples []time.Duration) time.Duration {
	var sum time.Duration
	for _, s := range samples {
		sum += s
	}
	return sum / time.Duration(len(samples))
}
