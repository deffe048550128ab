package batch

import (
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/persist"
	"github.com/Sternrassler/batchdl/pkg/progress"
)

// ID returns the task identifier.
func (t *Task) ID() string { return t.config.ID }

// Config returns the task configuration.
func (t *Task) Config() Config { return t.config }

// BatchNumber returns the batch index.
func (t *Task) BatchNumber() int { return t.config.BatchNumber }

// BatchSize returns the number of IDs in the batch.
func (t *Task) BatchSize() int { return t.config.BatchSize }

// Mode returns the dispatch mode.
func (t *Task) Mode() Mode { return t.config.Mode }

// Workers returns the worker count.
func (t *Task) Workers() int { return t.config.Workers }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Running reports whether the task is Started.
func (t *Task) Running() bool {
	return t.State() == Started
}

// Cancelled reports whether the task is Stopped.
func (t *Task) Cancelled() bool {
	return t.State() == Stopped
}

// Counts returns the outcome counters.
func (t *Task) Counts() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts
}

// Log returns the per-item log in completion order.
func (t *Task) Log() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]LogEntry, len(t.log))
	copy(out, t.log)
	return out
}

// Results returns a copy of the outcomes collected so far, keyed by ID.
func (t *Task) Results() map[int]fetch.Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyResults()
}

// Progress returns the completion percentage. It stays below 100 until the
// task is Completed.
func (t *Task) Progress() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state == Completed || t.state == Saved {
		return 100
	}
	pct := t.counts.Fetched * 100 / t.config.BatchSize
	if pct >= 100 {
		pct = 99
	}
	return pct
}

// ETA estimates the remaining time. ok is false once Stopped or before the
// first item completes. In parallel mode this is an approximation: remaining
// work is divided evenly across workers and retry stalls are ignored.
func (t *Task) ETA() (eta time.Duration, ok bool) {
	t.mu.RLock()
	state := t.state
	remaining := t.config.BatchSize - t.counts.Fetched
	t.mu.RUnlock()

	if state == Stopped {
		return 0, false
	}
	return t.tracker.ETA(remaining)
}

// FormatETA renders ETA as h:mm:ss, or "" when undefined.
func (t *Task) FormatETA() string {
	eta, ok := t.ETA()
	if !ok {
		return ""
	}
	return progress.FormatETA(eta)
}

// AvgSpeed returns items per second. ok is false under the same conditions as ETA.
func (t *Task) AvgSpeed() (perSecond float64, ok bool) {
	if t.State() == Stopped {
		return 0, false
	}
	return t.tracker.Speed()
}

// FormatSpeed renders AvgSpeed, or "" when undefined.
func (t *Task) FormatSpeed() string {
	speed, ok := t.AvgSpeed()
	if !ok {
		return ""
	}
	return progress.FormatSpeed(speed)
}

// CreatedAt returns when the task was created.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// CompletedAt returns when the task completed. ok is false unless the task
// is Completed or Saved.
func (t *Task) CompletedAt() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != Completed && t.state != Saved {
		return time.Time{}, false
	}
	return t.completedAt, true
}

// Elapsed returns the time since creation, frozen at completion.
func (t *Task) Elapsed() time.Duration {
	end, ok := t.CompletedAt()
	if !ok {
		end = t.now()
	}
	return end.Sub(t.createdAt).Round(time.Second)
}

// File returns the persisted file. ok is true only in the Saved state.
func (t *Task) File() (persist.PersistedFile, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != Saved {
		return persist.PersistedFile{}, false
	}
	return t.file, true
}

// LastSaveError returns the error of the most recent failed save, or nil.
func (t *Task) LastSaveError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSaveErr
}

// Done is closed once the task can make no further fetch progress.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until Done is closed.
func (t *Task) Wait() { <-t.done }
