package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/Sternrassler/batchdl/pkg/persist"
	"github.com/Sternrassler/batchdl/pkg/progress"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidTransition is returned when an operation would move the task
	// along an edge that is not part of the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotCompleted is returned by Save when the task is not Completed.
	ErrNotCompleted = errors.New("task is not completed")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid task configuration")
)

// Mode selects the dispatch strategy.
type Mode int

const (
	// ModeParallel dispatches through a bounded worker pool.
	ModeParallel Mode = iota + 1

	// ModeSequential dispatches one item at a time.
	ModeSequential
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeSequential {
		return "sequential"
	}
	return "parallel"
}

// Defaults.
const (
	DefaultWorkers   = 8
	DefaultBatchSize = 100
	DefaultIDField   = "number"
)

// Config holds the task configuration. It is fixed once the task exists.
type Config struct {
	// ID identifies the task. A random UUID is used when empty.
	ID string

	// BatchNumber is the 1-based batch index.
	BatchNumber int

	// BatchSize is the number of IDs in the batch.
	BatchSize int

	// Mode selects parallel or sequential dispatch.
	Mode Mode

	// Workers is the pool size in parallel mode and the progress
	// notification interval.
	Workers int

	// IDField is removed from stored records once the task completes.
	IDField string

	// Retry configures the per-item retry budget.
	Retry fetch.RetryConfig
}

// DefaultConfig returns a parallel configuration for batchNumber.
func DefaultConfig(batchNumber int) Config {
	return Config{
		BatchNumber: batchNumber,
		BatchSize:   DefaultBatchSize,
		Mode:        ModeParallel,
		Workers:     DefaultWorkers,
		IDField:     DefaultIDField,
		Retry:       fetch.DefaultRetryConfig(),
	}
}

// RangeStart is the first ID of the batch.
func (c Config) RangeStart() int { return c.BatchSize * (c.BatchNumber - 1) }

// RangeEnd is one past the last ID of the batch.
func (c Config) RangeEnd() int { return c.BatchSize * c.BatchNumber }

// Contains reports whether id belongs to the batch.
func (c Config) Contains(id int) bool {
	rel := id - c.RangeStart()
	return rel >= 0 && rel < c.BatchSize
}

// IDs returns the batch IDs in ascending order.
func (c Config) IDs() []int {
	ids := make([]int, 0, c.BatchSize)
	for id := c.RangeStart(); id < c.RangeEnd(); id++ {
		ids = append(ids, id)
	}
	return ids
}

func (c Config) validate() error {
	if c.BatchNumber < 1 {
		return fmt.Errorf("%w: batch number must be >= 1 (got %d)", ErrInvalidConfig, c.BatchNumber)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be > 0 (got %d)", ErrInvalidConfig, c.BatchSize)
	}
	if c.Mode != ModeParallel && c.Mode != ModeSequential {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, int(c.Mode))
	}
	return nil
}

// Counts summarizes outcomes. Successful+Failed+NotFound == Fetched <= BatchSize.
type Counts struct {
	Fetched    int
	Successful int
	Failed     int
	NotFound   int
}

// LogEntry records one completed item, in completion order.
type LogEntry struct {
	ID   int
	Kind fetch.OutcomeKind
	At   time.Time
}

// Task is the batch download aggregate.
type Task struct {
	config     Config
	fetcher    *fetch.RetryingFetcher
	persistor  *persist.Persistor
	dispatcher Dispatcher
	notifier   Notifier
	tracker    *progress.Tracker
	logger     zerolog.Logger
	now        func() time.Time

	mu          sync.RWMutex
	state       State
	results     map[int]fetch.Outcome
	log         []LogEntry
	counts      Counts
	createdAt   time.Time
	completedAt time.Time
	file        persist.PersistedFile
	lastSaveErr error
	cancel      context.CancelFunc

	saveMu   sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a task in the Created state. notifier may be nil.
func New(config Config, fetcher fetch.Fetcher, persistor *persist.Persistor, notifier Notifier) (*Task, error) {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.Mode == 0 {
		config.Mode = ModeParallel
	}
	if config.IDField == "" {
		config.IDField = DefaultIDField
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", ErrInvalidConfig)
	}
	if persistor == nil {
		return nil, fmt.Errorf("%w: persistor is required", ErrInvalidConfig)
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	if notifier == nil {
		notifier = Notifiers(nil)
	}

	t := &Task{
		config:     config,
		fetcher:    fetch.NewRetrying(fetcher, config.Retry),
		persistor:  persistor,
		dispatcher: dispatcherFor(config.Mode, config.Workers),
		notifier:   notifier,
		tracker:    progress.NewTracker(config.Mode == ModeParallel, config.Workers),
		now:        time.Now,
		state:      Created,
		results:    make(map[int]fetch.Outcome),
		done:       make(chan struct{}),
	}
	t.createdAt = t.now()
	t.logger = logging.NewLogger("download-task").With().
		Str("task_id", config.ID).
		Int("batch", config.BatchNumber).
		Logger()

	return t, nil
}

// Start runs the batch on the calling goroutine and returns once the task
// leaves Started. It fails with ErrInvalidTransition unless the task is Created.
// A failed automatic save is reported through the notifier, not returned.
func (t *Task) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	ev, err := t.transitionLocked(Started)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.results = make(map[int]fetch.Outcome, t.config.BatchSize)
	t.log = nil
	t.counts = Counts{}
	t.cancel = cancel
	t.tracker.Reset()
	t.mu.Unlock()

	defer t.closeDone()
	TasksRunning.Inc()
	t.emit(ev)

	t.logger.Info().
		Str("mode", t.config.Mode.String()).
		Int("workers", t.config.Workers).
		Int("range_start", t.config.RangeStart()).
		Int("range_end", t.config.RangeEnd()).
		Msg("Batch started")

	t.dispatcher.Dispatch(runCtx, t.config.IDs(), t.fetchOne)
	TasksRunning.Dec()

	if !t.finish(runCtx) {
		return nil
	}

	// Save errors are delivered as EventSaveError.
	_, _ = t.Save(false)
	return nil
}

// StartAsync runs Start on its own goroutine.
func (t *Task) StartAsync(ctx context.Context) {
	go func() {
		if err := t.Start(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("Batch not started")
		}
	}()
}

// fetchOne is the per-ID dispatch function.
func (t *Task) fetchOne(ctx context.Context, id int) {
	outcome := t.fetcher.Call(ctx, id)
	t.record(ctx, id, outcome)
}

// record stores an outcome unless the run was cancelled or the task already
// left Started.
func (t *Task) record(ctx context.Context, id int, outcome fetch.Outcome) {
	t.mu.Lock()
	if t.state != Started || ctx.Err() != nil {
		state := t.state
		t.mu.Unlock()
		DiscardedOutcomes.Inc()
		t.logger.Debug().Int("id", id).Str("state", state.String()).Msg("Outcome discarded")
		return
	}

	t.results[id] = outcome
	t.log = append(t.log, LogEntry{ID: id, Kind: outcome.Kind, At: t.now()})
	t.counts.Fetched++
	switch outcome.Kind {
	case fetch.Found:
		t.counts.Successful++
	case fetch.Absent:
		t.counts.NotFound++
	default:
		t.counts.Failed++
	}
	fetched := t.counts.Fetched
	t.mu.Unlock()

	t.tracker.Record()
	t.logger.Debug().Int("id", id).Str("outcome", outcome.Kind.String()).Msg("Item fetched")

	if t.config.Mode == ModeSequential || fetched%t.config.Workers == 0 {
		t.emit(Event{Kind: EventProgress, TaskID: t.config.ID})
	}
}

// finish moves the task out of Started once dispatch returns. A cancelled
// run ends in Stopped even when every item has an outcome. It reports whether
// the task reached Completed.
func (t *Task) finish(ctx context.Context) bool {
	t.mu.Lock()
	if t.state != Started {
		t.mu.Unlock()
		t.logger.Info().Msg("Batch stopped")
		return false
	}

	if ctx.Err() != nil || len(t.results) < t.config.BatchSize {
		// The parent context was cancelled without Stop.
		ev, _ := t.transitionLocked(Stopped)
		counts := t.counts
		t.mu.Unlock()
		t.emit(ev)
		t.logger.Warn().Int("fetched", counts.Fetched).Msg("Batch interrupted")
		return false
	}

	t.completedAt = t.now()
	for id, outcome := range t.results {
		if outcome.Kind == fetch.Found {
			outcome.Record = outcome.Record.Without(t.config.IDField)
			t.results[id] = outcome
		}
	}
	ev, _ := t.transitionLocked(Completed)
	counts := t.counts
	t.mu.Unlock()

	t.emit(ev)
	t.logger.Info().
		Int("successful", counts.Successful).
		Int("not_found", counts.NotFound).
		Int("failed", counts.Failed).
		Msg("Batch completed")
	return true
}

// Stop cancels a Created or Started task. It reports whether the task was
// stopped by this call.
func (t *Task) Stop() bool {
	t.mu.Lock()
	prev := t.state
	ev, err := t.transitionLocked(Stopped)
	if err != nil {
		t.mu.Unlock()
		return false
	}
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if prev == Created {
		t.closeDone()
	}
	t.emit(ev)
	return true
}

// Save persists a Completed task and moves it to Saved. On failure the task
// stays Completed, an EventSaveError is emitted and the error is returned.
func (t *Task) Save(overwrite bool) (persist.PersistedFile, error) {
	file, ev, err := t.save(overwrite)
	t.emit(ev)
	return file, err
}

func (t *Task) save(overwrite bool) (persist.PersistedFile, Event, error) {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.RLock()
	if t.state != Completed {
		state := t.state
		t.mu.RUnlock()
		return persist.PersistedFile{}, Event{}, fmt.Errorf("%w (state %s)", ErrNotCompleted, state)
	}
	b := persist.Batch{
		Number:    t.config.BatchNumber,
		Size:      t.config.BatchSize,
		Created:   t.createdAt,
		Completed: t.completedAt,
		Results:   t.copyResults(),
	}
	t.mu.RUnlock()

	file, err := t.persistor.Save(b, overwrite)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.lastSaveErr = err
		return persist.PersistedFile{}, Event{Kind: EventSaveError, TaskID: t.config.ID, State: t.state, Err: err}, err
	}

	ev, terr := t.transitionLocked(Saved)
	if terr != nil {
		return persist.PersistedFile{}, Event{}, terr
	}
	t.file = file
	t.lastSaveErr = nil
	return file, ev, nil
}

// transitionLocked applies an edge of the lifecycle graph. The caller holds
// t.mu and must emit the returned event after unlocking.
func (t *Task) transitionLocked(to State) (Event, error) {
	if !CanTransition(t.state, to) {
		return Event{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, to)
	}
	from := t.state
	t.state = to
	TaskTransitions.WithLabelValues(to.String()).Inc()
	t.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("State transition")
	return Event{Kind: EventStateChanged, TaskID: t.config.ID, State: to}, nil
}

// emit delivers ev unless it is the zero event.
func (t *Task) emit(ev Event) {
	if ev.Kind == 0 {
		return
	}
	t.notifier.Notify(ev)
}

func (t *Task) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Task) copyResults() map[int]fetch.Outcome {
	out := make(map[int]fetch.Outcome, len(t.results))
	for id, o := range t.results {
		o.Record = o.Record.Clone()
		out[id] = o
	}
	return out
}
