// Package manager owns the set of batch tasks of one process.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/batchdl/pkg/batch"
	"github.com/Sternrassler/batchdl/pkg/config"
	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/Sternrassler/batchdl/pkg/persist"
	"github.com/rs/zerolog"
)

var (
	// ErrMaxReached is returned by Create when MaxTasks live tasks exist.
	ErrMaxReached = errors.New("maximum number of tasks reached")

	// ErrTaskExists is returned by Create when an unfinished task already
	// covers the same batch.
	ErrTaskExists = errors.New("a task for this batch is already active")

	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
)

// Options configure a Manager beyond the user settings.
type Options struct {
	// Notifier receives the events of every task. May be nil.
	Notifier batch.Notifier

	// Retry is the per-item retry budget. Zero uses fetch.DefaultRetryConfig.
	Retry fetch.RetryConfig
}

// Manager creates, tracks and stops batch tasks. Tasks share one fetcher and
// one persistor. It is safe for concurrent use.
type Manager struct {
	settings  config.Settings
	fetcher   fetch.Fetcher
	persistor *persist.Persistor
	opts      Options
	logger    zerolog.Logger

	mu       sync.RWMutex
	tasks    map[string]*batch.Task
	order    []string
	launched map[string]bool
}

// New creates a manager. The settings are validated.
func New(settings config.Settings, fetcher fetch.Fetcher, opts Options) (*Manager, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fetch.DefaultRetryConfig()
	}

	m := &Manager{
		settings:  settings,
		fetcher:   fetcher,
		persistor: persist.New(settings.PersistConfig()),
		opts:      opts,
		logger:    logging.NewLogger("manager"),
		tasks:     make(map[string]*batch.Task),
		launched:  make(map[string]bool),
	}
	return m, nil
}

// Settings returns the settings the manager was created with.
func (m *Manager) Settings() config.Settings {
	return m.settings
}

// Create registers a new task for batchNumber in the Created state.
func (m *Manager) Create(batchNumber int, mode batch.Mode) (*batch.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settings.MaxTasks > 0 && m.liveLocked() >= m.settings.MaxTasks {
		return nil, fmt.Errorf("%w (%d)", ErrMaxReached, m.settings.MaxTasks)
	}
	for _, id := range m.order {
		t := m.tasks[id]
		if t.BatchNumber() == batchNumber && !t.State().IsTerminal() {
			return nil, fmt.Errorf("%w: batch %d (task %s)", ErrTaskExists, batchNumber, id)
		}
	}

	cfg := m.settings.TaskConfig(batchNumber, mode)
	cfg.Retry = m.opts.Retry

	task, err := batch.New(cfg, m.fetcher, m.persistor, batch.Notifiers{m.logEvent(), m.opts.Notifier})
	if err != nil {
		return nil, err
	}

	m.tasks[task.ID()] = task
	m.order = append(m.order, task.ID())

	m.logger.Info().
		Str("task_id", task.ID()).
		Int("batch", batchNumber).
		Str("mode", mode.String()).
		Msg("Task created")
	return task, nil
}

// Run creates a task and starts it on its own goroutine.
func (m *Manager) Run(ctx context.Context, batchNumber int, mode batch.Mode) (*batch.Task, error) {
	task, err := m.Create(batchNumber, mode)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.launched[task.ID()] = true
	m.mu.Unlock()

	task.StartAsync(ctx)
	return task, nil
}

// Get returns the task with id.
func (m *Manager) Get(id string) (*batch.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// List returns all tasks in creation order.
func (m *Manager) List() []*batch.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*batch.Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id])
	}
	return out
}

// Remove stops the task if it is still active and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(m.tasks, id)
	delete(m.launched, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	task.Stop()
	m.logger.Info().Str("task_id", id).Msg("Task removed")
	return nil
}

// StopAll stops every Created or Started task and returns how many were stopped.
func (m *Manager) StopAll() int {
	stopped := 0
	for _, task := range m.List() {
		if task.Stop() {
			stopped++
		}
	}
	if stopped > 0 {
		m.logger.Info().Int("stopped", stopped).Msg("Tasks stopped")
	}
	return stopped
}

// Wait blocks until every launched, started or stopped task is done, or ctx
// is cancelled. Tasks created but never run are not waited for.
func (m *Manager) Wait(ctx context.Context) error {
	for _, task := range m.List() {
		m.mu.RLock()
		launched := m.launched[task.ID()]
		m.mu.RUnlock()
		if !launched && task.State() == batch.Created {
			continue
		}
		select {
		case <-task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// liveLocked counts tasks that have not reached Saved or Stopped.
func (m *Manager) liveLocked() int {
	n := 0
	for _, task := range m.tasks {
		switch task.State() {
		case batch.Saved, batch.Stopped:
		default:
			n++
		}
	}
	return n
}

// logEvent logs task lifecycle events.
func (m *Manager) logEvent() batch.Notifier {
	return batch.NotifierFunc(func(e batch.Event) {
		switch e.Kind {
		case batch.EventStateChanged:
			m.logger.Debug().Str("task_id", e.TaskID).Str("state", e.State.String()).Msg("Task state changed")
		case batch.EventSaveError:
			m.logger.Warn().Err(e.Err).Str("task_id", e.TaskID).Msg("Task save failed")
		}
	})
}
