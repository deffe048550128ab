package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
)

// Behaviour scripts how ScriptedFetcher answers one ID.
type Behaviour struct {
	// Record is returned when no error is scripted.
	Record fetch.Record

	// Err is returned instead of Record. Use fetch.ErrAbsent for absent items.
	Err error

	// ConnectionFailures makes the first N calls return a *fetch.ConnectionError.
	ConnectionFailures int
}

// ScriptedFetcher is an in-memory fetch.Fetcher. Unscripted IDs return a
// record containing only the id field.
type ScriptedFetcher struct {
	mu         sync.Mutex
	behaviours map[int]*Behaviour
	calls      map[int]int
	order      []int

	// IDField is set on default records. Defaults to "number".
	IDField string

	// Delay is applied to every call, honouring ctx.
	Delay time.Duration

	// Gate, when non-nil, blocks every call until it is closed or ctx ends.
	Gate chan struct{}

	// OnCall runs after the call is counted, before it answers.
	OnCall func(id int)
}

// NewScriptedFetcher creates an empty scripted fetcher.
func NewScriptedFetcher() *ScriptedFetcher {
	return &ScriptedFetcher{
		behaviours: make(map[int]*Behaviour),
		calls:      make(map[int]int),
		IDField:    "number",
	}
}

// Set scripts the behaviour for id.
func (f *ScriptedFetcher) Set(id int, b Behaviour) *ScriptedFetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviours[id] = &b
	return f
}

// SetRange scripts the same behaviour for ids in [from, to).
func (f *ScriptedFetcher) SetRange(from, to int, b Behaviour) *ScriptedFetcher {
	for id := from; id < to; id++ {
		f.Set(id, b)
	}
	return f
}

// Calls returns how many times id was fetched.
func (f *ScriptedFetcher) Calls(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// TotalCalls returns the number of fetch calls across all IDs.
func (f *ScriptedFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// Fetch implements fetch.Fetcher.
func (f *ScriptedFetcher) Fetch(ctx context.Context, id int) (fetch.Record, error) {
	f.mu.Lock()
	f.calls[id]++
	f.order = append(f.order, id)
	b, scripted := f.behaviours[id]
	var current Behaviour
	connFail := false
	if scripted {
		if b.ConnectionFailures > 0 {
			b.ConnectionFailures--
			connFail = true
		}
		current = *b
	}
	onCall := f.OnCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(id)
	}

	if err := f.wait(ctx); err != nil {
		return nil, &fetch.ConnectionError{ID: id, Err: err}
	}

	if connFail {
		return nil, &fetch.ConnectionError{ID: id, Err: errors.New("connection reset by peer")}
	}
	if !scripted {
		return fetch.Record{f.IDField: strconv.Itoa(id)}, nil
	}
	if current.Err != nil {
		return nil, fmt.Errorf("scripted %d: %w", id, current.Err)
	}
	record := current.Record.Clone()
	if record == nil {
		record = fetch.Record{}
	}
	record[f.IDField] = strconv.Itoa(id)
	return record, nil
}

func (f *ScriptedFetcher) wait(ctx context.Context) error {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
