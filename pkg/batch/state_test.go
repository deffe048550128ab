package batch

import (
	"context"
	"sync"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		expected bool
	}{
		{Created, Started, true},
		{Created, Stopped, true},
		{Created, Completed, false},
		{Created, Saved, false},
		{Started, Completed, true},
		{Started, Stopped, true},
		{Started, Saved, false},
		{Started, Created, false},
		{Completed, Saved, true},
		{Completed, Stopped, false},
		{Completed, Started, false},
		{Saved, Completed, false},
		{Saved, Stopped, false},
		{Stopped, Started, false},
		{Stopped, Completed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	for _, s := range []State{Completed, Saved, Stopped} {
		if !s.IsTerminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	for _, s := range []State{Created, Started} {
		if s.IsTerminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestDispatchers(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	for _, d := range []Dispatcher{Sequential{}, Pool{Workers: 3}, Pool{}} {
		var mu sync.Mutex
		seen := make(map[int]int)
		d.Dispatch(context.Background(), ids, func(ctx context.Context, id int) {
			mu.Lock()
			defer mu.Unlock()
			seen[id]++
		})

		if len(seen) != len(ids) {
			t.Errorf("%T dispatched %d ids, want %d", d, len(seen), len(ids))
		}
		for id, n := range seen {
			if n != 1 {
				t.Errorf("%T dispatched %d %d times", d, id, n)
			}
		}
	}
}

func TestDispatchers_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, d := range []Dispatcher{Sequential{}, Pool{Workers: 2}} {
		calls := 0
		d.Dispatch(ctx, []int{1, 2, 3}, func(ctx context.Context, id int) { calls++ })
		if calls != 0 {
			t.Errorf("%T made %d calls on a cancelled context", d, calls)
		}
	}
}

func TestNotifiers(t *testing.T) {
	var got []EventKind
	ns := Notifiers{
		NotifierFunc(func(e Event) { got = append(got, e.Kind) }),
		nil,
		NotifierFunc(func(e Event) { got = append(got, e.Kind) }),
	}
	ns.Notify(Event{Kind: EventProgress})

	if len(got) != 2 {
		t.Errorf("delivered %d events, want 2", len(got))
	}
}
