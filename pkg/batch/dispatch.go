package batch

import (
	"context"
	"sync"
)

// Dispatcher runs fn once per ID until ctx is cancelled.
type Dispatcher interface {
	Dispatch(ctx context.Context, ids []int, fn func(ctx context.Context, id int))
}

// Sequential dispatches one ID at a time on the calling goroutine. The
// cancellation check happens before each dispatch, so at most the in-flight
// call completes after ctx is cancelled.
type Sequential struct{}

// Dispatch implements Dispatcher.
func (Sequential) Dispatch(ctx context.Context, ids []int, fn func(ctx context.Context, id int)) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		fn(ctx, id)
	}
}

// Pool dispatches IDs to a fixed number of worker goroutines. All IDs are
// queued up front; workers skip whatever is still queued once ctx is
// cancelled. Dispatch returns after every worker has exited.
type Pool struct {
	Workers int
}

// Dispatch implements Dispatcher.
func (p Pool) Dispatch(ctx context.Context, ids []int, fn func(ctx context.Context, id int)) {
	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	queue := make(chan int, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				if ctx.Err() != nil {
					return
				}
				fn(ctx, id)
			}
		}()
	}
	wg.Wait()
}

// dispatcherFor selects the strategy for mode.
func dispatcherFor(mode Mode, workers int) Dispatcher {
	if mode == ModeSequential {
		return Sequential{}
	}
	return Pool{Workers: workers}
}
