// Package batch orchestrates the download of one numbered range of records.
//
// A Task owns a contiguous ID range [BatchSize*(BatchNumber-1), BatchSize*BatchNumber)
// and walks the lifecycle
//
//	Created -> Started -> Completed -> Saved
//	                   \-> Stopped
//
// While Started, every ID is handed to a retrying fetch through a Dispatcher:
// a bounded worker Pool in parallel mode, or a Sequential loop that checks
// for cancellation before each dispatch. Outcomes are collected by ID
// regardless of completion order, and a per-item log keeps the completion
// order for display. Once every ID has an outcome the task becomes Completed,
// strips the ID field from stored records and saves itself through a
// persist.Persistor. A failed save leaves the task Completed and emits an
// EventSaveError; the caller may call Save again, e.g. with overwrite set.
//
// Basic usage:
//
//	cfg := batch.DefaultConfig(3)
//	task, err := batch.New(cfg, fetcher, persist.New(persistCfg), notifier)
//	if err != nil {
//		return err
//	}
//	task.StartAsync(ctx)
//	task.Wait()
//
// All getters return snapshots; observers never mutate task state.
package batch
