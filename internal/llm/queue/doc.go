// Package queue dispatches annotation requests to a bounded worker pool.
//
// # Overview
//
// A local model server can only serve a few requests at once. The queue
// holds pending requests in priority order and a processor runs them with
// a fixed number of workers. It provides:
//   - Priority-based scheduling (explicit flushes before debounced edits)
//   - Superseding and cancellation (a detached document's request is dropped)
//   - An optional per-request timeout
//
// # Architecture
//
//   - QueueItem: a single request with priority and its own context
//   - Queue: priority queue that holds and sorts items
//   - Processor: workers that execute items from the queue
//   - Deduplicator: cancels superseded items
//   - Manager: coordinates all components
//
// The engine submits one item per annotation cycle; the item calls the
// transport and posts the outcome back to the document's loop.
//
// # Example
//
//	manager := queue.NewManager(queue.WithMaxWorkers(2))
//	_ = manager.Start()
//	defer manager.Stop()
//
//	id, err := manager.Submit(ctx, func(ctx context.Context) error {
//	    return annotate(ctx)
//	}, queue.WithPriority(queue.PriorityFlush))
//
//	manager.Cancel(id)
package queue
