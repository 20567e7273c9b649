package queue

import (
	"context"
	"time"
)

// Standard priorities.
const (
	PriorityFlush    = 10 // host asked to annotate now
	PriorityEdit     = 3  // debounce fired after an edit
	PriorityFollowUp = 1  // owed cycle after an edit during flight
)

// QueueItem represents a single request in the dispatch queue.
//
// Items are prioritized (higher priority = executed first) and can supersede
// other items (causing them to be canceled). Each item has its own context
// for cancellation.
type QueueItem struct {
	// ID uniquely identifies this item for tracking and cancellation
	ID string

	// Priority determines execution order (higher = sooner)
	Priority int

	// Type categorizes the request for metrics and logs, e.g. "annotate"
	Type string

	// Request is the function to execute; its context is canceled if the
	// item is superseded or canceled
	Request func(context.Context) error

	Context context.Context
	Cancel  context.CancelFunc

	// Supersedes contains IDs of items this replaces
	Supersedes []string

	Created time.Time

	// Metadata for logging, e.g. the document id
	Metadata map[string]interface{}
}

// Option configures a QueueItem when creating it.
type Option func(*QueueItem)

// WithPriority sets the execution priority.
// Higher values execute first.
func WithPriority(p int) Option {
	return func(qi *QueueItem) {
		qi.Priority = p
	}
}

// WithType categorizes the request for logs and metrics.
func WithType(t string) Option {
	return func(qi *QueueItem) {
		qi.Type = t
	}
}

// WithSupersedes marks this item as replacing others.
// The specified items will be canceled when this is enqueued.
func WithSupersedes(ids ...string) Option {
	return func(qi *QueueItem) {
		qi.Supersedes = append(qi.Supersedes, ids...)
	}
}

// WithMetadata attaches arbitrary data for logging.
func WithMetadata(key string, value interface{}) Option {
	return func(qi *QueueItem) {
		if qi.Metadata == nil {
			qi.Metadata = make(map[string]interface{})
		}
		qi.Metadata[key] = value
	}
}

// NewQueueItem creates a QueueItem with the given options.
// This is typically called by Manager.Submit(), not directly.
func NewQueueItem(ctx context.Context, id string, request func(context.Context) error, opts ...Option) *QueueItem {
	itemCtx, cancel := context.WithCancel(ctx)

	item := &QueueItem{
		ID:       id,
		Priority: PriorityEdit,
		Type:     "generic",
		Request:  request,
		Context:  itemCtx,
		Cancel:   cancel,
		Created:  time.Now(),
		Metadata: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(item)
	}

	return item
}
