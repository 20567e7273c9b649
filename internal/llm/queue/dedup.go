package queue

import (
	"context"
	"sync"
)

// Deduplicator tracks the cancel functions of live items so superseded or
// detached work can be aborted.
type Deduplicator struct {
	active map[string]context.CancelFunc
	mutex  sync.Mutex
}

// NewDeduplicator creates a new deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		active: make(map[string]context.CancelFunc),
	}
}

// Register tracks a new live item.
func (d *Deduplicator) Register(id string, cancel context.CancelFunc) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.active[id] = cancel
}

// Unregister removes a finished item.
func (d *Deduplicator) Unregister(id string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	delete(d.active, id)
}

// Cancel aborts a specific item if live.
// Returns true if the item was found and canceled.
func (d *Deduplicator) Cancel(id string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if cancel, exists := d.active[id]; exists {
		cancel()
		delete(d.active, id)
		return true
	}
	return false
}

// CancelMany aborts multiple items and returns how many were live.
func (d *Deduplicator) CancelMany(ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	canceled := 0
	for _, id := range ids {
		if cancel, exists := d.active[id]; exists {
			cancel()
			delete(d.active, id)
			canceled++
		}
	}
	return canceled
}

// ActiveCount returns the number of live items.
func (d *Deduplicator) ActiveCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return len(d.active)
}
