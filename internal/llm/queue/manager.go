package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/billie-coop/margin/internal/csync"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("queue stopped")

// Manager coordinates all queue components.
//
// It ties together:
//   - Queue (holds items)
//   - Processor (executes items)
//   - Deduplicator (cancels superseded items)
type Manager struct {
	queue *Queue
	proc  *Processor
	dedup *Deduplicator

	nextID atomic.Uint64

	// Track items by ID for status queries
	items *csync.Map[string, *QueueItem]

	logger *slog.Logger

	started bool
	mutex   sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	maxWorkers int
	timeout    time.Duration
	logger     *slog.Logger
}

// WithMaxWorkers bounds parallel requests (default 1).
func WithMaxWorkers(n int) ManagerOption {
	return func(c *managerConfig) {
		c.maxWorkers = n
	}
}

// WithTimeout bounds each request; zero means no timeout.
func WithTimeout(d time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// NewManager creates a queue manager.
func NewManager(opts ...ManagerOption) *Manager {
	cfg := managerConfig{maxWorkers: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	queue := NewQueue()
	m := &Manager{
		queue:  queue,
		proc:   NewProcessor(queue, cfg.maxWorkers, cfg.timeout, cfg.logger),
		dedup:  NewDeduplicator(),
		items:  csync.NewMap[string, *QueueItem](),
		logger: cfg.logger,
	}

	m.proc.OnStart(m.onItemStart)
	m.proc.OnComplete(m.onItemComplete)

	return m
}

// Start begins processing queued items.
func (m *Manager) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.started {
		return fmt.Errorf("manager already started")
	}

	m.proc.Start()
	m.started = true
	return nil
}

// Stop shuts down the queue system.
// Pending items are canceled and in-flight requests awaited.
func (m *Manager) Stop() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.started {
		return fmt.Errorf("manager not started")
	}

	m.proc.Stop()
	m.started = false
	return nil
}

// Submit adds a request to the queue and returns its id.
//
//	id, err := manager.Submit(ctx, func(ctx context.Context) error {
//	    body, err := transport.Submit(ctx, docID, prompt)
//	    ...
//	}, queue.WithPriority(queue.PriorityEdit), queue.WithType("annotate"))
func (m *Manager) Submit(ctx context.Context, request func(context.Context) error, opts ...Option) (string, error) {
	id := fmt.Sprintf("req_%d_%d", time.Now().Unix(), m.nextID.Add(1))

	item := NewQueueItem(ctx, id, request, opts...)

	if len(item.Supersedes) > 0 {
		m.dedup.CancelMany(item.Supersedes)
		for _, oldID := range item.Supersedes {
			m.queue.Remove(oldID)
			m.items.Delete(oldID)
		}
	}

	m.items.Set(id, item)
	m.dedup.Register(id, item.Cancel)

	if !m.queue.Push(item) {
		m.dedup.Unregister(id)
		m.items.Delete(id)
		item.Cancel()
		return "", ErrStopped
	}

	return id, nil
}

// Cancel aborts a request by ID.
// Returns true if the request was found and canceled.
func (m *Manager) Cancel(id string) bool {
	canceled := m.dedup.Cancel(id)
	removed := m.queue.Remove(id)

	if canceled || removed {
		m.items.Delete(id)
		return true
	}

	return false
}

// CancelByType cancels all requests of a given type.
func (m *Manager) CancelByType(requestType string) int {
	var ids []string
	for _, item := range m.items.Values() {
		if item.Type == requestType {
			ids = append(ids, item.ID)
		}
	}

	canceled := 0
	for _, id := range ids {
		if m.Cancel(id) {
			canceled++
		}
	}
	return canceled
}

// Status reports queue depth and performance.
type Status struct {
	Pending   int
	Active    int
	AvgTime   time.Duration
	ErrorRate float64
}

// GetStatus returns current queue metrics.
func (m *Manager) GetStatus() Status {
	avgTime, errorRate := m.proc.GetMetrics()

	pending := m.queue.Len()
	active := m.dedup.ActiveCount() - pending
	if active < 0 {
		active = 0
	}
	return Status{
		Pending:   pending,
		Active:    active,
		AvgTime:   avgTime,
		ErrorRate: errorRate,
	}
}

func (m *Manager) onItemStart(item *QueueItem) {
	m.logger.Debug("queue item started", "item", item.ID, "type", item.Type, "priority", item.Priority, "doc", item.Metadata["doc"])
}

func (m *Manager) onItemComplete(item *QueueItem, err error, duration time.Duration) {
	m.dedup.Unregister(item.ID)
	m.items.Delete(item.ID)
	item.Cancel()

	if err != nil {
		m.logger.Debug("queue item failed", "item", item.ID, "type", item.Type, "duration", duration, "error", err)
		return
	}
	m.logger.Debug("queue item completed", "item", item.ID, "type", item.Type, "duration", duration)
}
