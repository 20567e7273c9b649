package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/config"
	"github.com/billie-coop/margin/internal/csync"
	"github.com/billie-coop/margin/internal/debounce"
	"github.com/billie-coop/margin/internal/events"
	"github.com/billie-coop/margin/internal/gate"
	"github.com/billie-coop/margin/internal/llm"
	"github.com/billie-coop/margin/internal/llm/queue"
	"github.com/billie-coop/margin/internal/metrics"
	"github.com/billie-coop/margin/internal/parser"
)

var (
	// ErrDormant is returned by Attach when the configuration was rejected.
	ErrDormant = errors.New("engine is dormant")

	// ErrNotAttached is returned for a document that is not attached.
	ErrNotAttached = errors.New("document not attached")

	// ErrAlreadyAttached is returned when attaching a document twice.
	ErrAlreadyAttached = errors.New("document already attached")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// TextSource supplies document contents and edit notifications.
type TextSource interface {
	Snapshot(docID string) (changes.Snapshot, error)
	Edits(ctx context.Context, docID string) (<-chan changes.EditSignal, error)
}

// Engine is the registry of attached documents.
type Engine struct {
	cfg       *config.Config
	source    TextSource
	transport llm.Transport
	sink      Sink
	policy    gate.Policy
	randFor   func(docID string) gate.Rand
	parser    *parser.Parser
	broker    *events.Broker
	logger    *slog.Logger
	newID     func() string

	store   *annotations.Store
	sched   *debounce.Scheduler
	queue   *queue.Manager
	classes map[string]struct{}

	docs    *csync.Map[string, *document]
	notices *csync.Slice[events.Notice]

	dormant error

	mu     sync.Mutex
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets where annotations are rendered.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithPolicy replaces the threshold gate.
func WithPolicy(policy gate.Policy) Option {
	return func(e *Engine) {
		if policy != nil {
			e.policy = policy
		}
	}
}

// WithRandFactory supplies the randomness source for each document.
func WithRandFactory(fn func(docID string) gate.Rand) Option {
	return func(e *Engine) {
		if fn != nil {
			e.randFor = fn
		}
	}
}

// WithBroker publishes lifecycle events to broker.
func WithBroker(broker *events.Broker) Option {
	return func(e *Engine) {
		e.broker = broker
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore shares an annotation store with the host.
func WithStore(store *annotations.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithRequestIDs replaces the uuid request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New creates an engine. An invalid configuration or a missing transport
// leaves the engine dormant: it logs the reason once and refuses every
// Attach with ErrDormant.
func New(cfg *config.Config, source TextSource, transport llm.Transport, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	e := &Engine{
		cfg:       cfg,
		source:    source,
		transport: transport,
		sink:      NopSink{},
		policy:    gate.ThresholdPolicy{Threshold: cfg.ResponseThreshold},
		parser:    parser.New(),
		logger:    slog.Default(),
		newID:     uuid.NewString,
		store:     annotations.NewStore(),
		classes:   cfg.EditClasses(),
		docs:      csync.NewMap[string, *document](),
		notices:   csync.NewSlice[events.Notice](),
	}
	e.randFor = seededRand(cfg.Seed)

	for _, opt := range opts {
		opt(e)
	}

	e.sched = debounce.New(debounce.WithLogger(e.logger))

	switch err := cfg.Validate(); {
	case err != nil:
		e.dormancy(err)
	case transport == nil:
		e.dormancy(fmt.Errorf("%w: no transport configured", config.ErrConfig))
	case source == nil:
		e.dormancy(fmt.Errorf("%w: no text source configured", config.ErrConfig))
	}
	if e.dormant != nil {
		return e
	}

	e.queue = queue.NewManager(
		queue.WithMaxWorkers(cfg.MaxInFlight),
		queue.WithTimeout(cfg.RequestTimeout()),
		queue.WithLogger(e.logger),
	)
	if err := e.queue.Start(); err != nil {
		e.dormancy(fmt.Errorf("failed to start request queue: %w", err))
	}

	return e
}

// dormancy records why the engine refuses to attach documents.
func (e *Engine) dormancy(err error) {
	e.dormant = err
	e.logger.Warn("engine dormant", "error", err)
	e.notify("", events.Notice{
		Level:   events.NoticeError,
		Message: "annotations disabled: " + err.Error(),
		Err:     err,
	})
}

// seededRand derives a per-document generator from seed. A zero seed
// draws from the clock.
func seededRand(seed uint64) func(string) gate.Rand {
	return func(docID string) gate.Rand {
		s := seed
		if s == 0 {
			s = uint64(time.Now().UnixNano())
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(docID))
		return gate.NewRand(s ^ h.Sum64())
	}
}

// Dormant reports whether the engine refused its configuration.
func (e *Engine) Dormant() bool {
	return e.dormant != nil
}

// DormantReason returns the configuration error, if any.
func (e *Engine) DormantReason() error {
	return e.dormant
}

// Store exposes the annotation store for read access.
func (e *Engine) Store() *annotations.Store {
	return e.store
}

// Annotations returns the current annotations of docID.
func (e *Engine) Annotations(docID string) []annotations.Annotation {
	return e.store.Get(docID)
}

// Notices returns up to n of the most recent notices, oldest first.
func (e *Engine) Notices(n int) []events.Notice {
	return e.notices.Tail(n)
}

// QueueStatus reports the dispatch queue's depth and recent performance.
func (e *Engine) QueueStatus() queue.Status {
	if e.queue == nil {
		return queue.Status{}
	}
	return e.queue.GetStatus()
}

func (e *Engine) observeQueue() {
	st := e.QueueStatus()
	metrics.QueueDepth(st.Pending, st.Active)
}

// Documents lists attached document ids.
func (e *Engine) Documents() []string {
	return e.docs.Keys()
}

// Attach starts tracking docID. Its current text becomes the baseline the
// first cycle diffs against.
func (e *Engine) Attach(docID string) error {
	if e.dormant != nil {
		return fmt.Errorf("%w: %v", ErrDormant, e.dormant)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	snap, err := e.source.Snapshot(docID)
	if err != nil {
		return fmt.Errorf("failed to snapshot %s: %w", docID, err)
	}

	d := newDocument(e, docID, snap.Lines)
	edits, err := e.source.Edits(d.ctx, docID)
	if err != nil {
		d.cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", docID, err)
	}

	if !e.docs.SetIfAbsent(docID, d) {
		d.cancel()
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, docID)
	}
	go d.loop()
	go d.pump(edits)

	metrics.DocumentAttached()
	e.logger.Info("document attached", "doc", docID, "lines", snap.LineCount())
	e.publish(events.New(events.DocumentAttachedEvent, docID, nil))
	return nil
}

// Detach stops tracking docID. A pending timer is canceled, the current
// request is forgotten so its result is discarded, and the document's
// annotations are cleared from the store and the sink. A concurrent
// Attach of the same id waits until teardown has finished.
func (e *Engine) Detach(docID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.docs.Take(docID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttached, docID)
	}
	d.stop()
	return nil
}

// Edit delivers one edit signal and returns once overlapping annotations
// have been invalidated. Hosts without an edit stream use this directly.
func (e *Engine) Edit(docID string, sig changes.EditSignal) error {
	d, ok := e.docs.Get(docID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttached, docID)
	}
	return d.call(func() { d.onEdit(sig) })
}

// Flush runs a cycle for docID right away. The gate is bypassed, and when
// nothing changed since the last cycle the whole document is sent.
func (e *Engine) Flush(docID string) error {
	d, ok := e.docs.Get(docID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttached, docID)
	}
	return d.call(d.onFlush)
}

// Reset clears docID's annotations, abandons any in-flight request and
// forgets the baseline, so the next cycle sees every line as changed.
func (e *Engine) Reset(docID string) error {
	d, ok := e.docs.Get(docID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttached, docID)
	}
	return d.call(d.onReset)
}

// State reports docID's current state.
func (e *Engine) State(docID string) (State, error) {
	d, ok := e.docs.Get(docID)
	if !ok {
		return Idle, fmt.Errorf("%w: %s", ErrNotAttached, docID)
	}
	var s State
	if err := d.call(func() { s = d.state }); err != nil {
		return Idle, err
	}
	return s, nil
}

// Close detaches every document and stops the dispatch queue.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.queue != nil {
		if n := e.queue.CancelByType(requestType); n > 0 {
			e.logger.Debug("canceled outstanding requests", "count", n)
		}
	}
	for _, id := range e.docs.Keys() {
		if d, ok := e.docs.Take(id); ok {
			d.stop()
		}
	}
	e.sched.Stop()
	if e.queue != nil {
		_ = e.queue.Stop()
	}
	return nil
}

const maxNotices = 100

func (e *Engine) notify(docID string, n events.Notice) {
	e.notices.Append(n)
	e.notices.Keep(maxNotices)
	e.publish(events.New(events.NoticeEvent, docID, n))
}

func (e *Engine) publish(ev events.Event) {
	if e.broker != nil {
		e.broker.Publish(ev)
	}
}
