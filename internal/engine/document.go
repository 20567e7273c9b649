package engine

import (
	"context"
	"errors"
	"time"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/events"
	"github.com/billie-coop/margin/internal/gate"
	"github.com/billie-coop/margin/internal/llm"
	"github.com/billie-coop/margin/internal/llm/queue"
	"github.com/billie-coop/margin/internal/metrics"
	"github.com/billie-coop/margin/internal/parser"
)

const mailboxSize = 64

// requestType tags annotation requests in the dispatch queue.
const requestType = "annotate"

// Drop reasons for incoming annotations.
const (
	dropOutOfRange     = "out_of_range"
	dropEditedInFlight = "edited_in_flight"
)

// pendingRequest is the one request a document is waiting for.
type pendingRequest struct {
	ID       string
	QueueID  string
	Snapshot changes.Snapshot
	Changed  changes.ChangeSet
	Started  time.Time
}

// message is anything the document loop processes. Every message runs on
// the loop goroutine.
type message func()

// document owns the state of one attached document. Fields below mailbox
// are only touched by loop.
type document struct {
	e  *Engine
	id string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mailbox chan message

	state          State
	lastSent       []string
	timerGen       uint64
	pending        *pendingRequest
	owed           bool
	editedInFlight []changes.Range
	installed      uint64 // snapshot version of the stored set
	rand           gate.Rand
}

func newDocument(e *Engine, id string, baseline []string) *document {
	ctx, cancel := context.WithCancel(context.Background())
	return &document{
		e:        e,
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		mailbox:  make(chan message, mailboxSize),
		lastSent: baseline,
		rand:     e.randFor(id),
	}
}

// loop runs until the document is detached.
func (d *document) loop() {
	defer close(d.done)
	defer d.teardown()

	for {
		select {
		case <-d.ctx.Done():
			return
		case msg := <-d.mailbox:
			msg()
		}
	}
}

// pump forwards the source's edit stream, waiting for each signal to be
// processed before taking the next.
func (d *document) pump(edits <-chan changes.EditSignal) {
	for {
		select {
		case <-d.ctx.Done():
			return
		case sig, ok := <-edits:
			if !ok {
				d.e.logger.Debug("edit stream ended", "doc", d.id)
				return
			}
			if err := d.call(func() { d.onEdit(sig) }); err != nil {
				return
			}
		}
	}
}

// post queues msg without waiting. It reports false once the loop is gone.
func (d *document) post(msg message) bool {
	select {
	case d.mailbox <- msg:
		return true
	case <-d.done:
		return false
	case <-d.ctx.Done():
		return false
	}
}

// call runs fn on the loop and waits for it.
func (d *document) call(fn func()) error {
	ack := make(chan struct{})
	if !d.post(func() { fn(); close(ack) }) {
		return ErrNotAttached
	}
	select {
	case <-ack:
		return nil
	case <-d.done:
		return ErrNotAttached
	}
}

// stop ends the loop and waits for teardown.
func (d *document) stop() {
	d.cancel()
	<-d.done
}

func (d *document) setState(to State) {
	if d.state == to {
		return
	}
	from := d.state
	d.state = to
	d.e.publish(events.New(events.StateChangedEvent, d.id, events.StatePayload{From: from.String(), To: to.String()}))
}

func (d *document) onEdit(sig changes.EditSignal) {
	if _, ok := d.e.classes[sig.Kind]; !ok {
		return
	}

	edited := sig.Delta.Range()
	if !contains(d.installed, sig) {
		if removed := d.e.store.InvalidateOverlapping(d.id, edited); len(removed) > 0 {
			metrics.Invalidated(len(removed))
			d.e.logger.Debug("annotations invalidated", "doc", d.id, "start", edited.Start, "end", edited.End, "removed", len(removed))
			d.render()
		}
	}

	switch d.state {
	case Idle, Debouncing:
		d.schedule()
	case Requesting:
		if d.pending != nil && contains(d.pending.Snapshot.Version, sig) {
			d.e.logger.Debug("edit already in request snapshot", "doc", d.id, "version", sig.Version)
			return
		}
		d.owed = true
		d.editedInFlight = append(d.editedInFlight, edited)
	}
}

// contains reports whether a snapshot taken at version already includes the
// edit behind sig. Unversioned signals are never contained.
func contains(version uint64, sig changes.EditSignal) bool {
	return sig.Version != 0 && version != 0 && sig.Version <= version
}

// schedule (re)arms the debounce timer and enters Debouncing.
func (d *document) schedule() {
	d.timerGen++
	gen := d.timerGen
	d.e.sched.Schedule(d.id, d.e.cfg.Debounce(), func() {
		d.post(func() { d.onFire(gen) })
	})
	d.setState(Debouncing)
}

func (d *document) cancelTimer() {
	d.timerGen++
	d.e.sched.Cancel(d.id)
}

func (d *document) onFire(gen uint64) {
	if d.state != Debouncing || gen != d.timerGen {
		return
	}
	d.cycle(false)
}

func (d *document) onFlush() {
	d.cancelTimer()
	d.cycle(true)
}

func (d *document) onReset() {
	d.cancelTimer()
	d.abandon()
	d.lastSent = nil
	d.owed = false
	d.editedInFlight = nil
	d.installed = 0
	d.e.store.Clear(d.id)
	d.e.sink.Clear(d.id)
	d.setState(Idle)
}

// abandon forgets the current request so its result will be discarded.
func (d *document) abandon() {
	if d.pending == nil {
		return
	}
	d.e.queue.Cancel(d.pending.QueueID)
	d.pending = nil
}

// cycle snapshots the document and decides whether to send a request.
// forced cycles bypass the gate.
func (d *document) cycle(forced bool) {
	snap, err := d.e.source.Snapshot(d.id)
	if err != nil {
		d.e.logger.Warn("failed to snapshot document", "doc", d.id, "error", err)
		d.notice(events.NoticeError, "could not read document", err)
		d.setState(d.idleOrRequesting())
		return
	}

	if snap.TextLen() < d.e.cfg.MinimumTextLength {
		metrics.Cycle("below_minimum")
		d.abandon()
		d.installed = 0
		d.e.store.Clear(d.id)
		d.e.sink.Clear(d.id)
		d.lastSent = snap.Lines
		d.setState(Idle)
		return
	}

	changed := changes.Diff(d.lastSent, snap.Lines)
	if changed.Empty() {
		if !forced || snap.LineCount() == 0 {
			metrics.Cycle("empty_diff")
			d.setState(d.idleOrRequesting())
			return
		}
		changed = allLines(snap.LineCount())
	}

	if !forced {
		decision := d.e.policy.Decide(gate.Input{Changed: changed.Len(), Total: snap.LineCount()}, d.rand)
		metrics.GateDecision(decision.String())
		if decision == gate.Skip {
			metrics.Cycle("skipped")
			d.e.logger.Debug("gate skipped cycle", "doc", d.id, "changed", changed.Len(), "total", snap.LineCount())
			d.e.publish(events.New(events.RequestSkippedEvent, d.id, events.RequestPayload{
				SnapshotVersion: snap.Version,
				ChangedLines:    changed.Len(),
				Reason:          "gate",
			}))
			d.lastSent = snap.Lines
			d.setState(Idle)
			return
		}
	}

	metrics.Cycle("requested")
	priority := queue.PriorityEdit
	if forced {
		priority = queue.PriorityFlush
	}
	d.issue(snap, changed, priority)
}

// idleOrRequesting is the state to fall back to when a cycle ends without
// issuing a request.
func (d *document) idleOrRequesting() State {
	if d.pending != nil {
		return Requesting
	}
	return Idle
}

// issue submits a request for snap and makes it the current one. A request
// already in flight is superseded.
func (d *document) issue(snap changes.Snapshot, changed changes.ChangeSet, priority int) {
	req := &pendingRequest{
		ID:       d.e.newID(),
		Snapshot: snap,
		Changed:  changed,
		Started:  time.Now(),
	}
	prompt := llm.BuildPrompt(snap, changed)

	opts := []queue.Option{
		queue.WithPriority(priority),
		queue.WithType(requestType),
		queue.WithMetadata("doc", d.id),
		queue.WithMetadata("request", req.ID),
	}
	if d.pending != nil {
		opts = append(opts, queue.WithSupersedes(d.pending.QueueID))
	}

	transport := d.e.transport
	docID := d.id
	qid, err := d.e.queue.Submit(d.ctx, func(ctx context.Context) error {
		body, err := transport.Submit(ctx, docID, prompt)
		d.post(func() { d.onResult(req.ID, body, err) })
		return err
	}, opts...)
	if err != nil {
		d.e.logger.Warn("failed to queue request", "doc", d.id, "error", err)
		d.notice(events.NoticeError, "could not queue request", err)
		d.pending = nil
		d.setState(Idle)
		return
	}

	req.QueueID = qid
	d.pending = req
	d.owed = false
	d.editedInFlight = nil
	d.setState(Requesting)
	d.e.observeQueue()

	d.e.logger.Debug("request issued", "doc", d.id, "request", req.ID, "version", snap.Version, "changed", changed.Len())
	d.e.publish(events.New(events.RequestIssuedEvent, d.id, events.RequestPayload{
		RequestID:       req.ID,
		SnapshotVersion: snap.Version,
		ChangedLines:    changed.Len(),
	}))
}

// onResult applies or discards the outcome of a request.
func (d *document) onResult(requestID, body string, err error) {
	if d.pending == nil || d.pending.ID != requestID {
		metrics.Response(metrics.OutcomeStale, 0)
		d.e.logger.Debug("discarding stale response", "doc", d.id, "request", requestID)
		d.e.publish(events.New(events.RequestDiscardedEvent, d.id, events.RequestPayload{RequestID: requestID, Reason: "stale"}))
		return
	}

	req := d.pending
	d.pending = nil
	latency := time.Since(req.Started)
	d.e.observeQueue()

	switch {
	case err != nil:
		metrics.Response(metrics.OutcomeError, latency)
		d.e.logger.Warn("annotation request failed", "doc", d.id, "request", req.ID, "error", err)
		d.notice(events.NoticeWarn, "annotation request failed", err)
	default:
		d.apply(req, body, latency)
	}

	d.lastSent = req.Snapshot.Lines
	d.editedInFlight = nil
	d.setState(Idle)

	if d.owed {
		d.owed = false
		d.schedule()
	}
}

// apply parses body and installs what survives filtering. Anything short
// of at least one surviving annotation leaves the store untouched.
func (d *document) apply(req *pendingRequest, body string, latency time.Duration) {
	res, err := d.e.parser.Parse(body, req.ID)
	if err != nil {
		metrics.Response(metrics.OutcomeParse, latency)
		level := events.NoticeWarn
		if !errors.Is(err, parser.ErrParse) {
			level = events.NoticeError
		}
		d.e.logger.Warn("unparseable annotation response", "doc", d.id, "request", req.ID, "error", err)
		d.notice(level, "could not parse annotation response", err)
		return
	}

	lineCount := req.Snapshot.LineCount()
	if live, err := d.e.source.Snapshot(d.id); err == nil {
		lineCount = live.LineCount()
	}

	inRange := annotations.Filter(res.Annotations, func(a annotations.Annotation) bool {
		return a.Range.Valid(lineCount)
	})
	metrics.Dropped(dropOutOfRange, len(res.Annotations)-len(inRange))

	keep := annotations.Filter(inRange, func(a annotations.Annotation) bool {
		for _, r := range d.editedInFlight {
			if a.Range.Overlaps(r) {
				return false
			}
		}
		return true
	})
	metrics.Dropped(dropEditedInFlight, len(inRange)-len(keep))

	if len(keep) == 0 {
		metrics.Response(metrics.OutcomeEmpty, latency)
		d.e.logger.Debug("no annotations to apply", "doc", d.id, "request", req.ID, "parsed", len(res.Annotations))
		return
	}

	d.e.store.Replace(d.id, keep)
	d.installed = req.Snapshot.Version
	d.render()
	metrics.Response(metrics.OutcomeApplied, latency)

	d.e.logger.Info("annotations applied", "doc", d.id, "request", req.ID, "count", len(keep), "schema", res.Schema)
	d.e.publish(events.New(events.AnnotationsEvent, d.id, events.AnnotationsPayload{
		RequestID: req.ID,
		Count:     len(keep),
		Dropped:   len(res.Annotations) - len(keep),
	}))
}

// render pushes the store's current set to the sink.
func (d *document) render() {
	current := d.e.store.Get(d.id)
	if len(current) == 0 {
		d.e.sink.Clear(d.id)
		return
	}
	d.e.sink.Apply(d.id, current)
}

func (d *document) notice(level events.NoticeLevel, msg string, err error) {
	d.e.notify(d.id, events.Notice{Level: level, Message: msg, Err: err})
}

// teardown runs on the loop goroutine as it exits.
func (d *document) teardown() {
	d.cancelTimer()
	d.abandon()
	d.e.store.Clear(d.id)
	d.e.sink.Clear(d.id)

	metrics.DocumentDetached()
	d.e.logger.Info("document detached", "doc", d.id)
	d.e.publish(events.New(events.DocumentDetachedEvent, d.id, nil))
}

func allLines(n int) changes.ChangeSet {
	out := make(changes.ChangeSet, n)
	for i := range out {
		out[i] = i
	}
	return out
}
