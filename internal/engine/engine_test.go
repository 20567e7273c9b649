package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/config"
	"github.com/billie-coop/margin/internal/events"
	"github.com/billie-coop/margin/internal/gate"
	"github.com/billie-coop/margin/internal/llm"
	"github.com/billie-coop/margin/internal/llm/queue"
	"github.com/billie-coop/margin/internal/source"
)

const waitFor = 2 * time.Second

// fakeCall is one Submit waiting for the test to answer it.
type fakeCall struct {
	docID  string
	prompt llm.Prompt
	reply  chan fakeReply
}

type fakeReply struct {
	body string
	err  error
}

func (c *fakeCall) respond(body string) { c.reply <- fakeReply{body: body} }
func (c *fakeCall) fail(err error)      { c.reply <- fakeReply{err: err} }

type fakeTransport struct {
	calls chan *fakeCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan *fakeCall, 16)}
}

func (f *fakeTransport) Submit(ctx context.Context, docID string, prompt llm.Prompt) (string, error) {
	call := &fakeCall{docID: docID, prompt: prompt, reply: make(chan fakeReply, 1)}
	f.calls <- call
	select {
	case r := <-call.reply:
		return r.body, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", llm.ErrTransport, ctx.Err())
	}
}

func (f *fakeTransport) next(t *testing.T) *fakeCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(waitFor):
		t.Fatal("no request submitted")
		return nil
	}
}

func (f *fakeTransport) none(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected request for %s", c.docID)
	case <-time.After(within):
	}
}

type recordingSink struct {
	mu      sync.Mutex
	applied [][]annotations.Annotation
	clears  int
}

func (s *recordingSink) Apply(_ string, anns []annotations.Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, anns)
}

func (s *recordingSink) Clear(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *recordingSink) applyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

func (s *recordingSink) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *recordingSink) last() []annotations.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.applied) == 0 {
		return nil
	}
	return s.applied[len(s.applied)-1]
}

type fixture struct {
	engine    *Engine
	buf       *source.Buffer
	transport *fakeTransport
	sink      *recordingSink
	broker    *events.Broker
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DebounceMS = 20
	cfg.ResponseThreshold = 1
	cfg.MinimumTextLength = 0
	cfg.Seed = 7
	return cfg
}

func newFixture(t *testing.T, mutate func(*config.Config), opts ...Option) *fixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	f := &fixture{
		buf:       source.NewBuffer(),
		transport: newFakeTransport(),
		sink:      &recordingSink{},
		broker:    events.NewBroker(),
	}
	opts = append([]Option{WithSink(f.sink), WithBroker(f.broker)}, opts...)
	f.engine = New(cfg, f.buf, f.transport, opts...)
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

func (f *fixture) open(t *testing.T, docID string, lines ...string) {
	t.Helper()
	f.buf.Open(docID, strings.Join(lines, "\n"))
	require.NoError(t, f.engine.Attach(docID))
}

func (f *fixture) waitState(t *testing.T, docID string, want State) {
	t.Helper()
	assert.Eventually(t, func() bool {
		s, err := f.engine.State(docID)
		return err == nil && s == want
	}, waitFor, 5*time.Millisecond, "state never became %s", want)
}

func comment(line int, text string) string {
	return fmt.Sprintf(`{"comments":[{"line_number":%d,"comment":%q}]}`, line, text)
}

func lines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line %d", i+1)
	}
	return out
}

func TestEngine_EndToEnd(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.DebounceMS = 100 })
	f.open(t, "doc")

	for i, line := range lines(10) {
		require.NoError(t, f.buf.InsertLines("doc", i, line))
	}

	call := f.transport.next(t)
	assert.Equal(t, "doc", call.docID)
	assert.Contains(t, call.prompt.User, "Changed lines: 1, 2, 3, 4, 5, 6, 7, 8, 9, 10")

	call.respond(comment(3, "x"))

	assert.Eventually(t, func() bool { return f.sink.applyCount() == 1 }, waitFor, 5*time.Millisecond)
	got := f.engine.Annotations("doc")
	require.Len(t, got, 1)
	assert.Equal(t, changes.Range{Start: 2, End: 2}, got[0].Range)
	assert.Equal(t, "x", got[0].Body)

	f.waitState(t, "doc", Idle)
	f.transport.none(t, 60*time.Millisecond)
}

func TestEngine_EditInvalidatesBeforeScheduling(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(30)...)

	require.NoError(t, f.buf.SetText("doc", strings.Join(append(lines(20), "a", "b", "c", "d", "e", "line 26", "line 27", "line 28", "line 29", "line 30"), "\n")))
	f.transport.next(t).respond(`[{"lineRange":[20,24],"title":"block","description":"d"}]`)
	assert.Eventually(t, func() bool { return f.engine.Store().Len("doc") == 1 }, waitFor, 5*time.Millisecond)
	f.waitState(t, "doc", Idle)

	// Edit just past the range: the annotation stays.
	require.NoError(t, f.engine.Edit("doc", changes.EditSignal{Kind: changes.KindDelete, Delta: changes.EditDelta{StartLine: 25, RemovedCount: 1}}))
	assert.Equal(t, 1, f.engine.Store().Len("doc"))

	// Edit inside the range: gone as soon as Edit returns.
	require.NoError(t, f.engine.Edit("doc", changes.EditSignal{Kind: changes.KindDelete, Delta: changes.EditDelta{StartLine: 22, RemovedCount: 1}}))
	assert.Equal(t, 0, f.engine.Store().Len("doc"))
	assert.GreaterOrEqual(t, f.sink.clearCount(), 1)
}

func TestEngine_StaleResponseIsDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(5)...)

	require.NoError(t, f.buf.SetLine("doc", 0, "changed"))
	first := f.transport.next(t)

	// An explicit flush makes a newer request current.
	require.NoError(t, f.buf.SetLine("doc", 4, "changed too"))
	require.NoError(t, f.engine.Flush("doc"))
	second := f.transport.next(t)

	first.respond(comment(1, "stale"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.sink.applyCount())

	// The line 5 edit is part of the flushed snapshot, so its signal landing
	// during the flight must not filter the fresh comment.
	second.respond(comment(5, "fresh"))
	assert.Eventually(t, func() bool { return f.sink.applyCount() == 1 }, waitFor, 5*time.Millisecond)
	require.Len(t, f.sink.last(), 1)
	assert.Equal(t, "fresh", f.sink.last()[0].Body)
	f.waitState(t, "doc", Idle)
	f.transport.none(t, 60*time.Millisecond)
}

func TestEngine_LateSignalForSnapshottedEdit(t *testing.T) {
	tests := []struct {
		name    string
		version func(snap changes.Snapshot) uint64
		kept    bool
	}{
		{"contained in request snapshot", func(snap changes.Snapshot) uint64 { return snap.Version }, true},
		{"unversioned", func(changes.Snapshot) uint64 { return 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.open(t, "doc", lines(5)...)
			require.NoError(t, f.engine.Flush("doc"))
			call := f.transport.next(t)
			f.waitState(t, "doc", Requesting)
			snap, err := f.buf.Snapshot("doc")
			require.NoError(t, err)

			sig := changes.EditSignal{
				Kind:    changes.KindChange,
				Delta:   changes.EditDelta{StartLine: 2, RemovedCount: 1, AddedCount: 1},
				Version: tt.version(snap),
			}
			require.NoError(t, f.engine.Edit("doc", sig))
			call.respond(comment(3, "on the edited line"))
			f.waitState(t, "doc", Idle)

			if !tt.kept {
				assert.Equal(t, 0, f.engine.Store().Len("doc"))
				return
			}
			require.Len(t, f.engine.Annotations("doc"), 1)
			assert.Equal(t, 1, f.sink.applyCount())

			// A repeat of the same signal after install leaves the set alone.
			require.NoError(t, f.engine.Edit("doc", sig))
			assert.Equal(t, 1, f.engine.Store().Len("doc"))
			f.transport.none(t, 60*time.Millisecond)
		})
	}
}

func TestEngine_DetachDiscardsLateResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(3)...)

	require.NoError(t, f.buf.SetLine("doc", 1, "edited"))
	call := f.transport.next(t)

	require.NoError(t, f.engine.Detach("doc"))
	call.respond(comment(2, "late"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.sink.applyCount())
	assert.Empty(t, f.engine.Annotations("doc"))
	assert.GreaterOrEqual(t, f.sink.clearCount(), 1)

	_, err := f.engine.State("doc")
	assert.True(t, errors.Is(err, ErrNotAttached))
	assert.True(t, errors.Is(f.engine.Detach("doc"), ErrNotAttached))
}

func TestEngine_ReattachWhileDetaching(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(3)...)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.engine.Detach("doc"))
	}()
	assert.Eventually(t, func() bool { return f.engine.Attach("doc") == nil }, waitFor, time.Millisecond)
	wg.Wait()

	// The old teardown must not touch the new document's timer or store.
	require.NoError(t, f.buf.SetLine("doc", 0, "edited"))
	f.transport.next(t).respond(comment(1, "after reattach"))
	assert.Eventually(t, func() bool { return f.engine.Store().Len("doc") == 1 }, waitFor, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, f.engine.Store().Len("doc"))
	assert.Equal(t, []string{"doc"}, f.engine.Documents())
}

func TestEngine_CloseCancelsOutstandingRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(3)...)

	require.NoError(t, f.buf.SetLine("doc", 1, "edited"))
	f.transport.next(t)
	assert.Eventually(t, func() bool { return f.engine.QueueStatus().Active == 1 }, waitFor, 5*time.Millisecond)

	// The fake transport only returns once its context is canceled.
	require.NoError(t, f.engine.Close())
	assert.Equal(t, queue.Status{}.Active, f.engine.QueueStatus().Active)
	assert.Equal(t, 0, f.sink.applyCount())
	assert.True(t, errors.Is(f.engine.Attach("doc"), ErrClosed))
}

func TestEngine_EditDuringFlightOwesFollowUp(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(10)...)

	require.NoError(t, f.buf.SetLine("doc", 0, "first edit"))
	first := f.transport.next(t)
	f.waitState(t, "doc", Requesting)

	// Edits during flight neither cancel nor start a new request.
	require.NoError(t, f.buf.SetLine("doc", 7, "edited in flight"))
	f.transport.none(t, 60*time.Millisecond)

	state, err := f.engine.State("doc")
	require.NoError(t, err)
	assert.Equal(t, Requesting, state)

	// Line 8 was edited in flight, so its comment is dropped; line 1 survives.
	first.respond(`{"comments":[{"line_number":1,"comment":"keep"},{"line_number":8,"comment":"drop"}]}`)
	assert.Eventually(t, func() bool { return f.sink.applyCount() == 1 }, waitFor, 5*time.Millisecond)
	require.Len(t, f.sink.last(), 1)
	assert.Equal(t, "keep", f.sink.last()[0].Body)

	// The owed cycle diffs the live text against the snapshot just resolved.
	second := f.transport.next(t)
	assert.Contains(t, second.prompt.User, "Changed lines: 8\n")
	second.respond(`{"comments": []}`)
	f.waitState(t, "doc", Idle)
}

func TestEngine_FailuresKeepStore(t *testing.T) {
	tests := []struct {
		name  string
		reply func(*fakeCall)
		level events.NoticeLevel
	}{
		{"transport error", func(c *fakeCall) { c.fail(fmt.Errorf("%w: connection refused", llm.ErrTransport)) }, events.NoticeWarn},
		{"parse error", func(c *fakeCall) { c.respond("I have no idea what JSON is") }, events.NoticeWarn},
		{"empty result", func(c *fakeCall) { c.respond(`{"comments": []}`) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			notices := f.broker.Subscribe(events.NoticeEvent)
			f.open(t, "doc", lines(10)...)

			require.NoError(t, f.buf.SetLine("doc", 0, "edit"))
			f.transport.next(t).respond(comment(1, "keep me"))
			assert.Eventually(t, func() bool { return f.engine.Store().Len("doc") == 1 }, waitFor, 5*time.Millisecond)
			f.waitState(t, "doc", Idle)

			require.NoError(t, f.buf.SetLine("doc", 6, "unrelated edit"))
			tt.reply(f.transport.next(t))
			f.waitState(t, "doc", Idle)

			got := f.engine.Annotations("doc")
			require.Len(t, got, 1)
			assert.Equal(t, "keep me", got[0].Body)
			assert.Equal(t, 1, f.sink.applyCount())

			if tt.level != "" {
				select {
				case ev := <-notices:
					assert.Equal(t, tt.level, ev.Payload.(events.Notice).Level)
				case <-time.After(waitFor):
					t.Fatal("no notice published")
				}
				recent := f.engine.Notices(1)
				require.Len(t, recent, 1)
				assert.Equal(t, tt.level, recent[0].Level)
			}

			// The failed cycle still resolved: no edit, no new request.
			f.transport.none(t, 60*time.Millisecond)
		})
	}
}

func TestEngine_OutOfRangeAnnotationsDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(3)...)

	require.NoError(t, f.buf.SetLine("doc", 1, "edit"))
	f.transport.next(t).respond(`{"comments":[{"line_number":2,"comment":"ok"},{"line_number":10,"comment":"beyond"}]}`)

	assert.Eventually(t, func() bool { return f.sink.applyCount() == 1 }, waitFor, 5*time.Millisecond)
	got := f.sink.last()
	require.Len(t, got, 1)
	assert.Equal(t, changes.Range{Start: 1, End: 1}, got[0].Range)
}

func TestEngine_GateSkipAdvancesBaseline(t *testing.T) {
	f := newFixture(t, nil, WithPolicy(gate.Never))
	skipped := f.broker.Subscribe(events.RequestSkippedEvent)
	f.open(t, "doc", lines(4)...)

	require.NoError(t, f.buf.SetLine("doc", 2, "edit"))
	select {
	case <-skipped:
	case <-time.After(waitFor):
		t.Fatal("gate never consulted")
	}
	f.transport.none(t, 60*time.Millisecond)
	f.waitState(t, "doc", Idle)

	// The skipped edit is now the baseline; a flush with no further change
	// sends the whole document.
	require.NoError(t, f.engine.Flush("doc"))
	call := f.transport.next(t)
	assert.Contains(t, call.prompt.User, "Changed lines: 1, 2, 3, 4")
	call.respond(`{"comments": []}`)
}

func TestEngine_DeterministicGate(t *testing.T) {
	run := func() int {
		f := newFixture(t, func(c *config.Config) { c.ResponseThreshold = 0.1 },
			WithRandFactory(func(string) gate.Rand { return gate.NewRand(42) }))
		f.open(t, "doc", lines(50)...)

		requests := 0
		for i := 0; i < 5; i++ {
			require.NoError(t, f.buf.SetLine("doc", i, fmt.Sprintf("edit %d", i)))
			select {
			case c := <-f.transport.calls:
				requests++
				c.respond(`{"comments": []}`)
			case <-time.After(200 * time.Millisecond):
			}
			f.waitState(t, "doc", Idle)
		}
		return requests
	}

	assert.Equal(t, run(), run())
}

func TestEngine_BelowMinimumClears(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.MinimumTextLength = 40 })
	f.open(t, "doc", "a fairly long first line of text", "and a second one")

	require.NoError(t, f.buf.SetLine("doc", 1, "edit of the second line"))
	f.transport.next(t).respond(comment(1, "note"))
	assert.Eventually(t, func() bool { return f.engine.Store().Len("doc") == 1 }, waitFor, 5*time.Millisecond)
	f.waitState(t, "doc", Idle)

	clearsBefore := f.sink.clearCount()
	require.NoError(t, f.buf.SetText("doc", "tiny"))
	f.transport.none(t, 80*time.Millisecond)

	assert.Equal(t, 0, f.engine.Store().Len("doc"))
	assert.Greater(t, f.sink.clearCount(), clearsBefore)
}

func TestEngine_IgnoresNonEditSignals(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(3)...)

	require.NoError(t, f.buf.MoveCursor("doc", 2))
	f.transport.none(t, 60*time.Millisecond)

	state, err := f.engine.State("doc")
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
}

func TestEngine_ResetForgetsBaseline(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", lines(3)...)

	require.NoError(t, f.buf.SetLine("doc", 0, "edit"))
	f.transport.next(t).respond(comment(1, "note"))
	assert.Eventually(t, func() bool { return f.engine.Store().Len("doc") == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, f.engine.Reset("doc"))
	assert.Equal(t, 0, f.engine.Store().Len("doc"))

	require.NoError(t, f.buf.SetLine("doc", 2, "another edit"))
	call := f.transport.next(t)
	assert.Contains(t, call.prompt.User, "Changed lines: 1, 2, 3")
	call.respond(`{"comments": []}`)
}

func TestEngine_RequestTimeout(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.RequestTimeoutMS = 30 })
	notices := f.broker.Subscribe(events.NoticeEvent)
	f.open(t, "doc", lines(3)...)

	require.NoError(t, f.buf.SetLine("doc", 0, "edit"))
	f.transport.next(t) // never answered

	select {
	case ev := <-notices:
		n := ev.Payload.(events.Notice)
		assert.True(t, errors.Is(n.Err, llm.ErrTransport))
	case <-time.After(waitFor):
		t.Fatal("timeout never resolved the request")
	}
	f.waitState(t, "doc", Idle)
}

func TestEngine_IndependentDocuments(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "a", lines(3)...)
	f.open(t, "b", lines(3)...)

	require.NoError(t, f.buf.SetLine("a", 0, "edit a"))
	require.NoError(t, f.buf.SetLine("b", 2, "edit b"))

	calls := map[string]*fakeCall{}
	for i := 0; i < 2; i++ {
		c := f.transport.next(t)
		calls[c.docID] = c
	}
	require.Len(t, calls, 2)

	calls["a"].respond(comment(1, "for a"))
	calls["b"].respond(comment(3, "for b"))

	assert.Eventually(t, func() bool {
		return f.engine.Store().Len("a") == 1 && f.engine.Store().Len("b") == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "for a", f.engine.Annotations("a")[0].Body)
	assert.Equal(t, "for b", f.engine.Annotations("b")[0].Body)
	assert.ElementsMatch(t, []string{"a", "b"}, f.engine.Documents())
}

func TestEngine_AttachErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, "doc", "x")

	assert.True(t, errors.Is(f.engine.Attach("doc"), ErrAlreadyAttached))
	assert.Error(t, f.engine.Attach("never-opened"))

	require.NoError(t, f.engine.Close())
	f.buf.Open("late", "x")
	assert.True(t, errors.Is(f.engine.Attach("late"), ErrClosed))
	assert.Empty(t, f.engine.Documents())
}

func TestEngine_QueueStartFailureIsDormant(t *testing.T) {
	f := newFixture(t, nil)
	notices := f.broker.Subscribe(events.NoticeEvent)

	f.engine.dormancy(errors.New("failed to start request queue: manager already started"))

	assert.True(t, f.engine.Dormant())
	f.buf.Open("doc", "text")
	assert.True(t, errors.Is(f.engine.Attach("doc"), ErrDormant))
	select {
	case ev := <-notices:
		assert.Equal(t, events.NoticeError, ev.Payload.(events.Notice).Level)
	case <-time.After(waitFor):
		t.Fatal("no notice published")
	}
}

func TestEngine_Dormant(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.APIKey = ""

	buf := source.NewBuffer()
	buf.Open("doc", "text")
	transport := newFakeTransport()

	e := New(cfg, buf, transport)
	defer e.Close()

	assert.True(t, e.Dormant())
	assert.True(t, errors.Is(e.DormantReason(), config.ErrConfig))

	err := e.Attach("doc")
	assert.True(t, errors.Is(err, ErrDormant))

	require.NoError(t, buf.SetLine("doc", 0, "edit"))
	transport.none(t, 60*time.Millisecond)

	assert.True(t, New(testConfig(), buf, nil).Dormant(), "no transport")
}
