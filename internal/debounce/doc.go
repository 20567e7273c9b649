// Package debounce coalesces bursts of activity into one delayed action.
//
// # Overview
//
// Editors emit an edit signal per keystroke. Asking the annotation service
// on every one of them would flood it with requests for text that is about
// to change again, so the engine waits for a quiet period first.
//
// The Scheduler keeps at most one armed timer per key (a document id).
// Schedule resets the quiet period; the action runs exactly once, after the
// delay elapses with no further Schedule for that key. This is pure
// debounce: continuous activity never fires the action.
//
// # Cancellation
//
// Cancel disarms a pending timer. Cancelling an absent or already-fired
// timer is a no-op. A timer that expired while a Schedule call was
// replacing it is recognised by its generation and never runs.
//
// # Usage in margin
//
//	sched := debounce.New()
//	sched.Schedule(docID, 800*time.Millisecond, func() {
//	    doc.post(fireMsg{})
//	})
package debounce
