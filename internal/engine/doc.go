// Package engine coordinates annotation cycles for attached documents.
//
// Every attached document gets one goroutine that owns its state. Edit
// signals, debounce fires, flushes, resets and transport results all
// arrive as messages on that goroutine's mailbox, so a document's state is
// never touched concurrently. Documents share nothing mutable except the
// annotation store, which is partitioned by document id.
//
// A document moves between three states:
//
//	Idle --edit--> Debouncing --fire--> Requesting --result--> Idle
//
// Edits always invalidate overlapping annotations before anything else
// happens. An edit while Requesting never cancels the request; it marks a
// follow-up cycle as owed instead. A result is applied only if its request
// id is still the document's current one.
package engine
