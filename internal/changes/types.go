// Package changes detects which lines of a document changed between two
// snapshots and interprets raw edit notifications.
//
// Diff is the index-aligned detector used to decide whether a request is
// worth sending. It is deliberately cheap: an inserted line shifts every
// following index and all of them are reported as changed. The delta
// helpers give the precise pre-edit range of an edit for annotation
// invalidation, independent of content.
package changes

import "strings"

// Range is an inclusive 0-based line range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether r and other share at least one line.
func (r Range) Overlaps(other Range) bool {
	return !(other.End < r.Start || other.Start > r.End)
}

// Valid reports whether r is well formed and fits a document of n lines.
func (r Range) Valid(n int) bool {
	return r.Start >= 0 && r.Start <= r.End && r.End < n
}

// EditDelta is one edit notification in pre-edit line coordinates.
type EditDelta struct {
	StartLine    int `json:"start_line"`
	RemovedCount int `json:"removed_count"`
	AddedCount   int `json:"added_count"`
}

// Range returns the pre-edit lines touched by the delta.
// A pure insertion touches the line it was inserted at.
func (d EditDelta) Range() Range {
	start := max(d.StartLine, 0)
	if d.RemovedCount <= 0 {
		return Range{Start: start, End: start}
	}
	return Range{Start: start, End: start + d.RemovedCount - 1}
}

// IsZero reports whether the delta neither removes nor adds lines.
func (d EditDelta) IsZero() bool {
	return d.RemovedCount == 0 && d.AddedCount == 0
}

// Signal kinds emitted by text sources.
const (
	KindChange = "change" // lines replaced in place
	KindInsert = "insert" // lines added
	KindDelete = "delete" // lines removed
	KindReload = "reload" // whole document replaced from disk
	KindCursor = "cursor" // cursor moved, no content change
)

// EditSignal is one push notification from a text source.
//
// Version is the source version that first contains the edit. Zero means
// the source does not track versions.
type EditSignal struct {
	Kind    string    `json:"kind"`
	Delta   EditDelta `json:"delta"`
	Version uint64    `json:"version,omitempty"`
}

// KindFor classifies a delta the way sources report it.
func KindFor(d EditDelta) string {
	switch {
	case d.RemovedCount == 0 && d.AddedCount > 0:
		return KindInsert
	case d.AddedCount == 0 && d.RemovedCount > 0:
		return KindDelete
	default:
		return KindChange
	}
}

// Snapshot is an immutable capture of a document.
type Snapshot struct {
	Version uint64
	Lines   []string
}

// LineCount returns the number of lines in the snapshot.
func (s Snapshot) LineCount() int {
	return len(s.Lines)
}

// TextLen returns the length in bytes of the joined text.
func (s Snapshot) TextLen() int {
	if len(s.Lines) == 0 {
		return 0
	}
	n := len(s.Lines) - 1
	for _, line := range s.Lines {
		n += len(line)
	}
	return n
}

// Text joins the lines with newlines.
func (s Snapshot) Text() string {
	return strings.Join(s.Lines, "\n")
}

// SplitLines splits text into lines. An empty string has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
