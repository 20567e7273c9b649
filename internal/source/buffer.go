package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/billie-coop/margin/internal/changes"
)

var (
	// ErrUnknownDocument is returned for a document that was never opened.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrOutOfRange is returned for an edit outside the document.
	ErrOutOfRange = errors.New("edit out of range")

	// ErrPatchMismatch is returned when a patch's context does not match.
	ErrPatchMismatch = errors.New("patch does not apply")
)

// Buffer is an in-memory text source.
//
// Thread-safe: Yes
type Buffer struct {
	mu     sync.Mutex
	docs   map[string]*bufferDoc
	logger *slog.Logger
}

type bufferDoc struct {
	version uint64
	lines   []string
	subs    []*subscriber
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithBufferLogger sets the logger.
func WithBufferLogger(logger *slog.Logger) BufferOption {
	return func(b *Buffer) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuffer creates an empty buffer.
func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		docs:   make(map[string]*bufferDoc),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open registers docID with the given text. Opening an existing document
// replaces its text and reports the difference as reload signals.
func (b *Buffer) Open(docID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.docs[docID]; ok {
		b.reloadLocked(docID, changes.SplitLines(text))
		return
	}
	b.docs[docID] = &bufferDoc{version: 1, lines: changes.SplitLines(text)}
}

// Close forgets docID and ends its edit streams.
func (b *Buffer) Close(docID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return
	}
	for _, sub := range doc.subs {
		sub.close()
	}
	delete(b.docs, docID)
}

// Snapshot returns an immutable copy of the document.
func (b *Buffer) Snapshot(docID string) (changes.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return changes.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}

	lines := make([]string, len(doc.lines))
	copy(lines, doc.lines)
	return changes.Snapshot{Version: doc.version, Lines: lines}, nil
}

// Edits streams the document's edit signals until ctx ends or the document
// is closed.
func (b *Buffer) Edits(ctx context.Context, docID string) (<-chan changes.EditSignal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}

	sub := newSubscriber(ctx)
	doc.subs = append(doc.subs, sub)
	return sub.out, nil
}

// ReplaceLines removes removed lines at start and inserts lines there.
func (b *Buffer) ReplaceLines(docID string, start, removed int, lines []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}
	if start < 0 || removed < 0 || start > len(doc.lines) || start+removed > len(doc.lines) {
		return fmt.Errorf("%w: start=%d removed=%d lines=%d", ErrOutOfRange, start, removed, len(doc.lines))
	}

	delta := changes.EditDelta{StartLine: start, RemovedCount: removed, AddedCount: len(lines)}
	if delta.IsZero() {
		return nil
	}

	next := make([]string, 0, len(doc.lines)-removed+len(lines))
	next = append(next, doc.lines[:start]...)
	next = append(next, lines...)
	next = append(next, doc.lines[start+removed:]...)

	b.commitLocked(docID, doc, next, changes.EditSignal{Kind: changes.KindFor(delta), Delta: delta})
	return nil
}

// SetLine replaces a single line in place.
func (b *Buffer) SetLine(docID string, line int, text string) error {
	return b.ReplaceLines(docID, line, 1, []string{text})
}

// InsertLines inserts lines before index at.
func (b *Buffer) InsertLines(docID string, at int, lines ...string) error {
	return b.ReplaceLines(docID, at, 0, lines)
}

// DeleteLines removes count lines starting at start.
func (b *Buffer) DeleteLines(docID string, start, count int) error {
	return b.ReplaceLines(docID, start, count, nil)
}

// SetText replaces the whole text and reports the covering delta, for
// hosts that only hand over full contents.
func (b *Buffer) SetText(docID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}

	next := changes.SplitLines(text)
	delta, changed := changes.Between(doc.lines, next)
	if !changed {
		return nil
	}

	b.commitLocked(docID, doc, next, changes.EditSignal{Kind: changes.KindFor(delta), Delta: delta})
	return nil
}

// Reload replaces the text and reports every changed hunk as a reload
// signal.
func (b *Buffer) Reload(docID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.docs[docID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}
	b.reloadLocked(docID, changes.SplitLines(text))
	return nil
}

// ApplyPatch applies a single-file unified diff to the document. Context
// and removed lines must match the current text.
func (b *Buffer) ApplyPatch(docID string, patch []byte) error {
	deltas, err := changes.ParseUnifiedDeltas(patch)
	if err != nil {
		return err
	}
	fd, err := godiff.ParseFileDiff(patch)
	if err != nil {
		return fmt.Errorf("failed to parse unified diff: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}

	next, err := applyHunks(doc.lines, fd.Hunks)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		return nil
	}

	signals := make([]changes.EditSignal, len(deltas))
	for i, d := range deltas {
		signals[i] = changes.EditSignal{Kind: changes.KindFor(d), Delta: d}
	}
	b.commitLocked(docID, doc, next, signals...)
	return nil
}

// MoveCursor reports a cursor movement. It never changes the text.
func (b *Buffer) MoveCursor(docID string, line int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}
	sig := changes.EditSignal{Kind: changes.KindCursor, Delta: changes.EditDelta{StartLine: line}, Version: doc.version}
	for _, sub := range doc.subs {
		sub.push(sig)
	}
	return nil
}

func (b *Buffer) reloadLocked(docID string, next []string) {
	doc := b.docs[docID]
	deltas := changes.Deltas(doc.lines, next)
	if len(deltas) == 0 {
		return
	}

	signals := make([]changes.EditSignal, len(deltas))
	for i, d := range deltas {
		signals[i] = changes.EditSignal{Kind: changes.KindReload, Delta: d}
	}
	b.commitLocked(docID, doc, next, signals...)
}

// commitLocked installs next as a new version and notifies subscribers.
func (b *Buffer) commitLocked(docID string, doc *bufferDoc, next []string, signals ...changes.EditSignal) {
	doc.lines = next
	doc.version++

	live := doc.subs[:0]
	for _, sub := range doc.subs {
		if sub.ctx.Err() != nil {
			sub.close()
			continue
		}
		for _, sig := range signals {
			sig.Version = doc.version
			sub.push(sig)
		}
		live = append(live, sub)
	}
	doc.subs = live

	b.logger.Debug("buffer edited", "doc", docID, "version", doc.version, "signals", len(signals))
}

// applyHunks rebuilds lines from a parsed patch.
func applyHunks(lines []string, hunks []*godiff.Hunk) ([]string, error) {
	out := make([]string, 0, len(lines))
	cursor := 0

	for _, h := range hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			start = int(h.OrigStartLine)
		}
		start = max(start, 0)
		if start < cursor || start > len(lines) {
			return nil, fmt.Errorf("%w: hunk at line %d", ErrPatchMismatch, h.OrigStartLine)
		}
		out = append(out, lines[cursor:start]...)
		cursor = start

		for _, raw := range bytes.Split(h.Body, []byte("\n")) {
			if len(raw) == 0 {
				continue
			}
			text := string(raw[1:])
			switch raw[0] {
			case ' ', '-':
				if cursor >= len(lines) || lines[cursor] != text {
					return nil, fmt.Errorf("%w: line %d", ErrPatchMismatch, cursor+1)
				}
				if raw[0] == ' ' {
					out = append(out, text)
				}
				cursor++
			case '+':
				out = append(out, text)
			}
		}
	}

	out = append(out, lines[cursor:]...)
	return out, nil
}
