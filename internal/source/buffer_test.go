package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billie-coop/margin/internal/changes"
)

func nextSignal(t *testing.T, ch <-chan changes.EditSignal) changes.EditSignal {
	t.Helper()
	select {
	case sig, ok := <-ch:
		require.True(t, ok, "edit stream closed")
		return sig
	case <-time.After(time.Second):
		t.Fatal("no edit signal")
		return changes.EditSignal{}
	}
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "one\ntwo\nthree")

	snap, err := b.Snapshot("doc")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, []string{"one", "two", "three"}, snap.Lines)

	snap.Lines[0] = "mutated"
	again, _ := b.Snapshot("doc")
	assert.Equal(t, "one", again.Lines[0])
}

func TestBuffer_UnknownDocument(t *testing.T) {
	b := NewBuffer()
	_, err := b.Snapshot("missing")
	assert.True(t, errors.Is(err, ErrUnknownDocument))
	_, err = b.Edits(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrUnknownDocument))
	assert.True(t, errors.Is(b.SetLine("missing", 0, "x"), ErrUnknownDocument))
}

func TestBuffer_EditSignals(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "a\nb\nc\nd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	edits, err := b.Edits(ctx, "doc")
	require.NoError(t, err)

	require.NoError(t, b.SetLine("doc", 1, "B"))
	require.NoError(t, b.InsertLines("doc", 4, "e", "f"))
	require.NoError(t, b.DeleteLines("doc", 0, 2))
	require.NoError(t, b.MoveCursor("doc", 3))

	assert.Equal(t, changes.EditSignal{Kind: changes.KindChange, Delta: changes.EditDelta{StartLine: 1, RemovedCount: 1, AddedCount: 1}, Version: 2}, nextSignal(t, edits))
	assert.Equal(t, changes.EditSignal{Kind: changes.KindInsert, Delta: changes.EditDelta{StartLine: 4, AddedCount: 2}, Version: 3}, nextSignal(t, edits))
	assert.Equal(t, changes.EditSignal{Kind: changes.KindDelete, Delta: changes.EditDelta{StartLine: 0, RemovedCount: 2}, Version: 4}, nextSignal(t, edits))
	cursor := nextSignal(t, edits)
	assert.Equal(t, changes.KindCursor, cursor.Kind)
	assert.Equal(t, uint64(4), cursor.Version)

	snap, _ := b.Snapshot("doc")
	assert.Equal(t, []string{"c", "d", "e", "f"}, snap.Lines)
	assert.Equal(t, uint64(4), snap.Version)
}

func TestBuffer_ReplaceLinesOutOfRange(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "a\nb")

	err := b.ReplaceLines("doc", 1, 5, nil)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.NoError(t, b.InsertLines("doc", 2, "c"), "appending at the end is allowed")
}

func TestBuffer_SetText(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "a\nb\nc\nd")

	edits, err := b.Edits(context.Background(), "doc")
	require.NoError(t, err)

	require.NoError(t, b.SetText("doc", "a\nB\nC\nd"))
	sig := nextSignal(t, edits)
	assert.Equal(t, changes.EditDelta{StartLine: 1, RemovedCount: 2, AddedCount: 2}, sig.Delta)

	// Same text: no signal, no new version.
	require.NoError(t, b.SetText("doc", "a\nB\nC\nd"))
	snap, _ := b.Snapshot("doc")
	assert.Equal(t, uint64(2), snap.Version)
}

func TestBuffer_ReloadEmitsHunks(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "a\nb\nc\nd\ne")
	edits, err := b.Edits(context.Background(), "doc")
	require.NoError(t, err)

	b.Open("doc", "a\nB\nc\nd\nE")

	first := nextSignal(t, edits)
	second := nextSignal(t, edits)
	assert.Equal(t, changes.KindReload, first.Kind)
	assert.Equal(t, 1, first.Delta.StartLine)
	assert.Equal(t, 4, second.Delta.StartLine)

	// Hunks of one reload share the version that contains them.
	assert.Equal(t, uint64(2), first.Version)
	assert.Equal(t, uint64(2), second.Version)
}

func TestBuffer_ApplyPatch(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "alpha\nbeta\ngamma\ndelta")
	edits, err := b.Edits(context.Background(), "doc")
	require.NoError(t, err)

	patch := []byte(`--- a/doc
+++ b/doc
@@ -1,4 +1,4 @@
 alpha
-beta
+BETA
 gamma
 delta
`)
	require.NoError(t, b.ApplyPatch("doc", patch))

	snap, _ := b.Snapshot("doc")
	assert.Equal(t, []string{"alpha", "BETA", "gamma", "delta"}, snap.Lines)
	assert.Equal(t, changes.EditDelta{StartLine: 1, RemovedCount: 1, AddedCount: 1}, nextSignal(t, edits).Delta)
}

func TestBuffer_ApplyPatchMismatch(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "alpha\nbeta")

	patch := []byte(`--- a/doc
+++ b/doc
@@ -1,2 +1,2 @@
 alpha
-not-beta
+BETA
`)
	err := b.ApplyPatch("doc", patch)
	assert.True(t, errors.Is(err, ErrPatchMismatch))

	snap, _ := b.Snapshot("doc")
	assert.Equal(t, []string{"alpha", "beta"}, snap.Lines)
}

func TestBuffer_EditsEndOnCancelAndClose(t *testing.T) {
	b := NewBuffer()
	b.Open("doc", "a")

	ctx, cancel := context.WithCancel(context.Background())
	edits, err := b.Edits(ctx, "doc")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-edits:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}

	other, err := b.Edits(context.Background(), "doc")
	require.NoError(t, err)
	b.Close("doc")

	select {
	case _, ok := <-other:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after Close")
	}
}
