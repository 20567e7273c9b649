package editor

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/source"
)

func press(code rune, text string) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: code, Text: text}
}

func typeText(m *Model, text string) {
	for _, r := range text {
		m.Update(press(r, string(r)))
	}
}

func newEditor(t *testing.T, text string) (*Model, *source.Buffer) {
	t.Helper()
	buf := source.NewBuffer()
	buf.Open("doc", text)
	m := New(buf, "doc")
	m.SetSize(40, 10)
	return m, buf
}

func lines(t *testing.T, buf *source.Buffer) []string {
	t.Helper()
	snap, err := buf.Snapshot("doc")
	require.NoError(t, err)
	return snap.Lines
}

func TestEditor_TypingWritesThrough(t *testing.T) {
	m, buf := newEditor(t, "hello\nworld")

	m.Update(tea.KeyPressMsg{Code: tea.KeyEnd})
	typeText(m, "!")

	assert.Equal(t, []string{"hello!", "world"}, lines(t, buf))
	assert.Equal(t, "hello!\nworld", m.Text())
	row, col := m.Cursor()
	assert.Equal(t, 0, row)
	assert.Equal(t, 6, col)
}

func TestEditor_EnterSplitsLine(t *testing.T) {
	m, buf := newEditor(t, "abcdef")

	m.Update(tea.KeyPressMsg{Code: tea.KeyRight})
	m.Update(tea.KeyPressMsg{Code: tea.KeyRight})
	m.Update(tea.KeyPressMsg{Code: tea.KeyRight})
	m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})

	assert.Equal(t, []string{"abc", "def"}, lines(t, buf))
	row, col := m.Cursor()
	assert.Equal(t, 1, row)
	assert.Equal(t, 0, col)
}

func TestEditor_BackspaceJoinsLines(t *testing.T) {
	m, buf := newEditor(t, "abc\ndef")

	m.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	m.Update(tea.KeyPressMsg{Code: tea.KeyBackspace})

	assert.Equal(t, []string{"abcdef"}, lines(t, buf))
	row, col := m.Cursor()
	assert.Equal(t, 0, row)
	assert.Equal(t, 3, col)
}

func TestEditor_DeleteAtEndJoinsNext(t *testing.T) {
	m, buf := newEditor(t, "ab\ncd")

	m.Update(tea.KeyPressMsg{Code: tea.KeyEnd})
	m.Update(tea.KeyPressMsg{Code: tea.KeyDelete})

	assert.Equal(t, []string{"abcd"}, lines(t, buf))
}

func TestEditor_KillToEndOfLine(t *testing.T) {
	m, buf := newEditor(t, "keep this")

	for range 4 {
		m.Update(tea.KeyPressMsg{Code: tea.KeyRight})
	}
	m.Update(tea.KeyPressMsg{Code: 'k', Mod: tea.ModCtrl})

	assert.Equal(t, []string{"keep"}, lines(t, buf))
}

func TestEditor_EmptyDocument(t *testing.T) {
	m, buf := newEditor(t, "")

	typeText(m, "hi")
	m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	typeText(m, "there")

	assert.Equal(t, []string{"hi", "there"}, lines(t, buf))
}

func TestEditor_EditsAreSignaled(t *testing.T) {
	buf := source.NewBuffer()
	buf.Open("doc", "one\ntwo\nthree")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs, err := buf.Edits(ctx, "doc")
	require.NoError(t, err)

	m := New(buf, "doc")
	m.SetSize(40, 10)
	m.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	typeText(m, "x")

	want := []changes.EditSignal{
		{Kind: changes.KindCursor, Delta: changes.EditDelta{StartLine: 1}, Version: 1},
		{Kind: changes.KindChange, Delta: changes.EditDelta{StartLine: 1, RemovedCount: 1, AddedCount: 1}, Version: 2},
	}
	for _, w := range want {
		select {
		case got := <-sigs:
			assert.Equal(t, w, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for edit signal")
		}
	}
}

func TestEditor_AnnotationMarkers(t *testing.T) {
	m, _ := newEditor(t, "a\nb\nc\nd")

	m.SetAnnotations([]annotations.Annotation{
		{ID: "1", Range: changes.Range{Start: 1, End: 2}, Title: "note"},
	})

	assert.False(t, m.Marked(0))
	assert.True(t, m.Marked(1))
	assert.True(t, m.Marked(2))
	assert.False(t, m.Marked(3))
	assert.Contains(t, m.View(), "●")

	m.SetAnnotations(nil)
	assert.False(t, m.Marked(1))
}

func TestEditor_ReloadClampsCursor(t *testing.T) {
	m, buf := newEditor(t, "one\ntwo\nthree")

	m.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	m.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	m.Update(tea.KeyPressMsg{Code: tea.KeyEnd})
	require.NoError(t, buf.Reload("doc", "x"))

	m.Reload()
	row, col := m.Cursor()
	assert.Equal(t, 0, row)
	assert.Equal(t, 1, col)
	assert.Equal(t, "x", m.Text())
}

func TestEditor_IgnoresKeysWhenBlurred(t *testing.T) {
	m, buf := newEditor(t, "abc")

	m.Blur()
	typeText(m, "zzz")

	assert.Equal(t, []string{"abc"}, lines(t, buf))
}
