package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/config"
	"github.com/billie-coop/margin/internal/engine"
)

func TestOpenDocument(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(existing, []byte("hello\nworld"), 0o644))

	t.Run("scratch", func(t *testing.T) {
		docID, path, text, err := openDocument(nil)
		require.NoError(t, err)
		assert.Equal(t, "scratch", docID)
		assert.Empty(t, path)
		assert.Empty(t, text)
	})

	t.Run("existing file", func(t *testing.T) {
		docID, path, text, err := openDocument([]string{existing})
		require.NoError(t, err)
		assert.Equal(t, existing, docID)
		assert.Equal(t, existing, path)
		assert.Equal(t, "hello\nworld", text)
	})

	t.Run("missing file opens empty", func(t *testing.T) {
		missing := filepath.Join(dir, "new.md")
		docID, path, text, err := openDocument([]string{missing})
		require.NoError(t, err)
		assert.Equal(t, missing, docID)
		assert.Equal(t, missing, path)
		assert.Empty(t, text)
	})
}

func TestConfigSetCommand(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"config", "set", "debounce_ms", "900", "--project", dir})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "debounce_ms = 900")

	mgr := config.NewManager(dir)
	require.NoError(t, mgr.Load())
	assert.Equal(t, 900, mgr.Get().DebounceMS)
}

type countingSink struct{ applied, cleared int }

func (c *countingSink) Apply(string, []annotations.Annotation) { c.applied++ }
func (c *countingSink) Clear(string)                           { c.cleared++ }

func TestAnnotationSink(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	anns := []annotations.Annotation{{ID: "1", Range: changes.Range{Start: 2, End: 2}, Title: "typo"}}

	ui := &countingSink{}
	annotationSink(ui, logger, false).Apply("doc", anns)
	assert.Equal(t, 1, ui.applied)
	assert.Empty(t, out.String())

	sink := annotationSink(ui, logger, true)
	assert.IsType(t, engine.MultiSink{}, sink)
	sink.Apply("doc", anns)
	sink.Clear("doc")
	assert.Equal(t, 2, ui.applied)
	assert.Equal(t, 1, ui.cleared)
	assert.Contains(t, out.String(), "title=typo")
	assert.Contains(t, out.String(), "annotations cleared")
}
