package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/debounce"
)

// FileOptions configures a File source.
type FileOptions struct {
	// SettleWindow waits for a burst of writes to finish before the file
	// is re-read. Editors often truncate then write.
	// Default: 50ms
	SettleWindow time.Duration

	Logger *slog.Logger
}

// DefaultFileOptions returns the defaults.
func DefaultFileOptions() FileOptions {
	return FileOptions{
		SettleWindow: 50 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// File mirrors files on disk. The document id is the file's absolute path.
type File struct {
	buf     *Buffer
	watcher *fsnotify.Watcher
	settle  *debounce.Scheduler
	window  time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	paths map[string]bool
	dirs  map[string]int

	stopOnce sync.Once
}

// NewFile creates a file source. Call Run to start watching.
func NewFile(opts *FileOptions) (*File, error) {
	if opts == nil {
		defaults := DefaultFileOptions()
		opts = &defaults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &File{
		buf:     NewBuffer(WithBufferLogger(logger)),
		watcher: watcher,
		settle:  debounce.New(debounce.WithLogger(logger)),
		window:  opts.SettleWindow,
		logger:  logger,
		paths:   make(map[string]bool),
		dirs:    make(map[string]int),
	}, nil
}

// Open reads path and starts watching it. It returns the document id.
func (f *File) Open(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", abs, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.paths[abs] {
		return abs, nil
	}

	// Watch the directory so rename-and-replace saves are seen.
	dir := filepath.Dir(abs)
	if f.dirs[dir] == 0 {
		if err := f.watcher.Add(dir); err != nil {
			return "", fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	f.dirs[dir]++
	f.paths[abs] = true

	f.buf.Open(abs, string(data))
	return abs, nil
}

// Close stops watching docID.
func (f *File) Close(docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.paths[docID] {
		return
	}
	delete(f.paths, docID)
	f.settle.Cancel(docID)

	dir := filepath.Dir(docID)
	f.dirs[dir]--
	if f.dirs[dir] <= 0 {
		delete(f.dirs, dir)
		_ = f.watcher.Remove(dir)
	}
	f.buf.Close(docID)
}

// Snapshot returns the last text read from disk.
func (f *File) Snapshot(docID string) (changes.Snapshot, error) {
	return f.buf.Snapshot(docID)
}

// Edits streams reload signals for docID.
func (f *File) Edits(ctx context.Context, docID string) (<-chan changes.EditSignal, error) {
	return f.buf.Edits(ctx, docID)
}

// Run processes filesystem events until ctx ends or Stop is called.
func (f *File) Run(ctx context.Context) error {
	defer f.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handle(event)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("file watcher error", "error", err)
		}
	}
}

// Stop releases the watcher.
func (f *File) Stop() {
	f.stopOnce.Do(func() {
		f.settle.Stop()
		_ = f.watcher.Close()
	})
}

func (f *File) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	f.mu.Lock()
	watched := f.paths[path]
	f.mu.Unlock()
	if !watched {
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	f.settle.Schedule(path, f.window, func() { f.reload(path) })
}

func (f *File) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Mid-rename; the Create event that follows reloads it.
			f.logger.Debug("file missing during reload", "path", path)
			return
		}
		f.logger.Warn("failed to reload file", "path", path, "error", err)
		return
	}

	if err := f.buf.Reload(path, string(data)); err != nil {
		f.logger.Debug("reload for closed document", "path", path, "error", err)
	}
}
