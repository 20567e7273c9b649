package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// ApplyPatch applies a single-file unified diff to the watched file docID
// and writes the result back to disk. The reload that follows the write
// finds nothing new.
func (f *File) ApplyPatch(docID string, patch []byte) error {
	f.mu.Lock()
	watched := f.paths[docID]
	f.mu.Unlock()
	if !watched {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}

	info, err := os.Stat(docID)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", docID, err)
	}
	if err := f.buf.ApplyPatch(docID, patch); err != nil {
		return err
	}
	snap, err := f.buf.Snapshot(docID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(docID, []byte(snap.Text()), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", docID, err)
	}
	return nil
}

// ApplyPatches reads a multi-file unified diff from r and applies each
// section to the watched file it names, resolved against dir. It stops at
// the first failure and returns how many files were patched.
func (f *File) ApplyPatches(r io.Reader, dir string) (int, error) {
	reader := godiff.NewMultiFileDiffReader(r)
	patched := 0
	for {
		fd, err := reader.ReadFile()
		if errors.Is(err, io.EOF) {
			return patched, nil
		}
		if err != nil {
			return patched, fmt.Errorf("failed to read patch: %w", err)
		}

		name := patchTarget(fd)
		if name == "" {
			return patched, fmt.Errorf("patch creates or deletes a file: %s -> %s", fd.OrigName, fd.NewName)
		}
		docID, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return patched, fmt.Errorf("failed to resolve %s: %w", name, err)
		}

		single, err := godiff.PrintFileDiff(fd)
		if err != nil {
			return patched, fmt.Errorf("failed to print patch for %s: %w", name, err)
		}
		if err := f.ApplyPatch(docID, single); err != nil {
			return patched, err
		}
		patched++
		f.logger.Debug("patch applied", "path", docID, "hunks", len(fd.Hunks))
	}
}

// patchTarget is the path a file section edits, without git's a/ and b/
// prefixes. Creations and deletions have none.
func patchTarget(fd *godiff.FileDiff) string {
	if fd.OrigName == "/dev/null" || fd.NewName == "/dev/null" {
		return ""
	}
	name := fd.NewName
	for _, prefix := range []string{"b/", "a/"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}
