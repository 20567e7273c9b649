package changes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	godiff "github.com/sourcegraph/go-diff/diff"
)

// Deltas derives one delta per changed hunk between old and new using a
// line-mode Myers diff. Deltas are in pre-edit (old) coordinates and in
// document order.
func Deltas(old, new []string) []EditDelta {
	if len(old) == 0 && len(new) == 0 {
		return nil
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(joinTerminated(old), joinTerminated(new))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var (
		out     []EditDelta
		cursor  int
		current *EditDelta
	)
	flush := func() {
		if current != nil && !current.IsZero() {
			out = append(out, *current)
			cursor += current.RemovedCount
		}
		current = nil
	}

	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			cursor += n
		case diffmatchpatch.DiffDelete:
			if current == nil {
				current = &EditDelta{StartLine: cursor}
			}
			current.RemovedCount += n
		case diffmatchpatch.DiffInsert:
			if current == nil {
				current = &EditDelta{StartLine: cursor}
			}
			current.AddedCount += n
		}
	}
	flush()
	return out
}

// ParseUnifiedDeltas converts a single-file unified diff into deltas in
// pre-edit coordinates.
func ParseUnifiedDeltas(patch []byte) ([]EditDelta, error) {
	fd, err := godiff.ParseFileDiff(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unified diff: %w", err)
	}

	var out []EditDelta
	for _, h := range fd.Hunks {
		out = append(out, hunkDeltas(h)...)
	}
	return out, nil
}

// hunkDeltas splits one hunk into runs of removed/added lines.
func hunkDeltas(h *godiff.Hunk) []EditDelta {
	// "@@ -3,0 +4,2 @@" inserts after line 3, which is 0-based index 3.
	cursor := int(h.OrigStartLine) - 1
	if h.OrigLines == 0 {
		cursor = int(h.OrigStartLine)
	}
	cursor = max(cursor, 0)

	var (
		out     []EditDelta
		current *EditDelta
	)
	flush := func() {
		if current != nil {
			out = append(out, *current)
			cursor += current.RemovedCount
			current = nil
		}
	}

	for _, line := range bytes.Split(h.Body, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case ' ':
			flush()
			cursor++
		case '-':
			if current == nil {
				current = &EditDelta{StartLine: cursor}
			}
			current.RemovedCount++
		case '+':
			if current == nil {
				current = &EditDelta{StartLine: cursor}
			}
			current.AddedCount++
		}
	}
	flush()
	return out
}

func joinTerminated(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
