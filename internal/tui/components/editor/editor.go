// Package editor is a small multi-line text editor that writes every
// keystroke through to a line-addressed document.
package editor

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/tui/styles"
)

// Document is the editable text behind the editor.
type Document interface {
	Snapshot(docID string) (changes.Snapshot, error)
	ReplaceLines(docID string, start, removed int, lines []string) error
	MoveCursor(docID string, line int) error
}

// Model is the editor component.
type Model struct {
	doc   Document
	docID string

	lines  [][]rune
	row    int
	col    int
	offset int

	width  int
	height int

	focused bool
	marked  map[int]struct{}
	err     error
}

// New creates an editor over docID and loads its current text.
func New(doc Document, docID string) *Model {
	m := &Model{
		doc:     doc,
		docID:   docID,
		focused: true,
		marked:  make(map[int]struct{}),
	}
	m.Reload()
	return m
}

// Reload replaces the local copy with the document's current text. The
// cursor is clamped into the new text.
func (m *Model) Reload() {
	snap, err := m.doc.Snapshot(m.docID)
	if err != nil {
		m.err = err
		return
	}
	m.lines = make([][]rune, len(snap.Lines))
	for i, line := range snap.Lines {
		m.lines[i] = []rune(line)
	}
	m.row = min(m.row, max(len(m.lines)-1, 0))
	m.col = min(m.col, len(m.current()))
	m.err = nil
}

// Text returns the editor contents.
func (m *Model) Text() string {
	out := make([]string, len(m.lines))
	for i, line := range m.lines {
		out[i] = string(line)
	}
	return strings.Join(out, "\n")
}

// Cursor returns the 0-based cursor position.
func (m *Model) Cursor() (row, col int) {
	return m.row, m.col
}

// Err returns the last error from the document, if any.
func (m *Model) Err() error {
	return m.err
}

// SetSize sets the visible area including the gutter.
func (m *Model) SetSize(width, height int) tea.Cmd {
	m.width = width
	m.height = height
	m.scroll()
	return nil
}

// Focus and Blur toggle key handling.
func (m *Model) Focus() { m.focused = true }
func (m *Model) Blur()  { m.focused = false }

// SetAnnotations marks every line covered by anns in the gutter.
func (m *Model) SetAnnotations(anns []annotations.Annotation) {
	m.marked = make(map[int]struct{})
	for _, a := range anns {
		for line := a.Range.Start; line <= a.Range.End; line++ {
			m.marked[line] = struct{}{}
		}
	}
}

// Marked reports whether line carries an annotation marker.
func (m *Model) Marked(line int) bool {
	_, ok := m.marked[line]
	return ok
}

// Update handles key presses. Keys the editor does not own are ignored.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	if !m.focused {
		return nil
	}
	key, ok := msg.(tea.KeyPressMsg)
	if !ok {
		return nil
	}

	m.err = nil
	switch k := key.String(); k {
	case "up":
		m.move(m.row-1, m.col)
	case "down":
		m.move(m.row+1, m.col)
	case "left":
		if m.col > 0 {
			m.col--
		} else if m.row > 0 {
			m.move(m.row-1, len(m.lines[m.row-1]))
		}
	case "right":
		if m.col < len(m.current()) {
			m.col++
		} else if m.row < len(m.lines)-1 {
			m.move(m.row+1, 0)
		}
	case "home", "ctrl+a":
		m.col = 0
	case "end", "ctrl+e":
		m.col = len(m.current())
	case "pgup":
		m.move(m.row-max(m.height-1, 1), m.col)
	case "pgdown":
		m.move(m.row+max(m.height-1, 1), m.col)
	case "enter":
		m.splitLine()
	case "backspace":
		m.backspace()
	case "delete":
		m.deleteForward()
	case "ctrl+k":
		line := m.current()
		if m.col < len(line) {
			m.replace(m.row, 1, string(line[:m.col]))
		}
	case "tab":
		m.insert([]rune("\t"))
	case "space":
		m.insert([]rune(" "))
	default:
		if text := key.Text; text != "" {
			m.insert([]rune(text))
		}
	}
	m.scroll()
	return nil
}

func (m *Model) current() []rune {
	if m.row < 0 || m.row >= len(m.lines) {
		return nil
	}
	return m.lines[m.row]
}

func (m *Model) move(row, col int) {
	row = max(min(row, len(m.lines)-1), 0)
	moved := row != m.row
	m.row = row
	m.col = min(col, len(m.current()))
	if moved {
		m.report(m.doc.MoveCursor(m.docID, m.row))
	}
}

func (m *Model) insert(text []rune) {
	if len(m.lines) == 0 {
		m.replace(0, 0, string(text))
		m.col = len(text)
		return
	}
	line := m.current()
	next := make([]rune, 0, len(line)+len(text))
	next = append(next, line[:m.col]...)
	next = append(next, text...)
	next = append(next, line[m.col:]...)
	if m.replace(m.row, 1, string(next)) {
		m.col += len(text)
	}
}

func (m *Model) splitLine() {
	if len(m.lines) == 0 {
		if m.replace(0, 0, "", "") {
			m.row, m.col = 1, 0
		}
		return
	}
	line := m.current()
	if m.replace(m.row, 1, string(line[:m.col]), string(line[m.col:])) {
		m.row++
		m.col = 0
	}
}

func (m *Model) backspace() {
	switch {
	case len(m.lines) == 0:
	case m.col > 0:
		line := m.current()
		next := append(append([]rune{}, line[:m.col-1]...), line[m.col:]...)
		if m.replace(m.row, 1, string(next)) {
			m.col--
		}
	case m.row > 0:
		prev := m.lines[m.row-1]
		joined := string(prev) + string(m.current())
		if m.replace(m.row-1, 2, joined) {
			m.row--
			m.col = len(prev)
		}
	}
}

func (m *Model) deleteForward() {
	switch {
	case len(m.lines) == 0:
	case m.col < len(m.current()):
		line := m.current()
		next := append(append([]rune{}, line[:m.col]...), line[m.col+1:]...)
		m.replace(m.row, 1, string(next))
	case m.row < len(m.lines)-1:
		joined := string(m.current()) + string(m.lines[m.row+1])
		m.replace(m.row, 2, joined)
	}
}

// replace writes the edit through to the document and mirrors it locally.
// On failure the local copy is reloaded from the document.
func (m *Model) replace(start, removed int, lines ...string) bool {
	if err := m.doc.ReplaceLines(m.docID, start, removed, lines); err != nil {
		m.report(err)
		m.Reload()
		return false
	}
	next := make([][]rune, 0, len(m.lines)-removed+len(lines))
	next = append(next, m.lines[:start]...)
	for _, line := range lines {
		next = append(next, []rune(line))
	}
	next = append(next, m.lines[start+removed:]...)
	m.lines = next
	return true
}

func (m *Model) report(err error) {
	if err != nil {
		m.err = fmt.Errorf("edit failed: %w", err)
	}
}

func (m *Model) scroll() {
	if m.height <= 0 {
		return
	}
	if m.row < m.offset {
		m.offset = m.row
	}
	if m.row >= m.offset+m.height {
		m.offset = m.row - m.height + 1
	}
}

func (m *Model) gutterWidth() int {
	return len(fmt.Sprint(max(len(m.lines), 1))) + 3
}

// View renders the visible lines with a numbered gutter. Lines covered by
// an annotation get a marker.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	s := styles.CurrentTheme().S()
	gw := m.gutterWidth()
	textWidth := max(m.width-gw, 1)

	var b strings.Builder
	for i := 0; i < m.height; i++ {
		idx := m.offset + i
		if i > 0 {
			b.WriteByte('\n')
		}
		if idx >= max(len(m.lines), 1) {
			b.WriteString(s.Subtle.Render("~"))
			continue
		}

		marker := " "
		gutter := s.Gutter
		if m.Marked(idx) {
			marker = styles.MarkerIcon
			gutter = s.GutterMarked
		}
		b.WriteString(gutter.Render(fmt.Sprintf("%s%*d ", marker, gw-2, idx+1)))

		var line []rune
		if idx < len(m.lines) {
			line = m.lines[idx]
		}
		b.WriteString(m.renderLine(idx, line, textWidth))
	}
	return b.String()
}

func (m *Model) renderLine(idx int, line []rune, width int) string {
	s := styles.CurrentTheme().S()
	text := strings.ReplaceAll(string(line), "\t", "    ")
	if idx != m.row || !m.focused {
		if m.Marked(idx) {
			return s.Marked.Render(ansi.Truncate(text, width, "…"))
		}
		return ansi.Truncate(text, width, "…")
	}

	before := strings.ReplaceAll(string(line[:m.col]), "\t", "    ")
	at := " "
	after := ""
	if m.col < len(line) {
		at = strings.ReplaceAll(string(line[m.col]), "\t", "    ")
		after = strings.ReplaceAll(string(line[m.col+1:]), "\t", "    ")
	}
	rendered := s.CursorLine.Render(before) + s.Cursor.Render(at) + s.CursorLine.Render(after)
	if ansi.StringWidth(before) >= width {
		return ansi.TruncateLeft(rendered, ansi.StringWidth(before)-width+1, "…")
	}
	return ansi.Truncate(rendered, width, "…")
}
