// Package panel lists a document's annotations beside the editor.
package panel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/tui/styles"
)

// Model renders annotations as markdown in a scrollable viewport. The
// annotations covering the cursor line are listed first.
type Model struct {
	viewport viewport.Model
	spinner  spinner.Model

	anns    []annotations.Annotation
	line    int
	busy    bool
	width   int
	height  int
	content string
}

// New creates an empty panel.
func New() *Model {
	vp := viewport.New()
	vp.MouseWheelEnabled = true

	return &Model{
		viewport: vp,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update forwards spinner ticks and scroll input.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if _, ok := msg.(spinner.TickMsg); ok {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.busy {
			m.render()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return tea.Batch(cmds...)
}

// SetSize resizes the viewport and re-renders for the new width.
func (m *Model) SetSize(width, height int) tea.Cmd {
	m.width = width
	m.height = height
	m.viewport = viewport.New(
		viewport.WithWidth(width),
		viewport.WithHeight(height),
	)
	m.viewport.MouseWheelEnabled = true
	m.render()
	return nil
}

// SetAnnotations replaces the listed set.
func (m *Model) SetAnnotations(anns []annotations.Annotation) {
	m.anns = anns
	m.render()
	m.viewport.GotoTop()
}

// SetCursorLine moves the focus line; annotations covering it are shown
// first.
func (m *Model) SetCursorLine(line int) {
	if line == m.line {
		return
	}
	m.line = line
	m.render()
}

// SetBusy toggles the "thinking" header while a request is outstanding.
func (m *Model) SetBusy(busy bool) {
	if busy == m.busy {
		return
	}
	m.busy = busy
	m.render()
}

// Content returns the markdown currently rendered.
func (m *Model) Content() string {
	return m.content
}

// View renders the panel.
func (m *Model) View() string {
	return m.viewport.View()
}

func (m *Model) render() {
	m.content = Markdown(m.anns, m.line)

	theme := styles.CurrentTheme()
	s := theme.S()
	var header string
	if m.busy {
		header = m.spinner.View() + " " + s.Muted.Render("thinking…")
	} else {
		header = styles.ApplyGradient("Annotations", theme.Primary, theme.Accent, true) +
			s.Muted.Render(fmt.Sprintf(" (%d)", len(m.anns)))
	}

	body := s.Muted.Render("Nothing to say yet.")
	if len(m.anns) > 0 && m.width > 0 {
		body = styles.RenderMarkdown(m.content, max(m.width-2, 10))
	}
	m.viewport.SetContent(header + "\n\n" + body)
}

// Markdown formats anns as a markdown list. Annotations covering line are
// listed first, each group keeping its original order.
func Markdown(anns []annotations.Annotation, line int) string {
	if len(anns) == 0 {
		return ""
	}

	var here, rest []annotations.Annotation
	for _, a := range anns {
		if a.Range.Start <= line && line <= a.Range.End {
			here = append(here, a)
		} else {
			rest = append(rest, a)
		}
	}

	var sb strings.Builder
	for _, a := range append(here, rest...) {
		sb.WriteString("### ")
		sb.WriteString(lineLabel(a))
		sb.WriteString(" · ")
		sb.WriteString(a.Title)
		sb.WriteString("\n\n")
		if a.Body != "" && a.Body != a.Title {
			sb.WriteString(a.Body)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func lineLabel(a annotations.Annotation) string {
	if a.Range.Start == a.Range.End {
		return fmt.Sprintf("L%d", a.Range.Start+1)
	}
	return fmt.Sprintf("L%d–%d", a.Range.Start+1, a.Range.End+1)
}
