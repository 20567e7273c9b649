// Package tui is the terminal host for a single annotated document: an
// editor on the left, the document's annotations on the right and the
// engine's state in the status bar.
package tui

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"github.com/billie-coop/margin/internal/annotations"
	"github.com/billie-coop/margin/internal/engine"
	"github.com/billie-coop/margin/internal/events"
	"github.com/billie-coop/margin/internal/tui/components/editor"
	"github.com/billie-coop/margin/internal/tui/components/panel"
	"github.com/billie-coop/margin/internal/tui/components/status"
	"github.com/billie-coop/margin/internal/tui/styles"
)

// Controller is the part of the engine the interface drives.
type Controller interface {
	Flush(docID string) error
	Reset(docID string) error
	Annotations(docID string) []annotations.Annotation
}

// Options wires a Model.
type Options struct {
	DocID string
	// Path is where ctrl+s writes the document. Empty disables saving.
	Path     string
	Document editor.Document
	Engine   Controller
	Sink     *Sink
	Broker   *events.Broker
	Debug    bool
}

// Model is the root bubbletea model.
type Model struct {
	docID string
	path  string
	doc   editor.Document
	eng   Controller
	sink  *Sink

	broker   *events.Broker
	eventSub <-chan events.Event

	editor *editor.Model
	panel  *panel.Model
	status *status.Component

	width  int
	height int

	state    string
	requests int
	anns     int
	dirty    bool
	debug    bool
}

// New creates the model. The broker subscription is taken here so no
// event published after New is missed.
func New(opts Options) *Model {
	m := &Model{
		docID:  opts.DocID,
		path:   opts.Path,
		doc:    opts.Document,
		eng:    opts.Engine,
		sink:   opts.Sink,
		broker: opts.Broker,
		editor: editor.New(opts.Document, opts.DocID),
		panel:  panel.New(),
		status: status.New(),
		state:  engine.Idle.String(),
		debug:  opts.Debug,
	}
	if m.sink == nil {
		m.sink = NewSink()
	}
	if m.broker != nil {
		m.eventSub = m.broker.Subscribe()
	}
	if m.eng != nil {
		m.applyAnnotations(m.eng.Annotations(m.docID))
	}
	m.syncStatus()
	return m
}

// Init starts the listeners.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.sink.listen(),
		m.listenForEvents(),
		m.panel.Init(),
		m.status.ShowInfo("ctrl+f annotate now · ctrl+r reset · ctrl+s save · ctrl+c quit"),
	)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, m.resizeComponents()

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return m, m.quit()
		case "ctrl+f":
			return m, m.flush()
		case "ctrl+r":
			return m, m.reset()
		case "ctrl+s":
			return m, m.save()
		}

		before := m.editor.Text()
		cmds = append(cmds, m.editor.Update(msg))
		if m.editor.Text() != before {
			m.dirty = true
		}
		if err := m.editor.Err(); err != nil {
			cmds = append(cmds, m.status.ShowError(err.Error()))
		}
		row, _ := m.editor.Cursor()
		m.panel.SetCursorLine(row)
		m.syncStatus()
		return m, tea.Batch(cmds...)

	case annotationsMsg:
		if msg.docID == m.docID {
			m.applyAnnotations(msg.anns)
		}
		return m, m.sink.listen()

	case eventMsg:
		cmds = append(cmds, m.handleEvent(events.Event(msg)), m.listenForEvents())
		return m, tea.Batch(cmds...)

	case opResultMsg:
		return m, m.handleOpResult(msg)
	}

	cmds = append(cmds, m.status.Update(msg), m.panel.Update(msg))
	return m, tea.Batch(cmds...)
}

// View renders the editor and panel side by side above the status bar.
func (m *Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("")
	}
	s := styles.CurrentTheme().S()

	editorWidth, panelWidth := m.columns()
	bodyHeight := m.height - 1

	left := s.BorderFocused.
		Width(editorWidth).
		Height(bodyHeight).
		Render(m.editor.View())
	right := s.Border.
		Width(panelWidth).
		Height(bodyHeight).
		Render(m.panel.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return tea.NewView(lipgloss.JoinVertical(lipgloss.Left, body, m.status.View()))
}

func (m *Model) applyAnnotations(anns []annotations.Annotation) {
	m.anns = len(anns)
	m.editor.SetAnnotations(anns)
	m.panel.SetAnnotations(anns)
	m.syncStatus()
}

func (m *Model) syncStatus() {
	icon := styles.IdleIcon
	switch m.state {
	case engine.Debouncing.String():
		icon = styles.DebouncingIcon
	case engine.Requesting.String():
		icon = styles.RequestingIcon
	}

	name := filepath.Base(m.docID)
	if m.dirty {
		name += " •"
	}
	row, col := m.editor.Cursor()
	left := fmt.Sprintf("%s %s  %s  %d:%d  %d annotations", icon, m.state, name, row+1, col+1, m.anns)
	if m.debug {
		left += fmt.Sprintf("  %d requests", m.requests)
	}
	m.status.SetLeftContent(left)
}
