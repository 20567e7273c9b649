package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea/v2"
)

// opResultMsg reports the outcome of an engine or file operation.
type opResultMsg struct {
	op  string
	err error
}

// flush asks for annotations now. Engine calls wait on the document's
// loop, so they run as commands off the update goroutine.
func (m *Model) flush() tea.Cmd {
	if m.eng == nil {
		return m.status.ShowWarning("annotations are disabled")
	}
	eng, docID := m.eng, m.docID
	return func() tea.Msg {
		return opResultMsg{op: "flush", err: eng.Flush(docID)}
	}
}

func (m *Model) reset() tea.Cmd {
	if m.eng == nil {
		return m.status.ShowWarning("annotations are disabled")
	}
	eng, docID := m.eng, m.docID
	return func() tea.Msg {
		return opResultMsg{op: "reset", err: eng.Reset(docID)}
	}
}

func (m *Model) save() tea.Cmd {
	if m.path == "" {
		return m.status.ShowWarning("no file to save to")
	}
	snap, err := m.doc.Snapshot(m.docID)
	if err != nil {
		return m.status.ShowError(err.Error())
	}
	path, text := m.path, snap.Text()
	return func() tea.Msg {
		return opResultMsg{op: "save", err: os.WriteFile(path, []byte(text), 0o644)}
	}
}

func (m *Model) handleOpResult(msg opResultMsg) tea.Cmd {
	if msg.err != nil {
		return m.status.ShowError(fmt.Sprintf("%s failed: %v", msg.op, msg.err))
	}
	switch msg.op {
	case "save":
		m.dirty = false
		m.syncStatus()
		return m.status.ShowSuccess("saved " + m.path)
	case "reset":
		return m.status.ShowInfo("annotations reset")
	}
	return nil
}

// quit stops sink delivery and the event subscription before exiting so
// the engine never blocks on a program that is gone.
func (m *Model) quit() tea.Cmd {
	m.sink.Close()
	if m.broker != nil && m.eventSub != nil {
		m.broker.Unsubscribe(m.eventSub)
		m.eventSub = nil
	}
	return tea.Quit
}
