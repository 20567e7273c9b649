package tui

import (
	tea "github.com/charmbracelet/bubbletea/v2"
)

// resizeComponents resizes all components based on current window size
func (m *Model) resizeComponents() tea.Cmd {
	editorWidth, panelWidth := m.columns()
	bodyHeight := m.height - 1

	// Bordered components lose two columns and two rows.
	return tea.Batch(
		m.editor.SetSize(editorWidth-2, bodyHeight-2),
		m.panel.SetSize(panelWidth-2, bodyHeight-2),
		m.status.SetSize(m.width, 1),
	)
}

// columns splits the width between editor and panel. Narrow terminals
// give the panel a fixed minimum.
func (m *Model) columns() (editorWidth, panelWidth int) {
	switch {
	case m.width < 60:
		panelWidth = min(24, m.width/2)
	case m.width < 120:
		panelWidth = m.width * 2 / 5
	default:
		panelWidth = 50
	}
	return m.width - panelWidth, panelWidth
}
