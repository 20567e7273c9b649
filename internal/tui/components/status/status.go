// Package status implements the one-line status bar under the editor.
package status

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/billie-coop/margin/internal/tui/styles"
)

// MessageType represents the type of status message
type MessageType int

const (
	Info MessageType = iota
	Warning
	Error
	Success
)

// StatusMessage represents a status bar message
type StatusMessage struct {
	Content   string
	Type      MessageType
	Timestamp time.Time
}

// Component implements a status bar that shows the engine state on the
// left and temporary messages on the right.
type Component struct {
	message     *StatusMessage
	width       int
	leftContent string

	clearAfter time.Duration
}

// New creates a new status bar component
func New() *Component {
	return &Component{
		clearAfter: 5 * time.Second,
	}
}

// SetMessage sets a status message with the given type
func (c *Component) SetMessage(content string, msgType MessageType) tea.Cmd {
	stamp := time.Now()
	c.message = &StatusMessage{
		Content:   content,
		Type:      msgType,
		Timestamp: stamp,
	}

	return tea.Tick(c.clearAfter, func(time.Time) tea.Msg {
		return clearMessageMsg{timestamp: stamp}
	})
}

// ShowInfo shows an info message
func (c *Component) ShowInfo(message string) tea.Cmd {
	return c.SetMessage(message, Info)
}

// ShowWarning shows a warning message
func (c *Component) ShowWarning(message string) tea.Cmd {
	return c.SetMessage(message, Warning)
}

// ShowError shows an error message
func (c *Component) ShowError(message string) tea.Cmd {
	return c.SetMessage(message, Error)
}

// ShowSuccess shows a success message
func (c *Component) ShowSuccess(message string) tea.Cmd {
	return c.SetMessage(message, Success)
}

// Message returns the message currently shown, if any.
func (c *Component) Message() *StatusMessage {
	return c.message
}

// SetLeftContent sets the left side content
func (c *Component) SetLeftContent(content string) {
	c.leftContent = content
}

// SetSize sets the bar width.
func (c *Component) SetSize(width, _ int) tea.Cmd {
	c.width = width
	return nil
}

type clearMessageMsg struct {
	timestamp time.Time
}

// Update clears an expired message.
func (c *Component) Update(msg tea.Msg) tea.Cmd {
	if msg, ok := msg.(clearMessageMsg); ok {
		if c.message != nil && msg.timestamp.Equal(c.message.Timestamp) {
			c.message = nil
		}
	}
	return nil
}

// View renders the bar.
func (c *Component) View() string {
	if c.width == 0 {
		return ""
	}

	theme := styles.CurrentTheme()
	statusStyle := lipgloss.NewStyle().
		Width(c.width).
		Height(1).
		Background(theme.BgSubtle).
		Foreground(theme.FgBase).
		Padding(0, 1)

	leftContent := c.leftContent
	rightContent := c.formatMessage()

	availableWidth := c.width - 2
	leftWidth := ansi.StringWidth(leftContent)
	rightWidth := ansi.StringWidth(rightContent)

	if leftWidth+rightWidth > availableWidth {
		if rightWidth > 40 {
			rightContent = ansi.Truncate(rightContent, 40, "...")
			rightWidth = ansi.StringWidth(rightContent)
		}
		remaining := availableWidth - rightWidth - 1
		if leftWidth > remaining && remaining > 3 {
			leftContent = ansi.Truncate(leftContent, remaining, "...")
			leftWidth = ansi.StringWidth(leftContent)
		}
	}

	content := leftContent
	if rightContent != "" {
		spacesNeeded := availableWidth - leftWidth - rightWidth
		if spacesNeeded > 0 {
			content += fmt.Sprintf("%*s%s", spacesNeeded, "", rightContent)
		} else {
			content += " " + rightContent
		}
	}

	return statusStyle.Render(content)
}

func (c *Component) formatMessage() string {
	if c.message == nil {
		return ""
	}

	switch c.message.Type {
	case Success:
		return styles.CheckIcon + " " + c.message.Content
	case Warning:
		return styles.WarningIcon + " " + c.message.Content
	case Error:
		return styles.ErrorIcon + " " + c.message.Content
	default:
		return c.message.Content
	}
}
