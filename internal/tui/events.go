package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea/v2"

	"github.com/billie-coop/margin/internal/engine"
	"github.com/billie-coop/margin/internal/events"
)

// eventMsg wraps a broker event for the update loop.
type eventMsg events.Event

// listenForEvents listens for events from the event broker
func (m *Model) listenForEvents() tea.Cmd {
	if m.eventSub == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-m.eventSub
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

// handleEvent processes events from the event broker
func (m *Model) handleEvent(event events.Event) tea.Cmd {
	if event.DocID != "" && event.DocID != m.docID {
		return nil
	}

	switch event.Type {
	case events.StateChangedEvent:
		if p, ok := event.Payload.(events.StatePayload); ok {
			m.state = p.To
			m.panel.SetBusy(p.To == engine.Requesting.String())
			m.syncStatus()
		}

	case events.RequestIssuedEvent:
		if p, ok := event.Payload.(events.RequestPayload); ok {
			m.requests++
			m.syncStatus()
			if m.debug {
				return m.status.ShowInfo(fmt.Sprintf("asked about %d lines", p.ChangedLines))
			}
		}

	case events.RequestSkippedEvent:
		if m.debug {
			return m.status.ShowInfo("skipped by gate")
		}

	case events.RequestDiscardedEvent:
		if m.debug {
			return m.status.ShowInfo("stale response discarded")
		}

	case events.AnnotationsEvent:
		if p, ok := event.Payload.(events.AnnotationsPayload); ok && p.Dropped > 0 {
			return m.status.ShowWarning(fmt.Sprintf("%d annotations dropped", p.Dropped))
		}

	case events.NoticeEvent:
		if n, ok := event.Payload.(events.Notice); ok {
			switch n.Level {
			case events.NoticeError:
				return m.status.ShowError(n.Message)
			case events.NoticeWarn:
				return m.status.ShowWarning(n.Message)
			default:
				return m.status.ShowInfo(n.Message)
			}
		}
	}
	return nil
}
