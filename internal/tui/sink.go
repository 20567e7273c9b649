package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea/v2"

	"github.com/billie-coop/margin/internal/annotations"
)

// annotationsMsg carries a document's complete annotation set. A nil set
// means the document's annotations were cleared.
type annotationsMsg struct {
	docID string
	anns  []annotations.Annotation
}

// Sink hands engine render calls to the bubbletea program in the order
// they were made. Apply and Clear block until the program picks the call
// up or the sink is closed.
type Sink struct {
	ch   chan annotationsMsg
	done chan struct{}
	once sync.Once
}

// NewSink creates a sink.
func NewSink() *Sink {
	return &Sink{
		ch:   make(chan annotationsMsg, 16),
		done: make(chan struct{}),
	}
}

// Apply implements engine.Sink.
func (s *Sink) Apply(docID string, anns []annotations.Annotation) {
	s.send(annotationsMsg{docID: docID, anns: anns})
}

// Clear implements engine.Sink.
func (s *Sink) Clear(docID string) {
	s.send(annotationsMsg{docID: docID})
}

// Close stops delivery. Pending and later calls are dropped.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Sink) send(msg annotationsMsg) {
	select {
	case s.ch <- msg:
	case <-s.done:
	}
}

// listen waits for the next render call.
func (s *Sink) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.ch:
			return msg
		case <-s.done:
			return nil
		}
	}
}
