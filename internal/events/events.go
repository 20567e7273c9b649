// Package events carries engine lifecycle notifications to hosts.
package events

import "time"

// EventType identifies the type of event
type EventType string

const (
	Wildcard EventType = "*"

	// Document lifecycle
	DocumentAttachedEvent EventType = "document.attached"
	DocumentDetachedEvent EventType = "document.detached"
	StateChangedEvent     EventType = "document.state"

	// Request lifecycle
	RequestIssuedEvent    EventType = "request.issued"
	RequestSkippedEvent   EventType = "request.skipped"
	RequestDiscardedEvent EventType = "request.discarded"
	AnnotationsEvent      EventType = "annotations.applied"

	// Recoverable failures and other host-facing messages
	NoticeEvent EventType = "notice"
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	DocID   string
	Time    time.Time
	Payload interface{}
}

// New stamps an event with the current time.
func New(eventType EventType, docID string, payload interface{}) Event {
	return Event{Type: eventType, DocID: docID, Time: time.Now(), Payload: payload}
}

// StatePayload reports a document state transition.
type StatePayload struct {
	From string
	To   string
}

// RequestPayload describes an annotation request.
type RequestPayload struct {
	RequestID       string
	SnapshotVersion uint64
	ChangedLines    int
	Reason          string
}

// AnnotationsPayload reports how many annotations were installed.
type AnnotationsPayload struct {
	RequestID string
	Count     int
	Dropped   int
}

// NoticeLevel grades a notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a human-readable message for a status line.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
}
