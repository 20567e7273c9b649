package engine

import (
	"log/slog"

	"github.com/billie-coop/margin/internal/annotations"
)

// Sink renders annotations for a host.
//
// Apply receives the complete current set for docID and replaces whatever
// was shown before. Calls for one document never overlap, but calls for
// different documents may.
type Sink interface {
	Apply(docID string, anns []annotations.Annotation)
	Clear(docID string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Apply(string, []annotations.Annotation) {}
func (NopSink) Clear(string)                           {}

// LogSink writes annotations to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Apply logs every annotation at info level.
func (s LogSink) Apply(docID string, anns []annotations.Annotation) {
	logger := s.logger()
	logger.Info("annotations updated", "doc", docID, "count", len(anns))
	for _, a := range anns {
		logger.Info("annotation", "doc", docID, "start", a.Range.Start+1, "end", a.Range.End+1, "title", a.Title, "body", a.Body)
	}
}

// Clear logs that the document's annotations are gone.
func (s LogSink) Clear(docID string) {
	s.logger().Info("annotations cleared", "doc", docID)
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Apply(docID string, anns []annotations.Annotation) {
	for _, s := range m {
		s.Apply(docID, anns)
	}
}

func (m MultiSink) Clear(docID string) {
	for _, s := range m {
		s.Clear(docID)
	}
}
