// Package annotations holds the annotation set of every attached document.
//
// A document's set only ever changes in two ways: it is replaced wholesale
// by a newly applied result, or entries are dropped because an edit touched
// their lines. There is no incremental merge.
package annotations

import (
	"fmt"

	"github.com/billie-coop/margin/internal/changes"
)

// Annotation is one enrichment attached to a line range of a document.
type Annotation struct {
	ID              string        `json:"id"`
	Range           changes.Range `json:"line_range"`
	Title           string        `json:"title"`
	Body            string        `json:"body"`
	OriginRequestID string        `json:"origin_request_id,omitempty"`
}

// String renders the annotation for logs.
func (a Annotation) String() string {
	if a.Range.Start == a.Range.End {
		return fmt.Sprintf("L%d %s", a.Range.Start+1, a.Title)
	}
	return fmt.Sprintf("L%d-%d %s", a.Range.Start+1, a.Range.End+1, a.Title)
}

// Filter returns the annotations for which keep returns true.
func Filter(in []Annotation, keep func(Annotation) bool) []Annotation {
	out := make([]Annotation, 0, len(in))
	for _, a := range in {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
