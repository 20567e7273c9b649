package annotations

import (
	"slices"

	"github.com/billie-coop/margin/internal/changes"
	"github.com/billie-coop/margin/internal/csync"
)

// Store keeps the current annotation set per document id.
//
// Sets are stored as immutable slices: every mutation installs a fresh
// slice, so a slice handed out by Get is never modified afterwards.
//
// Used by: engine (document loops write, hosts read)
// Thread-safe: Yes
type Store struct {
	docs *csync.Map[string, []Annotation]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: csync.NewMap[string, []Annotation]()}
}

// Replace discards the prior set of docID and installs annotations.
func (s *Store) Replace(docID string, annotations []Annotation) {
	s.docs.Set(docID, slices.Clone(annotations))
}

// InvalidateOverlapping removes every annotation of docID whose range
// intersects edited (inclusive on both ends) and returns the removed ones.
func (s *Store) InvalidateOverlapping(docID string, edited changes.Range) []Annotation {
	var removed []Annotation
	s.docs.Update(docID, func(old []Annotation, _ bool) []Annotation {
		kept := make([]Annotation, 0, len(old))
		for _, a := range old {
			if a.Range.Overlaps(edited) {
				removed = append(removed, a)
				continue
			}
			kept = append(kept, a)
		}
		return kept
	})
	return removed
}

// Clear empties the set of docID.
func (s *Store) Clear(docID string) {
	s.docs.Delete(docID)
}

// Get returns a copy of the current set of docID.
func (s *Store) Get(docID string) []Annotation {
	current, _ := s.docs.Get(docID)
	return slices.Clone(current)
}

// Len returns the number of annotations held for docID.
func (s *Store) Len(docID string) int {
	current, _ := s.docs.Get(docID)
	return len(current)
}
