// Package csync provides small thread-safe generic collections.
//
// The engine partitions all per-document state by document id, and the
// registries that hold those partitions are read from host goroutines
// (editor callbacks, file watchers, the TUI) while document loops write
// them. Map and Slice wrap the plain Go types with a RWMutex so those
// call sites never need their own locking.
//
// Example usage:
//
//	docs := csync.NewMap[string, *document]()
//	docs.Set("notes.md", doc)
//	if doc, ok := docs.Get("notes.md"); ok {
//		doc.post(msg)
//	}
//
//	notices := csync.NewSlice[string]()
//	notices.Append("request failed")
//	recent := notices.Tail(5)
package csync
