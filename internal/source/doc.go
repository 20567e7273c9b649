// Package source provides text sources the engine can attach to.
//
// Buffer keeps documents in memory and turns every mutation into edit
// signals; the TUI and tests drive it directly. File mirrors files on disk
// into a Buffer and reports external writes as reload signals.
package source
