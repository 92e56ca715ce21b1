// Package store holds the byte-level backing stores the line index reads
// from: memory-mapped source files and per-session append-only files.
package store

// Backing is the read side shared by mapped files and session files.
type Backing interface {
	ReadAt(p []byte, off int64) (int, error)
	ReadRange(start, end int64) ([]byte, error)
	Size() int64
	Path() string
}
