package logformat

import (
	"fmt"
	"sync"
)

// List is an ordered set of active formats. Matching is first-format-wins:
// formats are tried in registration order and the first hit short-circuits,
// even when a later format would match a longer substring. Callers rely on
// that ordering, so it is a contract, not an accident.
type List struct {
	mu      sync.RWMutex
	formats []*Format
}

// NewList creates an empty format list
func NewList() *List {
	return &List{}
}

// Add compiles spec and appends it to the list.
func (l *List) Add(spec string) (*Format, error) {
	f, err := NewFormat(spec)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.formats {
		if existing.spec == spec {
			return nil, fmt.Errorf("format %q already registered", spec)
		}
	}
	l.formats = append(l.formats, f)
	return f, nil
}

// Remove drops the format with the given spec. Removing an unknown spec is
// a no-op.
func (l *List) Remove(spec string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, f := range l.formats {
		if f.spec == spec {
			l.formats = append(l.formats[:i], l.formats[i+1:]...)
			return
		}
	}
}

// Clear drops all formats
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.formats = nil
}

// Formats returns the registered formats in order.
func (l *List) Formats() []*Format {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Format, len(l.formats))
	copy(out, l.formats)
	return out
}

// Match returns the first matching substring of line and the format that
// produced it.
func (l *List) Match(line string) (string, *Format, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.formats {
		if m, ok := f.Match(line); ok {
			return m, f, true
		}
	}
	return "", nil, false
}

// Extract matches line against the list and parses the hit into epoch
// milliseconds. A row with no matching substring returns ok=false, not an
// error.
func (l *List) Extract(line string, d Defaults) (int64, bool, error) {
	m, f, ok := l.Match(line)
	if !ok {
		return 0, false, nil
	}
	ts, err := f.Extract(m, d)
	if err != nil {
		return 0, true, err
	}
	return ts, true, nil
}
