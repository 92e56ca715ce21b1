// Package grab serves arbitrary row-range queries against a line index in
// time proportional to the number of requested rows.
package grab

import (
	"fmt"
	"time"

	"github.com/user/loggrab/internal/index"
)

// Row is one logical log line with a stable position number. Timestamp and
// Match are derived lazily by callers holding an active format list; they
// are never written back into the index.
type Row struct {
	Position  int
	Content   []byte
	Timestamp *time.Time
	Match     string
}

// Range is an inclusive [From, To] row interval.
type Range struct {
	From int
	To   int
}

// Len returns the number of rows the range covers
func (r Range) Len() int {
	return r.To - r.From + 1
}

// Valid reports whether the range is well-formed
func (r Range) Valid() bool {
	return r.From >= 0 && r.From <= r.To
}

func (r Range) String() string {
	return fmt.Sprintf("[%d..%d]", r.From, r.To)
}

// Grabber is a pure read path over a line index.
type Grabber struct {
	ix *index.LineIndex
}

// NewGrabber creates a grabber over ix
func NewGrabber(ix *index.LineIndex) *Grabber {
	return &Grabber{ix: ix}
}

// Grab returns the rows covered by r in position order. An empty index
// yields an empty result, not an error. A range reaching past the current
// row count fails with index.ErrOutOfRange.
func (g *Grabber) Grab(r Range) ([]Row, error) {
	if g.ix.RowCount() == 0 {
		return nil, nil
	}
	if !r.Valid() {
		return nil, fmt.Errorf("%w: invalid range %s", index.ErrOutOfRange, r)
	}
	if r.To >= g.ix.RowCount() {
		return nil, fmt.Errorf("%w: range %s, rows %d", index.ErrOutOfRange, r, g.ix.RowCount())
	}

	contents, err := g.ix.ReadRows(r.From, r.Len())
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(contents))
	for i, content := range contents {
		rows[i] = Row{Position: r.From + i, Content: content}
	}
	return rows, nil
}

// GrabMany applies Grab to each range and concatenates the results in input
// order. Ranges may overlap; overlapping rows are returned once per range.
func (g *Grabber) GrabMany(ranges []Range) ([]Row, error) {
	var rows []Row
	for _, r := range ranges {
		part, err := g.Grab(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}
