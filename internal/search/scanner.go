package search

import (
	"context"

	"github.com/user/loggrab/internal/index"
)

// checkEvery is the row-batch granularity for cancellation checks.
const checkEvery = 512

// Match records that a row matched, and which filters hit it.
type Match struct {
	Position int
	Filters  []int
}

// Stats counts matches per filter index.
type Stats map[int]int

// Scanner runs incremental match scans over a line index. Each Scan call
// picks up where the previous one stopped, so appended rows are searched
// without rescanning the already-covered prefix.
type Scanner struct {
	ix      *index.LineIndex
	filters *compiled
	nextRow int
	stats   Stats
}

// NewScanner compiles filters into a scanner over ix.
func NewScanner(ix *index.LineIndex, filters []Filter) (*Scanner, error) {
	c, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}
	return &Scanner{ix: ix, filters: c, stats: make(Stats)}, nil
}

// Scan searches rows appended since the last call, up to the row count
// snapshot taken at entry. Cancellation is checked once per row batch.
func (s *Scanner) Scan(ctx context.Context) ([]Match, error) {
	total := s.ix.RowCount()
	var matches []Match
	for pos := s.nextRow; pos < total; pos++ {
		if pos%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				s.nextRow = pos
				return matches, err
			}
		}
		content, err := s.ix.ReadRow(pos)
		if err != nil {
			s.nextRow = pos
			return matches, err
		}
		if !s.filters.combined.Match(content) {
			continue
		}
		m := Match{Position: pos}
		for i, re := range s.filters.each {
			if re.Match(content) {
				m.Filters = append(m.Filters, i)
				s.stats[i]++
			}
		}
		matches = append(matches, m)
	}
	s.nextRow = total
	return matches, nil
}

// Covered returns how many rows the scanner has searched so far
func (s *Scanner) Covered() int {
	return s.nextRow
}

// FilterStats returns a copy of the per-filter hit counts.
func (s *Scanner) FilterStats() Stats {
	out := make(Stats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}
