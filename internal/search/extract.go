package search

import (
	"context"

	"github.com/user/loggrab/internal/index"
)

// MatchValue holds the capture-group values one row yielded, grouped by the
// filter that produced them.
type MatchValue struct {
	Position int
	// Values maps filter index to the captured groups of each occurrence,
	// whole-match group excluded.
	Values map[int][][]string
}

// ExtractValues scans the whole index and collects capture-group values for
// every row any filter matches. Filters without capture groups contribute
// match positions but no values.
func ExtractValues(ctx context.Context, ix *index.LineIndex, filters []Filter) ([]MatchValue, error) {
	c, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}

	total := ix.RowCount()
	var out []MatchValue
	for pos := 0; pos < total; pos++ {
		if pos%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return out, err
			}
		}
		content, err := ix.ReadRow(pos)
		if err != nil {
			return out, err
		}
		if !c.combined.Match(content) {
			continue
		}
		mv := MatchValue{Position: pos, Values: make(map[int][][]string)}
		for i, re := range c.each {
			for _, caps := range re.FindAllSubmatch(content, -1) {
				if len(caps) <= 1 {
					continue
				}
				groups := make([]string, 0, len(caps)-1)
				for _, g := range caps[1:] {
					groups = append(groups, string(g))
				}
				mv.Values[i] = append(mv.Values[i], groups)
			}
		}
		out = append(out, mv)
	}
	return out, nil
}
