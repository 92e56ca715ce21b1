// Package search applies regex filters to indexed rows, producing match
// positions, per-filter statistics, and extracted capture values.
package search

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter is one search condition. Plain (non-regex) values are escaped
// before compilation.
type Filter struct {
	Value      string
	IsRegex    bool
	IgnoreCase bool
	WholeWord  bool
}

// NewFilter creates a case-sensitive regex filter for value.
func NewFilter(value string) Filter {
	return Filter{Value: value, IsRegex: true}
}

// AsRegex renders the filter as a regex fragment honoring its flags.
func (f Filter) AsRegex() string {
	subject := f.Value
	if !f.IsRegex {
		subject = regexp.QuoteMeta(subject)
	}
	if f.WholeWord {
		subject = `\b` + subject + `\b`
	}
	if f.IgnoreCase {
		subject = "(?i:" + subject + ")"
	}
	return subject
}

// compiled holds the combined matcher plus one matcher per filter so a
// matched row can be attributed to the filters that hit it.
type compiled struct {
	combined *regexp.Regexp
	each     []*regexp.Regexp
}

func compileFilters(filters []Filter) (*compiled, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("cannot search without filters")
	}
	parts := make([]string, len(filters))
	each := make([]*regexp.Regexp, len(filters))
	for i, f := range filters {
		parts[i] = f.AsRegex()
		re, err := regexp.Compile(f.AsRegex())
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Value, err)
		}
		each[i] = re
	}
	combined, err := regexp.Compile("(" + strings.Join(parts, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("combined filter: %w", err)
	}
	return &compiled{combined: combined, each: each}, nil
}
