// Package logformat detects and parses timestamps in log rows. Formats are
// written as strftime-style specs (e.g. "%Y-%m-%d %H:%M:%S") and compile to
// a search regex plus a Go time layout.
package logformat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrExtractionFailed reports a substring that matched a format's regex but
// does not parse under its grammar.
var ErrExtractionFailed = errors.New("timestamp extraction failed")

// Format pairs a timestamp search pattern with its parse layout.
type Format struct {
	spec   string
	regex  *regexp.Regexp
	layout string

	hasYear  bool
	hasMonth bool
	hasDay   bool
}

// Defaults supplies replacement date parts for formats that omit them.
type Defaults struct {
	Year  int
	Month time.Month
	Day   int
}

// token maps one strftime directive to a regex fragment and layout fragment.
type token struct {
	regex  string
	layout string
}

var tokens = map[byte]token{
	'Y': {`\d{4}`, "2006"},
	'y': {`\d{2}`, "06"},
	'm': {`\d{2}`, "01"},
	'd': {`\d{2}`, "02"},
	'e': {`\d{1,2}`, "2"},
	'b': {`[A-Z][a-z]{2}`, "Jan"},
	'H': {`\d{2}`, "15"},
	'M': {`\d{2}`, "04"},
	'S': {`\d{2}`, "05"},
	'f': {`\d{3}`, "000"},
	'z': {`[+-]\d{4}`, "-0700"},
}

// NewFormat compiles a strftime-style spec. The returned format matches the
// first occurrence of the pattern anywhere in a row.
func NewFormat(spec string) (*Format, error) {
	f := &Format{spec: spec}

	var rx, layout strings.Builder
	for i := 0; i < len(spec); i++ {
		c := spec[i]
		if c != '%' {
			rx.WriteString(regexp.QuoteMeta(string(c)))
			layout.WriteByte(c)
			continue
		}
		i++
		if i >= len(spec) {
			return nil, fmt.Errorf("format %q: trailing %%", spec)
		}
		d := spec[i]
		if d == '%' {
			rx.WriteString("%")
			layout.WriteString("%")
			continue
		}
		tok, ok := tokens[d]
		if !ok {
			return nil, fmt.Errorf("format %q: unsupported directive %%%c", spec, d)
		}
		rx.WriteString(tok.regex)
		layout.WriteString(tok.layout)
		switch d {
		case 'Y', 'y':
			f.hasYear = true
		case 'm', 'b':
			f.hasMonth = true
		case 'd', 'e':
			f.hasDay = true
		}
	}

	compiled, err := regexp.Compile("(" + rx.String() + ")")
	if err != nil {
		return nil, fmt.Errorf("format %q: %w", spec, err)
	}
	f.regex = compiled
	f.layout = layout.String()
	return f, nil
}

// Spec returns the strftime-style spec the format was built from
func (f *Format) Spec() string {
	return f.spec
}

// Regex returns the compiled search pattern as a string
func (f *Format) Regex() string {
	return f.regex.String()
}

// Match returns the first substring of line the format's pattern matches.
func (f *Format) Match(line string) (string, bool) {
	m := f.regex.FindString(line)
	if m == "" {
		return "", false
	}
	return m, true
}

// Extract parses a matched substring into epoch milliseconds (UTC). Date
// parts the spec omits are taken from d. A regex match is necessary but not
// sufficient; a substring that fails the layout grammar reports
// ErrExtractionFailed.
func (f *Format) Extract(match string, d Defaults) (int64, error) {
	t, err := time.Parse(f.layout, match)
	if err != nil {
		return 0, fmt.Errorf("%w: %q against %q: %v", ErrExtractionFailed, match, f.spec, err)
	}

	year, month, day := t.Year(), t.Month(), t.Day()
	if !f.hasYear {
		year = d.Year
	}
	if !f.hasMonth && d.Month != 0 {
		month = d.Month
	}
	if !f.hasDay && d.Day != 0 {
		day = d.Day
	}
	t = time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	return t.UnixMilli(), nil
}
