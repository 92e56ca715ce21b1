package frame

import "bytes"

// TextFramer splits a stream into newline-delimited rows.
type TextFramer struct{}

// NewTextFramer creates a framer for plain text logs
func NewTextFramer() *TextFramer {
	return &TextFramer{}
}

// Frame finds newline boundaries in buf. At EOF a trailing chunk without a
// newline becomes a final row.
func (t *TextFramer) Frame(buf []byte, atEOF bool) (int, []int, error) {
	var rows []int
	consumed := 0
	for {
		idx := bytes.IndexByte(buf[consumed:], '\n')
		if idx == -1 {
			break
		}
		rows = append(rows, idx+1)
		consumed += idx + 1
	}
	if atEOF && consumed < len(buf) {
		rows = append(rows, len(buf)-consumed)
		consumed = len(buf)
	}
	return consumed, rows, nil
}
