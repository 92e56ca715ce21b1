package frame

import "errors"

// ErrMalformedRecord reports a corrupt binary frame. The unconsumed bytes
// stay buffered by the caller and are retried once more data arrives.
var ErrMalformedRecord = errors.New("malformed record")

// Framer splits an incoming byte stream into rows.
//
// Frame consumes as many complete rows as possible from the front of buf.
// It returns the total number of bytes consumed and the length in bytes of
// each discovered row, including its delimiter or frame header. Consumed
// bytes always cover whole rows, never a fragment. Bytes past consumed are
// incomplete and must be offered again with more data. atEOF signals that
// no further bytes will arrive.
type Framer interface {
	Frame(buf []byte, atEOF bool) (consumed int, rows []int, err error)
}
