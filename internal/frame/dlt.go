package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DLT storage header: 4 byte pattern, 4 byte seconds, 4 byte microseconds,
// 4 byte ECU id. The standard header that follows carries the message
// length at offset 2, big endian, excluding the storage header.
const (
	dltStorageHeaderLen  = 16
	dltStandardHeaderMin = 4
)

var dltPattern = []byte{'D', 'L', 'T', 0x01}

// DLTFramer splits a stream into DLT records.
type DLTFramer struct{}

// NewDLTFramer creates a framer for DLT binary logs
func NewDLTFramer() *DLTFramer {
	return &DLTFramer{}
}

// Frame consumes complete DLT records from buf. A record whose tail has not
// arrived yet is left unconsumed. A record that does not start with the
// storage pattern, or whose declared length is impossible, is reported as
// ErrMalformedRecord without consuming the bad bytes.
func (d *DLTFramer) Frame(buf []byte, atEOF bool) (int, []int, error) {
	var rows []int
	consumed := 0
	for {
		rest := buf[consumed:]
		if len(rest) == 0 {
			return consumed, rows, nil
		}
		if len(rest) < dltStorageHeaderLen+dltStandardHeaderMin {
			// Could still be the start of a valid record.
			n := min(len(rest), len(dltPattern))
			if !bytes.Equal(rest[:n], dltPattern[:n]) {
				return consumed, rows, fmt.Errorf("%w: %d stray bytes before storage header", ErrMalformedRecord, len(rest))
			}
			return consumed, rows, nil
		}
		if !bytes.HasPrefix(rest, dltPattern) {
			return consumed, rows, fmt.Errorf("%w: missing DLT storage pattern", ErrMalformedRecord)
		}
		msgLen := int(binary.BigEndian.Uint16(rest[dltStorageHeaderLen+2 : dltStorageHeaderLen+4]))
		if msgLen < dltStandardHeaderMin {
			return consumed, rows, fmt.Errorf("%w: declared message length %d too small", ErrMalformedRecord, msgLen)
		}
		total := dltStorageHeaderLen + msgLen
		if len(rest) < total {
			// Incomplete record, wait for more bytes.
			return consumed, rows, nil
		}
		rows = append(rows, total)
		consumed += total
	}
}
