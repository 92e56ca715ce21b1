package index

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/user/loggrab/internal/frame"
	"github.com/user/loggrab/internal/store"
)

// ErrOutOfRange reports a row query beyond the current row count.
var ErrOutOfRange = errors.New("row out of range")

// LineIndex converts append-only byte streams into a monotonically growing
// sequence of row boundaries over a session backing file. Rows get dense
// positions starting at 0 and their byte ranges never change once recorded.
//
// Each contributing stream has its own carry buffer, so several sources can
// feed one index without splicing their partial rows together. Bytes reach
// the backing file only once they frame into complete rows, which keeps
// every row's byte range contiguous and keeps discarded trailing bytes out
// of the file.
//
// Appends are serialized; reads take a snapshot of the committed row count
// and never observe a partially appended row.
type LineIndex struct {
	mu      sync.RWMutex
	back    *store.SessionFile
	framer  frame.Framer
	offsets []int64 // byte offset of each row start
	end     int64   // offset past the last complete row
	carries map[uint16][]byte
}

// NewLineIndex creates an empty index writing through to back.
func NewLineIndex(back *store.SessionFile, framer frame.Framer) *LineIndex {
	return &LineIndex{back: back, framer: framer, carries: make(map[uint16][]byte)}
}

// Append buffers b for stream and registers any row boundaries the framer
// discovers. It returns the number of rows added. A framing error leaves
// the unconsumed bytes buffered; they are retried on the stream's next
// append.
func (idx *LineIndex) Append(stream uint16, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	added, rest, err := idx.commit(append(idx.carries[stream], b...), false)
	if len(rest) == 0 {
		delete(idx.carries, stream)
	} else {
		idx.carries[stream] = rest
	}
	return added, err
}

// Finish frames whatever stream left behind. For text streams a trailing
// unterminated chunk becomes a final row; for binary streams leftover bytes
// cannot form a record and are reported as dropped, without ever reaching
// the backing file. Finishing a stream with no buffered bytes is a no-op.
func (idx *LineIndex) Finish(stream uint16) (added, dropped int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	carry := idx.carries[stream]
	delete(idx.carries, stream)
	if len(carry) == 0 {
		return 0, 0
	}
	added, rest, _ := idx.commit(carry, true)
	return added, len(rest)
}

// commit frames carry, writes the consumed prefix to the backing file, and
// records the new row offsets. Framers consume whole rows only, so the
// written prefix is exactly the new rows' bytes.
func (idx *LineIndex) commit(carry []byte, atEOF bool) (int, []byte, error) {
	consumed, rows, ferr := idx.framer.Frame(carry, atEOF)
	if consumed > 0 {
		if _, err := idx.back.Append(carry[:consumed]); err != nil {
			return 0, carry, err
		}
		for _, length := range rows {
			idx.offsets = append(idx.offsets, idx.end)
			idx.end += int64(length)
		}
	}
	var rest []byte
	if consumed < len(carry) {
		rest = append(carry[:0:0], carry[consumed:]...)
	}
	if ferr != nil {
		return len(rows), rest, fmt.Errorf("framing stalled at row %d: %w", len(idx.offsets), ferr)
	}
	return len(rows), rest, nil
}

// RowCount returns the total number of complete rows
func (idx *LineIndex) RowCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.offsets)
}

// PendingBytes returns how many bytes wait for a row boundary across all
// streams.
func (idx *LineIndex) PendingBytes() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := 0
	for _, carry := range idx.carries {
		total += len(carry)
	}
	return total
}

// RowOffset returns the byte range [start, end) of a row, delimiter included.
func (idx *LineIndex) RowOffset(position int) (int64, int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.rowOffsetLocked(position)
}

func (idx *LineIndex) rowOffsetLocked(position int) (int64, int64, error) {
	if position < 0 || position >= len(idx.offsets) {
		return 0, 0, fmt.Errorf("%w: position %d, rows %d", ErrOutOfRange, position, len(idx.offsets))
	}
	start := idx.offsets[position]
	end := idx.end
	if position+1 < len(idx.offsets) {
		end = idx.offsets[position+1]
	}
	return start, end, nil
}

// ReadRow returns the content of the row at position with the trailing
// delimiter trimmed.
func (idx *LineIndex) ReadRow(position int) ([]byte, error) {
	idx.mu.RLock()
	start, end, err := idx.rowOffsetLocked(position)
	idx.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	content, err := idx.back.ReadRange(start, end)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(content, "\r\n"), nil
}

// ReadRows returns the contents of count rows starting at position.
func (idx *LineIndex) ReadRows(position, count int) ([][]byte, error) {
	rows := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		content, err := idx.ReadRow(position + i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, content)
	}
	return rows, nil
}

// Backing exposes the read side of the session file for raw export
func (idx *LineIndex) Backing() store.Backing {
	return idx.back
}
