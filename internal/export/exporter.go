// Package export streams selected row ranges out of a session, either as
// normalized text or as the original raw bytes behind them.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/user/loggrab/internal/grab"
	"github.com/user/loggrab/internal/index"
)

// batchSize is the row granularity for cancellation checks.
const batchSize = 256

// Exporter dumps row ranges from a line index to a destination writer.
// Cancellation is cooperative; the destination handle always stays with the
// caller, so an aborted export never leaks it.
type Exporter struct {
	ix    *index.LineIndex
	rawOK func() bool
}

// NewExporter creates an exporter over ix. rawOK reports whether the
// original bytes behind the index are still retrievable; nil means never.
func NewExporter(ix *index.LineIndex, rawOK func() bool) *Exporter {
	return &Exporter{ix: ix, rawOK: rawOK}
}

// RawAvailable reports whether ExportRaw can serve this session.
func (e *Exporter) RawAvailable() bool {
	return e.rawOK != nil && e.rawOK()
}

// Text streams the rows of each range to dst with normalized line endings.
// It returns true only when every requested row was written; ranges that
// reach past the current row count are clamped and reported as partial
// success (false, nil). A destination failure is fatal to this call only.
func (e *Exporter) Text(ctx context.Context, dst io.Writer, ranges []grab.Range) (bool, error) {
	complete := true
	for _, r := range ranges {
		r, full := e.clamp(r)
		if !full {
			complete = false
		}
		if !r.Valid() {
			continue
		}
		for pos := r.From; pos <= r.To; pos++ {
			if (pos-r.From)%batchSize == 0 {
				if err := ctx.Err(); err != nil {
					return false, err
				}
			}
			content, err := e.ix.ReadRow(pos)
			if err != nil {
				return false, err
			}
			if _, err := dst.Write(content); err != nil {
				return false, fmt.Errorf("failed to write row %d: %w", pos, err)
			}
			if _, err := io.WriteString(dst, "\n"); err != nil {
				return false, fmt.Errorf("failed to write row %d: %w", pos, err)
			}
		}
	}
	return complete, nil
}

// Raw streams the original unprocessed bytes behind each range to dst,
// using the index's byte offsets over the backing store. Callers must check
// RawAvailable first.
func (e *Exporter) Raw(ctx context.Context, dst io.Writer, ranges []grab.Range) (bool, error) {
	if !e.RawAvailable() {
		return false, errors.New("raw bytes are not retrievable for this session")
	}
	back := e.ix.Backing()
	complete := true
	for _, r := range ranges {
		r, full := e.clamp(r)
		if !full {
			complete = false
		}
		if !r.Valid() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		start, _, err := e.ix.RowOffset(r.From)
		if err != nil {
			return false, err
		}
		_, end, err := e.ix.RowOffset(r.To)
		if err != nil {
			return false, err
		}
		sr := io.NewSectionReader(back, start, end-start)
		if _, err := io.Copy(dst, sr); err != nil {
			return false, fmt.Errorf("failed to write raw range %s: %w", r, err)
		}
	}
	return complete, nil
}

// clamp trims r to the indexed rows. full is true only when every requested
// row exists; a range with nothing indexed comes back invalid.
func (e *Exporter) clamp(r grab.Range) (grab.Range, bool) {
	count := e.ix.RowCount()
	if count == 0 || !r.Valid() || r.From >= count {
		return grab.Range{From: 0, To: -1}, false
	}
	if r.To >= count {
		r.To = count - 1
		return r, false
	}
	return r, true
}
