package grab

import (
	"errors"
	"fmt"
	"testing"

	"github.com/user/loggrab/internal/frame"
	"github.com/user/loggrab/internal/index"
	"github.com/user/loggrab/internal/store"
)

func newGrabberWithRows(t *testing.T, count int) *Grabber {
	t.Helper()
	back, err := store.CreateSessionFile(t.TempDir())
	if err != nil {
		t.Fatalf("CreateSessionFile failed: %v", err)
	}
	t.Cleanup(func() { back.Close() })

	ix := index.NewLineIndex(back, frame.NewTextFramer())
	for i := 0; i < count; i++ {
		if _, err := ix.Append(0, []byte(fmt.Sprintf("line-%d\n", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return NewGrabber(ix)
}

func TestGrabMiddleRange(t *testing.T) {
	g := newGrabberWithRows(t, 1000)

	rows, err := g.Grab(Range{From: 500, To: 509})
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("len(rows) = %d, want 10", len(rows))
	}
	for i, row := range rows {
		wantPos := 500 + i
		if row.Position != wantPos {
			t.Errorf("rows[%d].Position = %d, want %d", i, row.Position, wantPos)
		}
		want := fmt.Sprintf("line-%d", wantPos)
		if string(row.Content) != want {
			t.Errorf("rows[%d].Content = %q, want %q", i, row.Content, want)
		}
	}
}

func TestGrabEmptyIndex(t *testing.T) {
	g := newGrabberWithRows(t, 0)
	rows, err := g.Grab(Range{From: 0, To: 9})
	if err != nil {
		t.Fatalf("Grab on empty index must not fail: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestGrabOutOfRange(t *testing.T) {
	g := newGrabberWithRows(t, 10)

	tests := []Range{
		{From: 5, To: 10},
		{From: 100, To: 200},
		{From: -1, To: 3},
		{From: 7, To: 2},
	}
	for _, r := range tests {
		if _, err := g.Grab(r); !errors.Is(err, index.ErrOutOfRange) {
			t.Errorf("Grab(%s) err = %v, want ErrOutOfRange", r, err)
		}
	}
}

func TestGrabManyKeepsInputOrder(t *testing.T) {
	g := newGrabberWithRows(t, 100)

	rows, err := g.GrabMany([]Range{{From: 90, To: 91}, {From: 0, To: 1}, {From: 90, To: 90}})
	if err != nil {
		t.Fatalf("GrabMany failed: %v", err)
	}
	want := []int{90, 91, 0, 1, 90}
	if len(rows) != len(want) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want))
	}
	for i, pos := range want {
		if rows[i].Position != pos {
			t.Errorf("rows[%d].Position = %d, want %d", i, rows[i].Position, pos)
		}
	}
}

func TestRangeLen(t *testing.T) {
	tests := []struct {
		r    Range
		want int
	}{
		{Range{From: 0, To: 0}, 1},
		{Range{From: 500, To: 509}, 10},
		{Range{From: 3, To: 7}, 5},
	}
	for _, tt := range tests {
		if got := tt.r.Len(); got != tt.want {
			t.Errorf("%s.Len() = %d, want %d", tt.r, got, tt.want)
		}
	}
}
