package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/loggrab/internal/config"
	"github.com/user/loggrab/internal/grab"
	"github.com/user/loggrab/internal/observe"
	"github.com/user/loggrab/internal/search"
	"github.com/user/loggrab/internal/source"
	"github.com/user/loggrab/internal/storage"
)

func newTestSession(t *testing.T, format source.Format) *Session {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Ingest.StreamsDir = t.TempDir()
	sess, err := New(cfg, format)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func writeLogFile(t *testing.T, lines int) string {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&buf, "line-%d\n", i)
	}
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func observeToEnd(t *testing.T, sess *Session, ds source.DataSource) {
	t.Helper()
	op, err := sess.Observe(context.Background(), ds)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	select {
	case <-op.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("operation never finished")
	}
	if err := op.Err(); err != nil {
		t.Fatalf("operation failed: %v", err)
	}
}

func TestObserveFileEndToEnd(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	path := writeLogFile(t, 1000)

	observeToEnd(t, sess, source.DataSource{Kind: source.KindFile, Path: path})

	if sess.RowCount() != 1000 {
		t.Fatalf("RowCount = %d, want 1000", sess.RowCount())
	}
	if sess.Rank() != 4 {
		t.Errorf("Rank = %d, want 4", sess.Rank())
	}
	if !sess.RawAvailable() {
		t.Error("RawAvailable = false for a file source, want true")
	}

	rows, err := sess.Grab(grab.Range{From: 500, To: 509})
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("len(rows) = %d, want 10", len(rows))
	}
	for i, row := range rows {
		want := fmt.Sprintf("line-%d", 500+i)
		if string(row.Content) != want || row.Position != 500+i {
			t.Errorf("rows[%d] = (%d, %q), want (%d, %q)", i, row.Position, row.Content, 500+i, want)
		}
	}

	if len(sess.DoneSources()) != 1 {
		t.Errorf("DoneSources = %d entries, want 1", len(sess.DoneSources()))
	}
	if len(sess.Operations()) != 0 {
		t.Errorf("Operations = %d, want 0 running", len(sess.Operations()))
	}
}

func TestRowsUpdatedAndRankEvents(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	sub := sess.Subscribe(64)
	defer sub.Close()

	observeToEnd(t, sess, source.DataSource{Kind: source.KindFile, Path: writeLogFile(t, 10)})

	var sawRows, sawRank, sawFinished bool
	deadline := time.After(2 * time.Second)
	for !(sawRows && sawRank && sawFinished) {
		select {
		case ev := <-sub.C:
			switch ev.Kind {
			case RowsUpdated:
				if ev.Count == 10 {
					sawRows = true
				}
			case RankChanged:
				if ev.Rank == 2 {
					sawRank = true
				}
			case OperationFinished:
				sawFinished = true
			}
		case <-deadline:
			t.Fatalf("missing events: rows=%v rank=%v finished=%v", sawRows, sawRank, sawFinished)
		}
	}
}

func TestRawUnavailableForProcessSource(t *testing.T) {
	sess := newTestSession(t, source.FormatText)

	observeToEnd(t, sess, source.DataSource{
		Kind:    source.KindProcess,
		Command: "sh",
		Args:    []string{"-c", "echo from-process"},
	})

	if sess.RawAvailable() {
		t.Error("RawAvailable = true for a process source, want false")
	}
	var buf bytes.Buffer
	if _, err := sess.ExportRaw(context.Background(), &buf, []grab.Range{{From: 0, To: 0}}); err == nil {
		t.Error("ExportRaw should fail when sources are not file-backed")
	}
	// Text export of the normalized rows still works.
	complete, err := sess.ExportText(context.Background(), &buf, []grab.Range{{From: 0, To: 0}})
	if err != nil || !complete {
		t.Errorf("ExportText = (%v, %v), want (true, nil)", complete, err)
	}
	if buf.String() != "from-process\n" {
		t.Errorf("exported = %q, want %q", buf.String(), "from-process\n")
	}
}

func TestAbortFollowedFile(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	path := writeLogFile(t, 5)

	op, err := sess.Observe(context.Background(), source.DataSource{
		Kind:   source.KindFile,
		Path:   path,
		Follow: true,
	})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	// Wait for the initial content before aborting.
	select {
	case <-op.Processing():
	case <-time.After(2 * time.Second):
		t.Fatal("processing handshake never fired")
	}
	sess.Abort(op.ID())

	if len(sess.DoneSources()) != 0 {
		t.Error("aborted operation must not appear in done sources")
	}
	// Rows indexed before the abort survive.
	if sess.RowCount() == 0 {
		t.Error("RowCount = 0, want the rows indexed before abort")
	}
	// A second abort of the same id is a no-op.
	sess.Abort(op.ID())
}

func TestBookmarkToggle(t *testing.T) {
	sess := newTestSession(t, source.FormatText)

	if added := sess.ToggleBookmark(42); !added {
		t.Error("first toggle should add")
	}
	if added := sess.ToggleBookmark(7); !added {
		t.Error("first toggle should add")
	}
	got := sess.Bookmarks()
	if len(got) != 2 || got[0] != 7 || got[1] != 42 {
		t.Errorf("Bookmarks = %v, want [7 42]", got)
	}

	if added := sess.ToggleBookmark(42); added {
		t.Error("second toggle should remove")
	}
	got = sess.Bookmarks()
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("Bookmarks = %v, want [7]", got)
	}
}

func TestSetBookmarksDedups(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	sess.SetBookmarks([]int{5, 1, 5, 3, 1})
	got := sess.Bookmarks()
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("Bookmarks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Bookmarks[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBookmarksPersist(t *testing.T) {
	st, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer st.Close()

	cfg := config.DefaultConfig()
	cfg.Ingest.StreamsDir = t.TempDir()
	sess, err := New(cfg, source.FormatText, WithStore(st))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer sess.Close()

	sess.ToggleBookmark(3)
	sess.ToggleBookmark(1)

	got, err := st.LoadBookmarks(context.Background(), sess.ID().String())
	if err != nil {
		t.Fatalf("LoadBookmarks failed: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("persisted bookmarks = %v, want [1 3]", got)
	}
}

func TestGrabDecoratesWithTimestamps(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	path := filepath.Join(t.TempDir(), "ts.log")
	content := "2023-01-01 10:00:00 boot\nno timestamp here\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	observeToEnd(t, sess, source.DataSource{Kind: source.KindFile, Path: path})

	if err := sess.AddFormat("%Y-%m-%d %H:%M:%S"); err != nil {
		t.Fatalf("AddFormat failed: %v", err)
	}

	rows, err := sess.Grab(grab.Range{From: 0, To: 1})
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if rows[0].Match != "2023-01-01 10:00:00" {
		t.Errorf("rows[0].Match = %q, want the timestamp substring", rows[0].Match)
	}
	if rows[0].Timestamp == nil {
		t.Fatal("rows[0].Timestamp = nil, want parsed time")
	}
	want := time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)
	if !rows[0].Timestamp.Equal(want) {
		t.Errorf("rows[0].Timestamp = %v, want %v", rows[0].Timestamp, want)
	}
	if rows[1].Timestamp != nil || rows[1].Match != "" {
		t.Errorf("rows[1] decorated = (%v, %q), want untouched", rows[1].Timestamp, rows[1].Match)
	}
}

func TestDiscoverFormat(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	path := filepath.Join(t.TempDir(), "ts.log")
	var buf bytes.Buffer
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&buf, "2023-01-01 10:00:%02d event %d\n", i, i)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	observeToEnd(t, sess, source.DataSource{Kind: source.KindFile, Path: path})

	sub := sess.Subscribe(16)
	defer sub.Close()

	spec, err := sess.DiscoverFormat(context.Background())
	if err != nil {
		t.Fatalf("DiscoverFormat failed: %v", err)
	}
	if spec != "%Y-%m-%d %H:%M:%S" {
		t.Errorf("spec = %q, want %q", spec, "%Y-%m-%d %H:%M:%S")
	}
	if got := sess.Formats(); len(got) != 1 || got[0] != spec {
		t.Errorf("Formats = %v, want [%q]", got, spec)
	}

	select {
	case ev := <-sub.C:
		if ev.Kind != FormatDiscovered || ev.Spec != spec {
			t.Errorf("event = (%v, %q), want FormatDiscovered with the spec", ev.Kind, ev.Spec)
		}
	case <-time.After(time.Second):
		t.Error("FormatDiscovered event never arrived")
	}

	ms, ok, err := sess.ExtractTimestamp("2023-01-01 10:00:05 event 5")
	if err != nil || !ok {
		t.Fatalf("ExtractTimestamp = (%v, %v), want a hit", ok, err)
	}
	want := time.Date(2023, 1, 1, 10, 0, 5, 0, time.UTC).UnixMilli()
	if ms != want {
		t.Errorf("ms = %d, want %d", ms, want)
	}
}

func TestSearchOverIndexedRows(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	path := filepath.Join(t.TempDir(), "lvl.log")
	content := "[Info] a\n[Warn] b\n[Info] c\n[Err] d\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	observeToEnd(t, sess, source.DataSource{Kind: source.KindFile, Path: path})

	matches, err := sess.Search(context.Background(), []search.Filter{{Value: "[Info]", IsRegex: false}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 || matches[0].Position != 0 || matches[1].Position != 2 {
		t.Errorf("matches = %v, want rows 0 and 2", matches)
	}
}

func TestTrailingBytesDroppedForBinaryStream(t *testing.T) {
	sess := newTestSession(t, source.FormatDLT)
	path := filepath.Join(t.TempDir(), "partial.dlt")
	// A bare storage-pattern prefix can never complete a record.
	if err := os.WriteFile(path, []byte("DLT"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	sub := sess.Subscribe(16)
	defer sub.Close()

	observeToEnd(t, sess, source.DataSource{
		Kind:   source.KindFile,
		Format: source.FormatDLT,
		Path:   path,
	})

	if sess.RowCount() != 0 {
		t.Errorf("RowCount = %d, want 0", sess.RowCount())
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Kind == TrailingBytesDropped {
				if ev.Dropped != 3 {
					t.Errorf("Dropped = %d, want 3", ev.Dropped)
				}
				return
			}
		case <-deadline:
			t.Fatal("TrailingBytesDropped event never arrived")
		}
	}
}

func TestConcatSourcesShareOneIndex(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	if err := os.WriteFile(a, []byte("from-a\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(b, []byte("from-b\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	observeToEnd(t, sess, source.DataSource{
		Kind: source.KindFile,
		Childs: []source.DataSource{
			{Kind: source.KindFile, Path: a},
			{Kind: source.KindFile, Path: b},
		},
	})

	if sess.RowCount() != 2 {
		t.Fatalf("RowCount = %d, want 2", sess.RowCount())
	}
	links := sess.Sources()
	if len(links) != 2 {
		t.Fatalf("Sources = %v, want one link per child", links)
	}
	alias, err := sess.SourceDescription(links[1].ID)
	if err != nil || alias != "b.log" {
		t.Errorf("SourceDescription = (%q, %v), want b.log", alias, err)
	}
	if !sess.RawAvailable() {
		t.Error("RawAvailable = false for all-file childs, want true")
	}
}

func TestConcatFlushesChildTailBeforeNextChild(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.log")
	b := filepath.Join(dir, "b.log")
	// The first child ends without a trailing newline.
	if err := os.WriteFile(a, []byte("alpha-tail"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(b, []byte("from-b\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	observeToEnd(t, sess, source.DataSource{
		Kind: source.KindFile,
		Childs: []source.DataSource{
			{Kind: source.KindFile, Path: a},
			{Kind: source.KindFile, Path: b},
		},
	})

	rows, err := sess.Grab(grab.Range{From: 0, To: 1})
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if string(rows[0].Content) != "alpha-tail" || string(rows[1].Content) != "from-b" {
		t.Errorf("rows = [%q %q], want [alpha-tail from-b]", rows[0].Content, rows[1].Content)
	}
}

func TestSiblingEndDoesNotFlushOtherLinks(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	linkA := source.Link{ID: 1, Alias: "a"}
	linkB := source.Link{ID: 2, Alias: "b"}

	if err := sess.OnBytes(linkA, []byte("hello-")); err != nil {
		t.Fatalf("OnBytes failed: %v", err)
	}
	// Another source ending must not flush linkA's buffered partial row.
	sess.OnSourceEnded(linkB)
	if err := sess.OnBytes(linkA, []byte("world\n")); err != nil {
		t.Fatalf("OnBytes failed: %v", err)
	}

	if sess.RowCount() != 1 {
		t.Fatalf("RowCount = %d, want 1", sess.RowCount())
	}
	rows, err := sess.Grab(grab.Range{From: 0, To: 0})
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	if string(rows[0].Content) != "hello-world" {
		t.Errorf("row 0 = %q, want %q", rows[0].Content, "hello-world")
	}
}

func TestConcurrentSourcesKeepRowsIntact(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	dir := t.TempDir()
	const perFile = 200

	write := func(name, prefix string) string {
		var buf bytes.Buffer
		for i := 0; i < perFile; i++ {
			fmt.Fprintf(&buf, "%s-%d\n", prefix, i)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		return path
	}
	alpha := write("alpha.log", "alpha")
	beta := write("beta.log", "beta")

	opA, err := sess.Observe(context.Background(), source.DataSource{Kind: source.KindFile, Path: alpha})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	opB, err := sess.Observe(context.Background(), source.DataSource{Kind: source.KindFile, Path: beta})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	for _, op := range []*observe.Operation{opA, opB} {
		select {
		case <-op.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("operation never finished")
		}
	}

	if sess.RowCount() != 2*perFile {
		t.Fatalf("RowCount = %d, want %d", sess.RowCount(), 2*perFile)
	}
	rows, err := sess.Grab(grab.Range{From: 0, To: 2*perFile - 1})
	if err != nil {
		t.Fatalf("Grab failed: %v", err)
	}
	counts := map[string]int{}
	for _, row := range rows {
		prefix, _, found := bytes.Cut(row.Content, []byte("-"))
		if !found {
			t.Fatalf("row %d = %q, not a whole line", row.Position, row.Content)
		}
		counts[string(prefix)]++
	}
	if counts["alpha"] != perFile || counts["beta"] != perFile {
		t.Errorf("row counts = %v, want %d per source", counts, perFile)
	}
}

func TestRestartKeepsOneLinkPerOrigin(t *testing.T) {
	sess := newTestSession(t, source.FormatText)
	path := writeLogFile(t, 5)
	ds := source.DataSource{Kind: source.KindFile, Path: path}

	op, err := sess.Observe(context.Background(), ds)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	select {
	case <-op.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("operation never finished")
	}

	restarted, err := sess.Restart(context.Background(), op.ID(), ds)
	if err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	select {
	case <-restarted.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("restarted operation never finished")
	}

	if got := sess.Sources(); len(got) != 1 {
		t.Errorf("Sources = %v, want one link across restarts", got)
	}
	// The replay indexed the rows again after the ones already present.
	if sess.RowCount() != 10 {
		t.Errorf("RowCount = %d, want 10", sess.RowCount())
	}
}

func TestSessionCloseRemovesBacking(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.StreamsDir = t.TempDir()
	sess, err := New(cfg, source.FormatText)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	observeToEnd(t, sess, source.DataSource{Kind: source.KindFile, Path: writeLogFile(t, 3)})
	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(cfg.Ingest.StreamsDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("streams dir still has %d entries after Close", len(entries))
	}
}

func TestDigitWidth(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 1}, {1, 1}, {9, 1}, {10, 2}, {999, 3}, {1000, 4},
	}
	for _, tt := range tests {
		if got := digitWidth(tt.n); got != tt.want {
			t.Errorf("digitWidth(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
