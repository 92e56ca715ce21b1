// Package session is the single point of contact for one observed stream:
// it owns the line index lifecycle, the bookmark set, the active timestamp
// formats, and the observe operations feeding the index, and it relays push
// notifications to the presentation layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/loggrab/internal/config"
	"github.com/user/loggrab/internal/export"
	"github.com/user/loggrab/internal/frame"
	"github.com/user/loggrab/internal/grab"
	"github.com/user/loggrab/internal/index"
	"github.com/user/loggrab/internal/observe"
	"github.com/user/loggrab/internal/search"
	"github.com/user/loggrab/internal/source"
	"github.com/user/loggrab/internal/storage"
	"github.com/user/loggrab/internal/store"
	"github.com/user/loggrab/pkg/logformat"
)

// Session owns the index of one session stream. All mutation of the index,
// the bookmark set, and the operation maps goes through it.
type Session struct {
	id       uuid.UUID
	log      *slog.Logger
	cfg      *config.Config
	back     *store.SessionFile
	ix       *index.LineIndex
	grabber  *grab.Grabber
	exporter *export.Exporter
	manager  *observe.Manager
	links    *source.Links
	formats  *logformat.List
	notifier *notifier
	persist  *storage.Store

	mu        sync.Mutex
	bookmarks []int
	rank      int
	rawBacked bool
}

// Option tweaks session construction.
type Option func(*Session)

// WithStore attaches a persistence store; bookmark and format mutations are
// mirrored into it best-effort.
func WithStore(st *storage.Store) Option {
	return func(s *Session) { s.persist = st }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// New creates a session indexing rows of the given framing format.
func New(cfg *config.Config, format source.Format, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	back, err := store.CreateSessionFile(cfg.Ingest.StreamsDir)
	if err != nil {
		return nil, err
	}

	var framer frame.Framer
	switch format {
	case source.FormatDLT:
		framer = frame.NewDLTFramer()
	default:
		framer = frame.NewTextFramer()
	}

	s := &Session{
		id:        uuid.New(),
		log:       slog.Default(),
		cfg:       cfg,
		back:      back,
		formats:   logformat.NewList(),
		notifier:  newNotifier(),
		rank:      1,
		rawBacked: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.id.String())
	s.ix = index.NewLineIndex(back, framer)
	s.grabber = grab.NewGrabber(s.ix)
	s.exporter = export.NewExporter(s.ix, s.RawAvailable)
	s.links = source.NewLinks(func(link source.Link) {
		s.notifier.publish(Event{Kind: SourcesChanged, Link: link})
	})
	s.manager = observe.NewManager(s, s.relayOperationEvent, s.log)
	return s, nil
}

// ID returns the session id
func (s *Session) ID() uuid.UUID { return s.id }

// Subscribe registers an observer of session notifications.
func (s *Session) Subscribe(buf int) *Subscription {
	return s.notifier.Subscribe(buf)
}

// OnBytes feeds source bytes into the index, framed against the link's own
// carry buffer so concurrent sources never splice partial rows. Malformed
// binary records stay buffered for retry and never abort the operation;
// only backing store failures do. Implements source.Sink.
func (s *Session) OnBytes(link source.Link, b []byte) error {
	added, err := s.ix.Append(link.ID, b)
	if err != nil && !errors.Is(err, frame.ErrMalformedRecord) {
		return err
	}
	if err != nil {
		s.log.Warn("malformed record buffered", "link", link.Alias, "error", err)
	}
	if added > 0 {
		s.publishRowCount()
	}
	return nil
}

// OnSourceEnded flushes the ending link's stream tail. Sibling links still
// ingesting keep their buffered partial rows untouched. Implements
// source.Sink.
func (s *Session) OnSourceEnded(link source.Link) {
	added, dropped := s.ix.Finish(link.ID)
	if added > 0 {
		s.publishRowCount()
	}
	if dropped > 0 {
		s.log.Warn("trailing bytes dropped", "link", link.Alias, "bytes", dropped)
		s.notifier.publish(Event{Kind: TrailingBytesDropped, Link: link, Dropped: dropped})
	}
}

// OnSourceError is part of source.Sink; the operation manager already turns
// adapter failures into SourceUnavailable events, so only log here.
func (s *Session) OnSourceError(link source.Link, err error) {
	s.log.Warn("source error", "link", link.Alias, "error", err)
}

func (s *Session) relayOperationEvent(ev observe.Event) {
	switch ev.Kind {
	case observe.OperationStarted:
		s.notifier.publish(Event{Kind: OperationStarted, Source: ev.Source})
	case observe.OperationFinished:
		s.notifier.publish(Event{Kind: OperationFinished, Source: ev.Source})
	case observe.SourceUnavailable:
		s.notifier.publish(Event{Kind: SourceUnavailable, Source: ev.Source, Err: ev.Err.Error()})
	}
}

func (s *Session) publishRowCount() {
	count := s.ix.RowCount()
	s.notifier.publish(Event{Kind: RowsUpdated, Count: count})

	width := digitWidth(count)
	s.mu.Lock()
	changed := width != s.rank
	if changed {
		s.rank = width
	}
	s.mu.Unlock()
	if changed {
		s.notifier.publish(Event{Kind: RankChanged, Rank: width})
	}
}

// digitWidth returns the decimal digit count of n; zero still needs one
// column.
func digitWidth(n int) int {
	if n <= 0 {
		return 1
	}
	w := 0
	for n > 0 {
		n /= 10
		w++
	}
	return w
}

// Rank returns the decimal digit width of the current row count.
func (s *Session) Rank() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rank
}

// RowCount returns the current total rows
func (s *Session) RowCount() int {
	return s.ix.RowCount()
}

// Observe starts an ingestion operation for ds.
func (s *Session) Observe(ctx context.Context, ds source.DataSource) (*observe.Operation, error) {
	src, err := source.Open(ds, s.links)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if !source.RawBacked(ds) {
		s.rawBacked = false
	}
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.persist.TouchRecentSource(ctx, ds.Description(), string(ds.Kind)); err != nil {
			s.log.Warn("failed to record recent source", "error", err)
		}
	}
	return s.manager.Start(ctx, src), nil
}

// Abort cancels an operation; unknown or settled ids are a no-op.
func (s *Session) Abort(id uuid.UUID) {
	s.manager.Abort(id)
}

// Restart aborts id and re-observes ds. The already-built index is kept.
func (s *Session) Restart(ctx context.Context, id uuid.UUID, ds source.DataSource) (*observe.Operation, error) {
	s.manager.Abort(id)
	return s.Observe(ctx, ds)
}

// Operations returns the running operations.
func (s *Session) Operations() []*observe.Operation {
	return s.manager.Running()
}

// DoneSources returns the source snapshots of finished operations.
func (s *Session) DoneSources() map[uuid.UUID]source.DataSource {
	return s.manager.DoneSources()
}

// Grab returns the rows of r decorated with the first-matching timestamp
// format and match substring, when formats are active.
func (s *Session) Grab(r grab.Range) ([]grab.Row, error) {
	rows, err := s.grabber.Grab(r)
	if err != nil {
		return nil, err
	}
	s.decorate(rows)
	return rows, nil
}

// GrabMany serves a set of ranges concatenated in input order.
func (s *Session) GrabMany(ranges []grab.Range) ([]grab.Row, error) {
	rows, err := s.grabber.GrabMany(ranges)
	if err != nil {
		return nil, err
	}
	s.decorate(rows)
	return rows, nil
}

func (s *Session) decorate(rows []grab.Row) {
	if len(s.formats.Formats()) == 0 {
		return
	}
	d := todayDefaults()
	for i := range rows {
		m, f, ok := s.formats.Match(string(rows[i].Content))
		if !ok {
			continue
		}
		rows[i].Match = m
		if ms, err := f.Extract(m, d); err == nil {
			t := time.UnixMilli(ms).UTC()
			rows[i].Timestamp = &t
		}
	}
}

// todayDefaults fills date parts missing from time-only formats.
func todayDefaults() logformat.Defaults {
	now := time.Now().UTC()
	return logformat.Defaults{Year: now.Year(), Month: now.Month(), Day: now.Day()}
}

// ToggleBookmark adds position to the bookmark set, or removes it when
// already present. The set stays sorted. Returns true when added.
func (s *Session) ToggleBookmark(position int) bool {
	s.mu.Lock()
	i := sort.SearchInts(s.bookmarks, position)
	added := i >= len(s.bookmarks) || s.bookmarks[i] != position
	if added {
		s.bookmarks = append(s.bookmarks, 0)
		copy(s.bookmarks[i+1:], s.bookmarks[i:])
		s.bookmarks[i] = position
	} else {
		s.bookmarks = append(s.bookmarks[:i], s.bookmarks[i+1:]...)
	}
	snapshot := append([]int(nil), s.bookmarks...)
	s.mu.Unlock()

	s.persistBookmarks(snapshot)
	return added
}

// SetBookmarks replaces the bookmark set; duplicates collapse.
func (s *Session) SetBookmarks(positions []int) {
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	dedup := sorted[:0]
	for i, p := range sorted {
		if i == 0 || p != sorted[i-1] {
			dedup = append(dedup, p)
		}
	}
	s.mu.Lock()
	s.bookmarks = append([]int(nil), dedup...)
	s.mu.Unlock()

	s.persistBookmarks(dedup)
}

// Bookmarks returns the bookmark positions sorted ascending.
func (s *Session) Bookmarks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.bookmarks...)
}

func (s *Session) persistBookmarks(positions []int) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveBookmarks(context.Background(), s.id.String(), positions); err != nil {
		s.log.Warn("failed to persist bookmarks", "error", err)
	}
}

// AddFormat registers a timestamp format at the end of the active list.
func (s *Session) AddFormat(spec string) error {
	if _, err := s.formats.Add(spec); err != nil {
		return err
	}
	s.persistFormats()
	return nil
}

// RemoveFormat drops a timestamp format; unknown specs are a no-op.
func (s *Session) RemoveFormat(spec string) {
	s.formats.Remove(spec)
	s.persistFormats()
}

// Formats returns the active format specs in match order.
func (s *Session) Formats() []string {
	formats := s.formats.Formats()
	specs := make([]string, len(formats))
	for i, f := range formats {
		specs[i] = f.Spec()
	}
	return specs
}

func (s *Session) persistFormats() {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveFormats(context.Background(), s.id.String(), s.Formats()); err != nil {
		s.log.Warn("failed to persist formats", "error", err)
	}
}

// DiscoverFormat samples the indexed rows for a known timestamp format,
// registers the hit, and announces it.
func (s *Session) DiscoverFormat(ctx context.Context) (string, error) {
	limit := s.cfg.Discovery.SampleRows
	count := s.ix.RowCount()
	if count < limit {
		limit = count
	}
	sample := make([]string, 0, limit)
	for pos := 0; pos < limit; pos++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		content, err := s.ix.ReadRow(pos)
		if err != nil {
			return "", err
		}
		sample = append(sample, string(content))
	}

	f, err := logformat.Discover(sample, s.cfg.Discovery.MinConfidence)
	if err != nil {
		return "", err
	}
	if _, err := s.formats.Add(f.Spec()); err == nil {
		s.persistFormats()
	}
	s.notifier.publish(Event{Kind: FormatDiscovered, Spec: f.Spec()})
	return f.Spec(), nil
}

// ExtractTimestamp matches line against the active formats and parses the
// hit into epoch milliseconds. A line no format matches returns ok=false.
func (s *Session) ExtractTimestamp(line string) (int64, bool, error) {
	return s.formats.Extract(line, todayDefaults())
}

// Search scans every indexed row against filters and returns the matching
// positions with per-filter attribution.
func (s *Session) Search(ctx context.Context, filters []search.Filter) ([]search.Match, error) {
	sc, err := search.NewScanner(s.ix, filters)
	if err != nil {
		return nil, err
	}
	return sc.Scan(ctx)
}

// ExtractValues collects capture-group values for every row the filters
// match.
func (s *Session) ExtractValues(ctx context.Context, filters []search.Filter) ([]search.MatchValue, error) {
	return search.ExtractValues(ctx, s.ix, filters)
}

// ExportText streams the given ranges to dst as normalized text.
func (s *Session) ExportText(ctx context.Context, dst io.Writer, ranges []grab.Range) (bool, error) {
	return s.exporter.Text(ctx, dst, ranges)
}

// ExportRaw streams the original bytes behind the given ranges to dst.
func (s *Session) ExportRaw(ctx context.Context, dst io.Writer, ranges []grab.Range) (bool, error) {
	return s.exporter.Raw(ctx, dst, ranges)
}

// RawAvailable reports whether every observed source is file-backed, so the
// original bytes are still retrievable.
func (s *Session) RawAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawBacked
}

// Sources returns the observed source links in registration order.
func (s *Session) Sources() []source.Link {
	return s.links.All()
}

// SourceDescription resolves a link id to its alias.
func (s *Session) SourceDescription(id uint16) (string, error) {
	link, ok := s.links.Lookup(id)
	if !ok {
		return "", fmt.Errorf("unknown source id %d", id)
	}
	return link.Alias, nil
}

// Close aborts all operations, drops subscriptions and formats, and removes
// the session backing file.
func (s *Session) Close() error {
	s.manager.AbortAll()
	s.notifier.closeAll()
	s.formats.Clear()
	return s.back.Close()
}
