package session

import (
	"sync"

	"github.com/user/loggrab/internal/source"
)

// EventKind classifies session notifications.
type EventKind int

const (
	// RowsUpdated carries the new total row count.
	RowsUpdated EventKind = iota
	// RankChanged carries the new decimal digit width of the row count.
	RankChanged
	// OperationStarted fires once an operation has accepted bytes.
	OperationStarted
	// OperationFinished fires when a source reaches end of stream.
	OperationFinished
	// SourceUnavailable reports an adapter failure on one operation.
	SourceUnavailable
	// SourcesChanged fires when a new contributing link is registered.
	SourcesChanged
	// FormatDiscovered carries the spec of an auto-discovered format.
	FormatDiscovered
	// TrailingBytesDropped reports unframeable bytes left at stream end.
	TrailingBytesDropped
)

// Event is one push notification to the presentation layer.
type Event struct {
	Kind    EventKind
	Count   int
	Rank    int
	Source  source.DataSource
	Link    source.Link
	Spec    string
	Dropped int
	Err     string
}

// Subscription is a scoped handle on the session's event stream. Close it
// to unsubscribe; session teardown closes all remaining handles.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	once sync.Once
	n    *notifier
}

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.remove(s)
		close(s.ch)
	})
}

// notifier fans session events out to subscribers. Publishing never blocks:
// a subscriber that cannot keep up loses events rather than stalling the
// ingestion path.
type notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers an observer with the given channel capacity.
func (n *notifier) Subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	sub := &Subscription{C: ch, ch: ch, n: n}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

func (n *notifier) remove(sub *Subscription) {
	n.mu.Lock()
	delete(n.subs, sub)
	n.mu.Unlock()
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// closeAll drops every remaining subscription on session teardown.
func (n *notifier) closeAll() {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.subs = make(map[*Subscription]struct{})
	n.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}
