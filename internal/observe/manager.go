// Package observe owns the lifecycle of ingestion jobs: start, abort,
// restart, completion, and the processing handshake that tells callers
// ingestion has actually begun.
package observe

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/user/loggrab/internal/source"
)

// EventKind classifies manager notifications.
type EventKind int

const (
	// OperationStarted fires when ingestion accepts its first bytes.
	OperationStarted EventKind = iota
	// OperationFinished fires when a source reaches end of stream.
	OperationFinished
	// SourceUnavailable fires when the adapter fails; only the affected
	// operation aborts.
	SourceUnavailable
)

// Event describes one operation lifecycle change.
type Event struct {
	Kind   EventKind
	ID     uuid.UUID
	Source source.DataSource
	Err    error
}

// Manager supervises the observe operations of one session. Completed
// operations move from the running map to the done map with a snapshot of
// their data source; aborted operations leave no done entry.
type Manager struct {
	sink   source.Sink
	notify func(Event)
	log    *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*Operation
	done    map[uuid.UUID]source.DataSource
	wg      sync.WaitGroup
}

// NewManager creates a manager delivering bytes to sink. notify may be nil;
// when set it is called from the ingestion goroutine and must not block.
func NewManager(sink source.Sink, notify func(Event), log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sink:    sink,
		notify:  notify,
		log:     log.With("component", "observe"),
		running: make(map[uuid.UUID]*Operation),
		done:    make(map[uuid.UUID]source.DataSource),
	}
}

// opSink wraps the session sink to flip the processing handshake on the
// first accepted bytes.
type opSink struct {
	source.Sink
	m  *Manager
	op *Operation
}

func (s *opSink) OnBytes(link source.Link, b []byte) error {
	if s.op.markProcessing() {
		s.m.emit(Event{Kind: OperationStarted, ID: s.op.id, Source: s.op.ds})
	} else {
		s.op.markRunning()
	}
	return s.Sink.OnBytes(link, b)
}

// Start creates an operation for src and begins ingestion. The returned
// operation is already in the running map when Start returns.
func (m *Manager) Start(ctx context.Context, src source.ByteSource) *Operation {
	opCtx, cancel := context.WithCancel(ctx)
	op := newOperation(src.Descriptor(), cancel)

	m.mu.Lock()
	m.running[op.id] = op
	m.mu.Unlock()

	m.log.Debug("operation starting", "id", op.id, "source", op.ds.Description())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := src.Run(opCtx, &opSink{Sink: m.sink, m: m, op: op})
		switch {
		case err == nil:
			m.finish(op, src)
		case errors.Is(err, context.Canceled):
			m.drop(op, Aborted, nil)
		default:
			m.log.Warn("source unavailable", "id", op.id, "error", err)
			m.drop(op, Aborted, err)
			m.sink.OnSourceError(src.Link(), err)
			m.emit(Event{Kind: SourceUnavailable, ID: op.id, Source: op.ds, Err: err})
		}
	}()
	return op
}

// finish moves a completed operation into the done map with its data source
// snapshot.
func (m *Manager) finish(op *Operation, src source.ByteSource) {
	m.mu.Lock()
	delete(m.running, op.id)
	m.done[op.id] = op.ds
	m.mu.Unlock()

	op.finish(Finished, nil)
	m.log.Debug("operation finished", "id", op.id)
	m.sink.OnSourceEnded(src.Link())
	m.emit(Event{Kind: OperationFinished, ID: op.id, Source: op.ds})
}

// drop removes an operation from running without a done entry.
func (m *Manager) drop(op *Operation, state State, err error) {
	m.mu.Lock()
	delete(m.running, op.id)
	m.mu.Unlock()
	op.finish(state, err)
}

// Abort requests cooperative cancellation of an operation and waits for its
// ingestion goroutine to settle. Aborting an unknown, finished, or already
// aborted id is a no-op.
func (m *Manager) Abort(id uuid.UUID) {
	m.mu.Lock()
	op, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.log.Debug("operation aborting", "id", id)
	op.cancel()
	<-op.done
}

// Restart aborts id and starts a fresh operation on src. Rows already
// indexed from the prior run stay in the index.
func (m *Manager) Restart(ctx context.Context, id uuid.UUID, src source.ByteSource) *Operation {
	m.Abort(id)
	return m.Start(ctx, src)
}

// AbortAll cancels every running operation and waits for all ingestion
// goroutines to exit.
func (m *Manager) AbortAll() {
	m.mu.Lock()
	ops := make([]*Operation, 0, len(m.running))
	for _, op := range m.running {
		ops = append(ops, op)
	}
	m.mu.Unlock()

	for _, op := range ops {
		op.cancel()
	}
	m.wg.Wait()
}

// Running returns the active operations.
func (m *Manager) Running() []*Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]*Operation, 0, len(m.running))
	for _, op := range m.running {
		ops = append(ops, op)
	}
	return ops
}

// DoneSources returns the data source snapshots of completed operations.
func (m *Manager) DoneSources() map[uuid.UUID]source.DataSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]source.DataSource, len(m.done))
	for id, ds := range m.done {
		out[id] = ds
	}
	return out
}

func (m *Manager) emit(ev Event) {
	if m.notify != nil {
		m.notify(ev)
	}
}
