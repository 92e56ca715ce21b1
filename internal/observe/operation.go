package observe

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/user/loggrab/internal/source"
)

// State is the lifecycle position of one observe operation.
type State int

const (
	Starting State = iota
	Processing
	Running
	Finished
	Aborted
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Processing:
		return "processing"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Operation is one active ingestion job attaching a data source to a
// session's index.
type Operation struct {
	id     uuid.UUID
	ds     source.DataSource
	cancel context.CancelFunc

	mu    sync.Mutex
	state State

	processingOnce sync.Once
	processing     chan struct{}
	done           chan struct{}
	err            error
}

func newOperation(ds source.DataSource, cancel context.CancelFunc) *Operation {
	return &Operation{
		id:         uuid.New(),
		ds:         ds,
		cancel:     cancel,
		state:      Starting,
		processing: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ID returns the operation id, unique per session
func (o *Operation) ID() uuid.UUID { return o.id }

// Source returns the owning data source
func (o *Operation) Source() source.DataSource { return o.ds }

// State returns the current lifecycle state
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Processing is closed once the first bytes have been accepted. Callers
// awaiting the "has it actually begun" handshake block on it.
func (o *Operation) Processing() <-chan struct{} { return o.processing }

// Done is closed when the operation reaches a terminal state.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Err returns the adapter failure that aborted the operation, if any.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// markProcessing flips Starting into Processing the first time bytes are
// accepted and fires the handshake channel.
func (o *Operation) markProcessing() (first bool) {
	o.processingOnce.Do(func() {
		o.mu.Lock()
		if o.state == Starting {
			o.state = Processing
		}
		o.mu.Unlock()
		close(o.processing)
		first = true
	})
	return first
}

// markRunning promotes Processing to Running once ingestion proves to be a
// steady stream rather than a single burst.
func (o *Operation) markRunning() {
	o.mu.Lock()
	if o.state == Processing {
		o.state = Running
	}
	o.mu.Unlock()
}

func (o *Operation) finish(state State, err error) {
	o.mu.Lock()
	if o.state == Finished || o.state == Aborted {
		o.mu.Unlock()
		return
	}
	o.state = state
	o.err = err
	o.mu.Unlock()
	close(o.done)
}
