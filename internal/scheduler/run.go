package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/barrulus/Hesiod/internal/fingerprint"
	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/payload"
)

// HandlerExecutionError records a handler failure on one node. The run
// continues for independent branches; only downstream consumers are skipped.
type HandlerExecutionError struct {
	Node graph.NodeID
	Err  error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("node %s: handler failed: %v", e.Node, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

// nodeRun is the scheduler's mutable per-node record for one run.
type nodeRun struct {
	id     graph.NodeID
	status atomic.Int32
	// deps counts unresolved producers; the node is ready at zero.
	deps atomic.Int32

	// The fields below are written by the worker that owns the node before
	// its terminal status is stored, and read only after the status is
	// terminal (or after the run's done channel closes).
	fp     fingerprint.Fingerprint
	result payload.Set
	err    error
}

func (n *nodeRun) getStatus() NodeStatus {
	return NodeStatus(n.status.Load())
}

// Run is an ephemeral record of one scheduling attempt. It is the handle the
// runtime API hands to callers: progress, cancellation, and result lookup
// all go through it.
type Run struct {
	id    uuid.UUID
	scope Scope
	graph *graph.Graph
	snap  *graph.Snapshot

	state     atomic.Int32
	fatal     atomic.Pointer[fatalBox]
	completed atomic.Int64

	nodes      map[graph.NodeID]*nodeRun
	order      []graph.NodeID
	dependents map[graph.NodeID][]graph.NodeID

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
}

type fatalBox struct{ err error }

// ID returns the run's unique handle identifier.
func (r *Run) ID() uuid.UUID { return r.id }

// State returns the run's current lifecycle state.
func (r *Run) State() RunState { return RunState(r.state.Load()) }

// Done returns a channel closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the run-fatal error, if any (cache corruption).
func (r *Run) Err() error {
	if box := r.fatal.Load(); box != nil {
		return box.err
	}
	return nil
}

// Progress returns the run's event stream. The stream is finite and ends at
// the terminal run status; it is not restartable. Submit a new run to
// replay.
func (r *Run) Progress() <-chan Event {
	return r.events
}

// Cancel requests cooperative cancellation. Nodes already completed keep
// their cache entries; no further nodes are scheduled once cancellation is
// observed.
func (r *Run) Cancel() {
	r.cancel()
}

// NodeStatus returns the current status of one scoped node.
func (r *Run) NodeStatus(id graph.NodeID) (NodeStatus, bool) {
	nr, ok := r.nodes[id]
	if !ok {
		return 0, false
	}
	return nr.getStatus(), true
}

// Nodes returns the identifiers of every scoped node in execution order.
func (r *Run) Nodes() []graph.NodeID {
	return r.order
}

// Result blocks until the run finishes and returns the payload set the node
// resolved to, or the error that prevented it.
func (r *Run) Result(ctx context.Context, id graph.NodeID) (payload.Set, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	nr, ok := r.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s was not in the run's scope", id)
	}
	switch status := nr.getStatus(); status {
	case StatusDone, StatusCached:
		return nr.result, nil
	case StatusFailed, StatusTimedOut, StatusSkipped:
		if nr.err != nil {
			return nil, nr.err
		}
		return nil, fmt.Errorf("node %s: %s", id, status)
	default:
		return nil, fmt.Errorf("node %s: %s", id, status)
	}
}

// setFatal records the first run-fatal error.
func (r *Run) setFatal(err error) {
	r.fatal.CompareAndSwap(nil, &fatalBox{err: err})
}

// emit publishes a progress event. The channel is sized for the maximum
// number of events a run can produce, so the send never blocks.
func (r *Run) emit(id graph.NodeID, status NodeStatus) {
	total := len(r.nodes)
	percent := 100.0
	if total > 0 {
		percent = 100 * float64(r.completed.Load()) / float64(total)
	}
	r.events <- Event{Node: id, Status: status, Percent: percent}
}
