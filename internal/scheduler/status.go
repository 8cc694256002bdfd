package scheduler

import "github.com/barrulus/Hesiod/internal/graph"

// NodeStatus is the per-node progress state reported through a run's event
// stream.
type NodeStatus int32

const (
	// StatusQueued: waiting for producers to resolve.
	StatusQueued NodeStatus = iota
	// StatusRunning: picked up by a worker.
	StatusRunning
	// StatusDone: handler ran and its result was cached.
	StatusDone
	// StatusCached: resolved from the cache with zero handler invocations.
	StatusCached
	// StatusFailed: the handler returned an error.
	StatusFailed
	// StatusSkipped: an upstream producer failed, so inputs are unavailable.
	StatusSkipped
	// StatusTimedOut: the handler exceeded its execution budget. Treated
	// like StatusFailed for downstream propagation.
	StatusTimedOut
	// StatusCancelled: the run was cancelled before the node executed.
	StatusCancelled
)

func (s NodeStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusCached:
		return "cached"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusTimedOut:
		return "timed out"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the status is final for the node.
func (s NodeStatus) Terminal() bool {
	return s != StatusQueued && s != StatusRunning
}

// Resolved reports whether the node has a usable payload set.
func (s NodeStatus) Resolved() bool {
	return s == StatusDone || s == StatusCached
}

// RunState is the lifecycle state of a whole run.
type RunState int32

const (
	// StatePlanning: computing scope and execution order.
	StatePlanning RunState = iota
	// StateRunning: workers are executing nodes.
	StateRunning
	// StateCompleted: every scoped node resolved.
	StateCompleted
	// StateFailed: at least one node failed or the run aborted fatally.
	StateFailed
	// StateCancelled: cancellation was observed before completion.
	StateCancelled
)

func (s RunState) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Scope selects which nodes a run covers.
type Scope int

const (
	// ScopeFull schedules every node in the snapshot.
	ScopeFull Scope = iota
	// ScopeDirty schedules every dirty node and everything reachable
	// forward from one, plus the upstream closure needed to resolve their
	// input fingerprints (upstream nodes almost always resolve as cache
	// hits).
	ScopeDirty
)

// Event is one entry in a run's progress stream.
type Event struct {
	Node    graph.NodeID
	Status  NodeStatus
	Percent float64
}
