// Package scheduler orchestrates runs over a graph snapshot: it plans the
// execution order for the requested scope, resolves fingerprints in
// dependency order, consults the execution cache, invokes handlers for
// misses through a bounded worker pool, propagates failures and
// cancellation, and reports per-node progress.
//
// Graph edits are serialized with runs: Submit freezes the graph and
// executes against an immutable snapshot; mutations while a run is active
// fail with graph.ErrLocked.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/barrulus/Hesiod/internal/cache"
	"github.com/barrulus/Hesiod/internal/ctxlog"
	"github.com/barrulus/Hesiod/internal/fingerprint"
	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

// DefaultWorkers bounds the worker pool when the caller does not.
const DefaultWorkers = 4

// Options configures an Engine.
type Options struct {
	// Workers is the size of the worker pool; zero means DefaultWorkers.
	Workers int
	// NodeTimeout, when positive, is the per-node execution budget. A node
	// exceeding it is marked TimedOut and treated like Failed downstream.
	NodeTimeout time.Duration
}

// Engine is the runtime-facing entry point: it turns a graph and a scope
// into a Run handle.
type Engine struct {
	reg   *registry.Registry
	cache *cache.Cache
	opts  Options
}

// New creates an engine. The registry must be sealed before the first
// Submit.
func New(reg *registry.Registry, c *cache.Cache, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Engine{reg: reg, cache: c, opts: opts}
}

// Submit plans and starts a run over the graph. The graph is frozen until
// the run reaches a terminal state; a second Submit (or any mutation) in the
// meantime fails with graph.ErrLocked. The returned Run is already planned;
// execution proceeds asynchronously.
func (e *Engine) Submit(ctx context.Context, g *graph.Graph, scope Scope) (*Run, error) {
	if !e.reg.Sealed() {
		return nil, errors.New("registry must be sealed before a run")
	}
	if err := g.Freeze(); err != nil {
		return nil, err
	}

	snap, err := g.Snapshot()
	if err != nil {
		g.Unfreeze()
		return nil, fmt.Errorf("planning: %w", err)
	}

	planned := planScope(snap, scope)
	order := make([]graph.NodeID, 0, len(planned))
	for _, id := range snap.Order() {
		if _, ok := planned[id]; ok {
			order = append(order, id)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		id:     uuid.New(),
		scope:  scope,
		graph:  g,
		snap:   snap,
		nodes:  make(map[graph.NodeID]*nodeRun, len(order)),
		order:  order,
		events: make(chan Event, 2*len(order)+2),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	for _, id := range order {
		nr := &nodeRun{id: id}
		producers := make(map[graph.NodeID]struct{})
		for _, src := range snap.Inputs(id) {
			producers[src.Node] = struct{}{}
		}
		nr.deps.Store(int32(len(producers)))
		run.nodes[id] = nr
	}

	// Restrict the dependent lists to planned nodes; plans are
	// ancestor-closed, so every producer of a planned node is planned.
	run.dependents = make(map[graph.NodeID][]graph.NodeID, len(order))
	for id, deps := range snap.Dependents() {
		if _, ok := run.nodes[id]; !ok {
			continue
		}
		kept := deps[:0:0]
		for _, d := range deps {
			if _, ok := run.nodes[d]; ok {
				kept = append(kept, d)
			}
		}
		run.dependents[id] = kept
	}

	ctxlog.FromContext(ctx).Info("Run submitted.",
		"run_id", run.id, "scope", scopeName(scope), "nodes", len(order), "workers", e.opts.Workers)

	go e.execute(runCtx, run)
	return run, nil
}

// planScope computes the set of nodes a run covers. A dirty-scoped plan is
// the forward closure of the dirty set (a downstream node's fingerprint
// depends on upstream fingerprints, so consumers recompute even when their
// own parameters did not change) widened to its ancestors so every input
// fingerprint can be resolved. Clean ancestors resolve as cache hits.
func planScope(snap *graph.Snapshot, scope Scope) map[graph.NodeID]struct{} {
	all := make(map[graph.NodeID]struct{}, snap.Len())
	for _, id := range snap.Order() {
		all[id] = struct{}{}
	}
	if scope == ScopeFull {
		return all
	}

	dirty := make(map[graph.NodeID]struct{})
	for _, id := range snap.DirtySet() {
		dirty[id] = struct{}{}
	}
	return snap.Ancestors(snap.Descendants(dirty))
}

// execute drives a run to its terminal state.
func (e *Engine) execute(ctx context.Context, run *Run) {
	// The run's derived context must not outlive the run.
	defer run.cancel()

	logger := ctxlog.FromContext(ctx).With("run_id", run.id)
	run.state.Store(int32(StateRunning))

	var wg sync.WaitGroup
	wg.Add(len(run.order))

	ready := make(chan *nodeRun, len(run.order)+1)
	workers := e.opts.Workers
	if workers > len(run.order) {
		workers = len(run.order)
	}
	for i := 0; i < workers; i++ {
		go e.worker(ctx, run, ready, &wg, i)
	}

	// Sweep queued nodes into Cancelled once cancellation is observed, so
	// the WaitGroup always drains.
	go func() {
		select {
		case <-ctx.Done():
			for _, nr := range run.nodes {
				if nr.status.CompareAndSwap(int32(StatusQueued), int32(StatusCancelled)) {
					run.completed.Add(1)
					run.emit(nr.id, StatusCancelled)
					wg.Done()
				}
			}
		case <-run.done:
		}
	}()

	for _, id := range run.order {
		nr := run.nodes[id]
		if nr.deps.Load() == 0 {
			ready <- nr
		}
	}

	wg.Wait()

	state := StateCompleted
	var resolved []graph.NodeID
	failed := 0
	for _, nr := range run.nodes {
		switch nr.getStatus() {
		case StatusDone, StatusCached:
			resolved = append(resolved, nr.id)
		case StatusFailed, StatusTimedOut:
			failed++
		}
	}
	switch {
	case run.Err() != nil:
		state = StateFailed
	case ctx.Err() != nil:
		state = StateCancelled
	case failed > 0:
		state = StateFailed
	}

	// Partial results are never discarded: everything that resolved keeps
	// its cache entry and its clean flag, whatever the overall status.
	run.graph.MarkClean(resolved...)
	run.graph.Unfreeze()

	run.state.Store(int32(state))
	close(run.events)
	close(run.done)
	logger.Info("Run finished.", "state", state.String(), "resolved", len(resolved), "failed", failed)
}

// worker is the processing loop for one pool member. The ready channel is
// sized so sends never block; workers drain it until the run closes.
func (e *Engine) worker(ctx context.Context, run *Run, ready chan *nodeRun, wg *sync.WaitGroup, workerID int) {
	logger := ctxlog.FromContext(ctx).With("run_id", run.id, "worker", workerID)

	for {
		var nr *nodeRun
		select {
		case nr = <-ready:
		case <-run.done:
			return
		}

		if !nr.status.CompareAndSwap(int32(StatusQueued), int32(StatusRunning)) {
			// Skipped or cancelled while queued; its terminal transition
			// already happened.
			continue
		}
		run.emit(nr.id, StatusRunning)

		status, err := e.resolveNode(ctx, run, nr)
		if err != nil {
			logger.Error("Node resolution failed.", "node", nr.id, "status", status.String(), "error", err)
		} else {
			logger.Debug("Node resolved.", "node", nr.id, "status", status.String())
		}

		nr.err = err
		run.completed.Add(1)
		nr.status.Store(int32(status))
		run.emit(nr.id, status)
		wg.Done()

		if status.Resolved() {
			for _, depID := range run.dependents[nr.id] {
				dep := run.nodes[depID]
				if dep.deps.Add(-1) == 0 && dep.getStatus() == StatusQueued {
					ready <- dep
				}
			}
			continue
		}

		// Failure path: downstream consumers have no inputs.
		var corruption *cache.CorruptionError
		if errors.As(err, &corruption) {
			// A determinism violation aborts the whole run.
			run.setFatal(err)
			run.cancel()
		}
		e.skipDependents(run, nr, wg)
	}
}

// resolveNode computes the node's fingerprint and resolves its payloads from
// the cache, invoking the handler on a miss.
func (e *Engine) resolveNode(ctx context.Context, run *Run, nr *nodeRun) (NodeStatus, error) {
	node, ok := run.snap.Node(nr.id)
	if !ok {
		return StatusFailed, fmt.Errorf("node %s missing from snapshot", nr.id)
	}
	def, err := e.reg.Lookup(node.TypeID)
	if err != nil {
		return StatusFailed, err
	}

	inputs := run.snap.Inputs(nr.id)
	bindings := make([]fingerprint.Binding, 0, len(inputs))
	for port, src := range inputs {
		producer := run.nodes[src.Node]
		if !producer.getStatus().Resolved() {
			return StatusFailed, fmt.Errorf("node %s scheduled before producer %s resolved", nr.id, src.Node)
		}
		bindings = append(bindings, fingerprint.Binding{
			InputPort:  port,
			Producer:   producer.fp,
			OutputPort: src.Port,
		})
	}

	fp, err := fingerprint.Node(node.TypeID, node.Params, bindings)
	if err != nil {
		return StatusFailed, &HandlerExecutionError{Node: nr.id, Err: err}
	}
	nr.fp = fp

	set, invoked, err := e.cache.Resolve(ctx, fp, func(cctx context.Context) (payload.Set, error) {
		return e.invoke(cctx, run, nr.id, node, def)
	})
	if err != nil {
		var corruption *cache.CorruptionError
		if errors.As(err, &corruption) {
			return StatusFailed, err
		}
		if e.opts.NodeTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			return StatusTimedOut, &HandlerExecutionError{Node: nr.id, Err: err}
		}
		if ctx.Err() != nil {
			return StatusCancelled, ctx.Err()
		}
		var hee *HandlerExecutionError
		if errors.As(err, &hee) {
			return StatusFailed, err
		}
		return StatusFailed, &HandlerExecutionError{Node: nr.id, Err: err}
	}

	nr.result = set
	if invoked {
		return StatusDone, nil
	}
	return StatusCached, nil
}

// invoke gathers resolved input payloads and calls the handler under the
// node's execution budget.
func (e *Engine) invoke(ctx context.Context, run *Run, id graph.NodeID, node graph.SnapshotNode, def *registry.Definition) (payload.Set, error) {
	inv := &registry.Invocation{
		Inputs: make(map[string]payload.Payload),
		Params: node.Params,
	}
	for port, src := range run.snap.Inputs(id) {
		producerSet := run.nodes[src.Node].result
		p, ok := producerSet[src.Port]
		if !ok {
			return nil, fmt.Errorf("producer %s provides no output %q", src.Node, src.Port)
		}
		inv.Inputs[port] = p
	}

	if e.opts.NodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.NodeTimeout)
		defer cancel()
	}

	out, err := def.Handler(ctx, inv)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	// Handlers must honor the declared output contract exactly.
	for _, spec := range def.Metadata.Outputs {
		p, ok := out[spec.Name]
		if !ok {
			return nil, fmt.Errorf("handler for %s produced no output %q", node.TypeID, spec.Name)
		}
		if p.PayloadType() != spec.Type {
			return nil, fmt.Errorf("handler for %s produced output %q of type %s, declared %s",
				node.TypeID, spec.Name, p.PayloadType(), spec.Type)
		}
	}
	if len(out) != len(def.Metadata.Outputs) {
		return nil, fmt.Errorf("handler for %s produced %d outputs, declared %d", node.TypeID, len(out), len(def.Metadata.Outputs))
	}
	return out, nil
}

// skipDependents marks every transitive consumer of a failed node Skipped.
// Nodes a worker already started are untouchable here; that cannot happen
// for a true dependent, whose producers resolved by definition.
func (e *Engine) skipDependents(run *Run, failed *nodeRun, wg *sync.WaitGroup) {
	inputUnavailable := fmt.Errorf("input unavailable: producer %s did not resolve", failed.id)

	stack := []graph.NodeID{failed.id}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, depID := range run.dependents[id] {
			dep := run.nodes[depID]
			if dep.status.CompareAndSwap(int32(StatusQueued), int32(StatusSkipped)) {
				dep.err = inputUnavailable
				run.completed.Add(1)
				run.emit(depID, StatusSkipped)
				wg.Done()
				stack = append(stack, depID)
			}
		}
	}
}

func scopeName(s Scope) string {
	if s == ScopeDirty {
		return "dirty"
	}
	return "full"
}
