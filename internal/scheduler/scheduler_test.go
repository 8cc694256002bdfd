package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/cache"
	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/payload"
	"github.com/barrulus/Hesiod/internal/registry"
)

// testEnv bundles a sealed registry of instrumented node types with an
// invocation counter shared by every handler.
type testEnv struct {
	reg         *registry.Registry
	invocations atomic.Int32
	gate        chan struct{} // blocks test.block handlers until closed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{reg: registry.New(), gate: make(chan struct{})}

	scalarParam := func(inv *registry.Invocation, name string) float64 {
		f, _ := inv.Params[name].AsBigFloat().Float64()
		return f
	}
	scalarInput := func(inv *registry.Invocation) float64 {
		if p, ok := inv.Inputs["value"]; ok {
			return float64(p.(payload.Scalar))
		}
		return 0
	}

	require.NoError(t, env.reg.Register("test.const", registry.Definition{
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			env.invocations.Add(1)
			return payload.Set{"value": payload.Scalar(scalarParam(inv, "value"))}, nil
		},
		Metadata: registry.Metadata{
			Outputs: []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Params:  []registry.ParamSpec{{Name: "value", Type: cty.Number, Default: cty.NumberIntVal(0)}},
		},
	}))

	require.NoError(t, env.reg.Register("test.add", registry.Definition{
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			env.invocations.Add(1)
			return payload.Set{"value": payload.Scalar(scalarInput(inv) + scalarParam(inv, "operand"))}, nil
		},
		Metadata: registry.Metadata{
			Inputs:  []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Outputs: []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
			Params:  []registry.ParamSpec{{Name: "operand", Type: cty.Number, Default: cty.NumberIntVal(0)}},
		},
	}))

	require.NoError(t, env.reg.Register("test.fail", registry.Definition{
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			env.invocations.Add(1)
			return nil, errors.New("kaboom")
		},
		Metadata: registry.Metadata{
			Outputs: []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
		},
	}))

	require.NoError(t, env.reg.Register("test.block", registry.Definition{
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			env.invocations.Add(1)
			select {
			case <-env.gate:
				return payload.Set{"value": payload.Scalar(1)}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		Metadata: registry.Metadata{
			Outputs: []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
		},
	}))

	env.reg.Seal()
	return env
}

func newEngine(t *testing.T, env *testEnv, opts Options) *Engine {
	t.Helper()
	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	return New(env.reg, c, opts)
}

// buildChain wires const(5) -> add(+3).
func buildChain(t *testing.T, env *testEnv) (*graph.Graph, graph.NodeID, graph.NodeID) {
	t.Helper()
	g := graph.New(env.reg)
	src, err := g.AddNode("test.const", map[string]cty.Value{"value": cty.NumberIntVal(5)})
	require.NoError(t, err)
	dst, err := g.AddNode("test.add", map[string]cty.Value{"operand": cty.NumberIntVal(3)})
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.PortRef{Node: src, Port: "value"}, graph.PortRef{Node: dst, Port: "value"}))
	return g, src, dst
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("run did not settle in time")
	}
}

func TestRunComputesChain(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})
	g, src, dst := buildChain(t, env)

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, StateCompleted, run.State())
	assert.NoError(t, run.Err())

	set, err := run.Result(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, payload.Scalar(8), set["value"])

	for _, id := range []graph.NodeID{src, dst} {
		st, ok := run.NodeStatus(id)
		require.True(t, ok)
		assert.Equal(t, StatusDone, st)
	}
	assert.Equal(t, int32(2), env.invocations.Load())

	t.Run("run clears the dirty set", func(t *testing.T) {
		assert.Empty(t, g.DirtySet())
	})

	t.Run("graph is mutable again", func(t *testing.T) {
		assert.NoError(t, g.SetPosition(src, 1, 2))
	})
}

func TestSecondRunIsAllCacheHits(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})
	g, _, dst := buildChain(t, env)

	first, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, first)
	require.Equal(t, int32(2), env.invocations.Load())

	second, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, second)

	assert.Equal(t, StateCompleted, second.State())
	assert.Equal(t, int32(2), env.invocations.Load(), "an unchanged graph must not re-invoke handlers")

	for _, id := range second.Nodes() {
		st, ok := second.NodeStatus(id)
		require.True(t, ok)
		assert.Equal(t, StatusCached, st)
	}

	set, err := second.Result(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, payload.Scalar(8), set["value"])
}

func TestIdenticalNodesComputeOnce(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{Workers: 8})

	g := graph.New(env.reg)
	var ids []graph.NodeID
	for i := 0; i < 6; i++ {
		id, err := g.AddNode("test.const", map[string]cty.Value{"value": cty.NumberIntVal(5)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, run)

	require.Equal(t, StateCompleted, run.State())
	assert.Equal(t, int32(1), env.invocations.Load(), "equal fingerprints must share one computation")

	for _, id := range ids {
		set, err := run.Result(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, payload.Scalar(5), set["value"])
	}
}

func TestDirtyScopeRecomputesOnlyAffectedBranch(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})

	// Two independent chains sharing nothing.
	g := graph.New(env.reg)
	a1, err := g.AddNode("test.const", map[string]cty.Value{"value": cty.NumberIntVal(1)})
	require.NoError(t, err)
	a2, err := g.AddNode("test.add", map[string]cty.Value{"operand": cty.NumberIntVal(10)})
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.PortRef{Node: a1, Port: "value"}, graph.PortRef{Node: a2, Port: "value"}))

	b1, err := g.AddNode("test.const", map[string]cty.Value{"value": cty.NumberIntVal(2)})
	require.NoError(t, err)
	b2, err := g.AddNode("test.add", map[string]cty.Value{"operand": cty.NumberIntVal(20)})
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.PortRef{Node: b1, Port: "value"}, graph.PortRef{Node: b2, Port: "value"}))

	first, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, first)
	require.Equal(t, int32(4), env.invocations.Load())

	// Edit one branch's leaf; the other branch must not even be planned.
	require.NoError(t, g.SetParameter(a2, "operand", cty.NumberIntVal(11)))

	second, err := engine.Submit(context.Background(), g, ScopeDirty)
	require.NoError(t, err)
	waitDone(t, second)
	require.Equal(t, StateCompleted, second.State())

	assert.ElementsMatch(t, []graph.NodeID{a1, a2}, second.Nodes())
	_, ok := second.NodeStatus(b1)
	assert.False(t, ok, "untouched branch must be outside the run scope")

	// The clean ancestor resolves from cache; only the edited node recomputes.
	st, ok := second.NodeStatus(a1)
	require.True(t, ok)
	assert.Equal(t, StatusCached, st)
	st, ok = second.NodeStatus(a2)
	require.True(t, ok)
	assert.Equal(t, StatusDone, st)
	assert.Equal(t, int32(5), env.invocations.Load())

	set, err := second.Result(context.Background(), a2)
	require.NoError(t, err)
	assert.Equal(t, payload.Scalar(12), set["value"])
}

func TestUpstreamEditRipplesDownstream(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})

	// const(5) -> add(+3) -> add(+0)
	g := graph.New(env.reg)
	src, err := g.AddNode("test.const", map[string]cty.Value{"value": cty.NumberIntVal(5)})
	require.NoError(t, err)
	mid, err := g.AddNode("test.add", map[string]cty.Value{"operand": cty.NumberIntVal(3)})
	require.NoError(t, err)
	out, err := g.AddNode("test.add", nil)
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.PortRef{Node: src, Port: "value"}, graph.PortRef{Node: mid, Port: "value"}))
	require.NoError(t, g.Connect(graph.PortRef{Node: mid, Port: "value"}, graph.PortRef{Node: out, Port: "value"}))

	first, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, first)
	require.Equal(t, StateCompleted, first.State())
	require.Equal(t, int32(3), env.invocations.Load())

	set, err := first.Result(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, payload.Scalar(8), set["value"])

	// Unchanged graph: zero handler invocations.
	rerun, err := engine.Submit(context.Background(), g, ScopeDirty)
	require.NoError(t, err)
	waitDone(t, rerun)
	require.Equal(t, StateCompleted, rerun.State())
	assert.Equal(t, int32(3), env.invocations.Load())

	// Editing the source invalidates the whole chain: its fingerprint change
	// ripples through every consumer, so all three recompute.
	require.NoError(t, g.SetParameter(src, "value", cty.NumberIntVal(10)))

	second, err := engine.Submit(context.Background(), g, ScopeDirty)
	require.NoError(t, err)
	waitDone(t, second)
	require.Equal(t, StateCompleted, second.State())

	for _, id := range []graph.NodeID{src, mid, out} {
		st, ok := second.NodeStatus(id)
		require.True(t, ok)
		assert.Equal(t, StatusDone, st)
	}
	assert.Equal(t, int32(6), env.invocations.Load())

	set, err = second.Result(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, payload.Scalar(13), set["value"])
}

func TestFailureSkipsDependentsOnly(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})

	g := graph.New(env.reg)
	bad, err := g.AddNode("test.fail", nil)
	require.NoError(t, err)
	dep, err := g.AddNode("test.add", nil)
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.PortRef{Node: bad, Port: "value"}, graph.PortRef{Node: dep, Port: "value"}))
	ok1, err := g.AddNode("test.const", map[string]cty.Value{"value": cty.NumberIntVal(9)})
	require.NoError(t, err)

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, StateFailed, run.State())

	st, _ := run.NodeStatus(bad)
	assert.Equal(t, StatusFailed, st)
	st, _ = run.NodeStatus(dep)
	assert.Equal(t, StatusSkipped, st)
	st, _ = run.NodeStatus(ok1)
	assert.Equal(t, StatusDone, st, "independent branches keep executing")

	t.Run("failed node reports the handler error", func(t *testing.T) {
		_, err := run.Result(context.Background(), bad)
		var hee *HandlerExecutionError
		require.ErrorAs(t, err, &hee)
		assert.Equal(t, bad, hee.Node)
		assert.ErrorContains(t, err, "kaboom")
	})

	t.Run("skipped node reports the unavailable input", func(t *testing.T) {
		_, err := run.Result(context.Background(), dep)
		assert.ErrorContains(t, err, "input unavailable")
	})

	t.Run("resolved nodes are clean, failed remain dirty", func(t *testing.T) {
		dirty := g.DirtySet()
		assert.NotContains(t, dirty, ok1)
		assert.Contains(t, dirty, bad)
		assert.Contains(t, dirty, dep)
	})
}

func TestCancellation(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{Workers: 1})

	g := graph.New(env.reg)
	blocked, err := g.AddNode("test.block", nil)
	require.NoError(t, err)
	dep, err := g.AddNode("test.add", nil)
	require.NoError(t, err)
	require.NoError(t, g.Connect(graph.PortRef{Node: blocked, Port: "value"}, graph.PortRef{Node: dep, Port: "value"}))

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)

	run.Cancel()
	waitDone(t, run)

	assert.Equal(t, StateCancelled, run.State())
	st, _ := run.NodeStatus(dep)
	assert.Contains(t, []NodeStatus{StatusCancelled, StatusSkipped}, st)

	t.Run("graph is unlocked after cancellation", func(t *testing.T) {
		assert.NoError(t, g.SetPosition(blocked, 0, 0))
	})
}

func TestNodeTimeout(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{NodeTimeout: 30 * time.Millisecond})

	g := graph.New(env.reg)
	slow, err := g.AddNode("test.block", nil)
	require.NoError(t, err)

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, StateFailed, run.State())
	st, _ := run.NodeStatus(slow)
	assert.Equal(t, StatusTimedOut, st)

	_, err = run.Result(context.Background(), slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGraphLockedDuringRun(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})

	g := graph.New(env.reg)
	blocked, err := g.AddNode("test.block", nil)
	require.NoError(t, err)

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)

	t.Run("mutations are rejected, not queued", func(t *testing.T) {
		_, err := g.AddNode("test.const", nil)
		assert.ErrorIs(t, err, graph.ErrLocked)
	})

	t.Run("a second submit is rejected", func(t *testing.T) {
		_, err := engine.Submit(context.Background(), g, ScopeFull)
		assert.ErrorIs(t, err, graph.ErrLocked)
	})

	close(env.gate)
	waitDone(t, run)
	assert.Equal(t, StateCompleted, run.State())
	st, ok := run.NodeStatus(blocked)
	require.True(t, ok)
	assert.Equal(t, StatusDone, st)

	_, err = g.AddNode("test.const", nil)
	assert.NoError(t, err)
}

func TestRunContextReleasedAfterCompletion(t *testing.T) {
	reg := registry.New()
	var handlerCtx atomic.Pointer[context.Context]
	require.NoError(t, reg.Register("test.capture", registry.Definition{
		Handler: func(ctx context.Context, inv *registry.Invocation) (payload.Set, error) {
			handlerCtx.Store(&ctx)
			return payload.Set{"value": payload.Scalar(1)}, nil
		},
		Metadata: registry.Metadata{
			Outputs: []registry.PortSpec{{Name: "value", Type: payload.TypeScalar}},
		},
	}))
	reg.Seal()

	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	engine := New(reg, c, Options{})

	g := graph.New(reg)
	_, err = g.AddNode("test.capture", nil)
	require.NoError(t, err)

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)
	waitDone(t, run)
	require.Equal(t, StateCompleted, run.State())

	assert.Eventually(t, func() bool {
		ctx := handlerCtx.Load()
		return ctx != nil && (*ctx).Err() != nil
	}, time.Second, 10*time.Millisecond, "the run's derived context must be cancelled once the run settles")
}

func TestSubmitRequiresSealedRegistry(t *testing.T) {
	reg := registry.New()
	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	engine := New(reg, c, Options{})

	_, err = engine.Submit(context.Background(), graph.New(reg), ScopeFull)
	assert.ErrorContains(t, err, "must be sealed")
}

func TestProgressEvents(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})
	g, src, dst := buildChain(t, env)

	run, err := engine.Submit(context.Background(), g, ScopeFull)
	require.NoError(t, err)

	terminal := make(map[graph.NodeID]NodeStatus)
	var last Event
	for ev := range run.Progress() {
		if ev.Status.Terminal() {
			terminal[ev.Node] = ev.Status
		}
		last = ev
	}
	waitDone(t, run)

	assert.Equal(t, StatusDone, terminal[src])
	assert.Equal(t, StatusDone, terminal[dst])
	assert.InDelta(t, 100.0, last.Percent, 0.01)
}

func TestEmptyGraphRun(t *testing.T) {
	env := newTestEnv(t)
	engine := newEngine(t, env, Options{})

	run, err := engine.Submit(context.Background(), graph.New(env.reg), ScopeFull)
	require.NoError(t, err)
	waitDone(t, run)

	assert.Equal(t, StateCompleted, run.State())
	assert.Empty(t, run.Nodes())
}
