package hclgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/nodes"
	"github.com/barrulus/Hesiod/internal/registry"
)

func builtinsRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, nodes.RegisterBuiltins(reg))
	reg.Seal()
	return reg
}

const sampleSource = `
node "noise.value" "terrain" {
  rows     = 16
  cols     = 16
  seed     = 7
  position = [120, 40.5]
}

node "filter.clamp" "flatten" {
  min = 0.2
  max = 0.8
}

connect {
  from = "terrain:height"
  to   = "flatten:height"
}
`

func TestParse(t *testing.T) {
	reg := builtinsRegistry(t)

	g, err := Parse(context.Background(), []byte(sampleSource), "sample.hcl", reg)
	require.NoError(t, err)

	t.Run("nodes are created under their block names", func(t *testing.T) {
		typeID, err := g.NodeType("terrain")
		require.NoError(t, err)
		assert.Equal(t, "noise.value", typeID)

		typeID, err = g.NodeType("flatten")
		require.NoError(t, err)
		assert.Equal(t, "filter.clamp", typeID)
	})

	t.Run("attributes become parameters with defaults filled", func(t *testing.T) {
		v, err := g.Parameter("terrain", "seed")
		require.NoError(t, err)
		assert.True(t, v.RawEquals(cty.NumberIntVal(7)))

		// frequency was not given, so its default applies.
		v, err = g.Parameter("terrain", "frequency")
		require.NoError(t, err)
		assert.True(t, v.RawEquals(cty.NumberIntVal(8)))
	})

	t.Run("position is presentation state, not a parameter", func(t *testing.T) {
		_, err := g.Parameter("terrain", "position")
		assert.Error(t, err)

		snap, err := g.Snapshot()
		require.NoError(t, err)
		node, ok := snap.Node("terrain")
		require.True(t, ok)
		assert.Equal(t, [2]float64{120, 40.5}, node.Position)
	})

	t.Run("connect blocks become edges", func(t *testing.T) {
		snap, err := g.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, graph.PortRef{Node: "terrain", Port: "height"}, snap.Inputs("flatten")["height"])
	})
}

func TestParseRejections(t *testing.T) {
	reg := builtinsRegistry(t)

	t.Run("syntax error", func(t *testing.T) {
		_, err := Parse(context.Background(), []byte(`node "x" {`), "bad.hcl", reg)
		assert.ErrorContains(t, err, "bad.hcl")
	})

	t.Run("unknown node type", func(t *testing.T) {
		src := `node "erosion.thermal" "e1" {}`
		_, err := Parse(context.Background(), []byte(src), "bad.hcl", reg)
		var unknown *registry.UnknownTypeError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("unknown parameter", func(t *testing.T) {
		src := `node "primitives.constant" "c1" {
		  bogus = 1
		}`
		_, err := Parse(context.Background(), []byte(src), "bad.hcl", reg)
		assert.ErrorContains(t, err, `unknown parameter "bogus"`)
	})

	t.Run("malformed position", func(t *testing.T) {
		src := `node "primitives.constant" "c1" {
		  position = [1, 2, 3]
		}`
		_, err := Parse(context.Background(), []byte(src), "bad.hcl", reg)
		assert.ErrorContains(t, err, "exactly two elements")
	})

	t.Run("malformed port reference", func(t *testing.T) {
		src := `node "primitives.constant" "c1" {}
		connect {
		  from = "c1"
		  to   = "c1:value"
		}`
		_, err := Parse(context.Background(), []byte(src), "bad.hcl", reg)
		assert.ErrorContains(t, err, "invalid port reference")
	})

	t.Run("type-mismatched edge", func(t *testing.T) {
		src := `node "primitives.constant" "c1" {}
		node "filter.clamp" "f1" {}
		connect {
		  from = "c1:value"
		  to   = "f1:height"
		}`
		_, err := Parse(context.Background(), []byte(src), "bad.hcl", reg)
		assert.True(t, graph.IsValidation(err, graph.KindTypeMismatch))
	})

	t.Run("cyclic definition", func(t *testing.T) {
		src := `node "math.add" "a" {}
		node "math.add" "b" {}
		connect {
		  from = "a:value"
		  to   = "b:value"
		}
		connect {
		  from = "b:value"
		  to   = "a:value"
		}`
		_, err := Parse(context.Background(), []byte(src), "bad.hcl", reg)
		assert.True(t, graph.IsValidation(err, graph.KindCycle))
	})
}

func TestLoad(t *testing.T) {
	reg := builtinsRegistry(t)

	path := filepath.Join(t.TempDir(), "graph.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0o644))

	g, err := Load(context.Background(), path, reg)
	require.NoError(t, err)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []graph.NodeID{"terrain", "flatten"}, order)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"), reg)
	assert.ErrorContains(t, err, "reading graph definition")
}
