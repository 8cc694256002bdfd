// Package hclgraph loads graph definitions written in HCL. A definition is
// a sequence of node blocks (labels give the node type and instance id,
// attributes give parameter values) plus connect blocks wiring output
// ports to input ports:
//
//	node "noise.value" "terrain" {
//	  rows = 128
//	  cols = 128
//	  seed = 7
//	}
//
//	connect {
//	  from = "terrain:height"
//	  to   = "peaks:field"
//	}
//
// The loader builds the graph through the normal mutation path, so every
// definition it accepts satisfies the DAG and port-type invariants.
package hclgraph

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/barrulus/Hesiod/internal/ctxlog"
	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/registry"
)

// positionAttr is the reserved node attribute for editor placement; it is
// presentation state, not a parameter.
const positionAttr = "position"

type nodeBlock struct {
	Type string   `hcl:"type,label"`
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type connectBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

type fileContent struct {
	Nodes    []*nodeBlock    `hcl:"node,block"`
	Connects []*connectBlock `hcl:"connect,block"`
}

// Load parses the definition file at path and builds its graph.
func Load(ctx context.Context, path string, reg *registry.Registry) (*graph.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph definition: %w", err)
	}
	return Parse(ctx, src, path, reg)
}

// Parse builds a graph from HCL source. filename is used in diagnostics.
func Parse(ctx context.Context, src []byte, filename string, reg *registry.Registry) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}

	var content fileContent
	if diags := gohcl.DecodeBody(file.Body, nil, &content); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", filename, diags)
	}

	g := graph.New(reg)
	for _, nb := range content.Nodes {
		if err := addNode(g, nb); err != nil {
			return nil, err
		}
	}
	for _, cb := range content.Connects {
		from, err := parsePortRef(cb.From)
		if err != nil {
			return nil, fmt.Errorf("connect block: %w", err)
		}
		to, err := parsePortRef(cb.To)
		if err != nil {
			return nil, fmt.Errorf("connect block: %w", err)
		}
		if err := g.Connect(from, to); err != nil {
			return nil, fmt.Errorf("connect %s -> %s: %w", cb.From, cb.To, err)
		}
	}

	logger.Debug("Graph definition loaded.", "file", filename, "nodes", len(content.Nodes), "edges", len(content.Connects))
	return g, nil
}

func addNode(g *graph.Graph, nb *nodeBlock) error {
	attrs, diags := nb.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("node %q: %w", nb.Name, diags)
	}

	params := make(map[string]cty.Value, len(attrs))
	var position *[2]float64
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("node %q attribute %q: %w", nb.Name, name, diags)
		}
		if name == positionAttr {
			pos, err := decodePosition(v)
			if err != nil {
				return fmt.Errorf("node %q: %w", nb.Name, err)
			}
			position = &pos
			continue
		}
		params[name] = v
	}

	if err := g.AddNodeWithID(graph.NodeID(nb.Name), nb.Type, params); err != nil {
		return fmt.Errorf("node %q: %w", nb.Name, err)
	}
	if position != nil {
		if err := g.SetPosition(graph.NodeID(nb.Name), position[0], position[1]); err != nil {
			return fmt.Errorf("node %q: %w", nb.Name, err)
		}
	}
	return nil
}

func decodePosition(v cty.Value) ([2]float64, error) {
	listVal, err := convert.Convert(v, cty.List(cty.Number))
	if err != nil {
		return [2]float64{}, fmt.Errorf("position must be a pair of numbers: %w", err)
	}
	if listVal.LengthInt() != 2 {
		return [2]float64{}, fmt.Errorf("position must have exactly two elements, got %d", listVal.LengthInt())
	}
	var pos [2]float64
	i := 0
	for it := listVal.ElementIterator(); it.Next(); i++ {
		_, ev := it.Element()
		f, _ := ev.AsBigFloat().Float64()
		pos[i] = f
	}
	return pos, nil
}

// parsePortRef splits a "node:port" reference.
func parsePortRef(s string) (graph.PortRef, error) {
	node, port, ok := strings.Cut(s, ":")
	if !ok || node == "" || port == "" {
		return graph.PortRef{}, fmt.Errorf("invalid port reference %q, want \"node:port\"", s)
	}
	return graph.PortRef{Node: graph.NodeID(node), Port: port}, nil
}
