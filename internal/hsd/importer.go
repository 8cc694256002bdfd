// Package hsd imports legacy .hsd project files. Legacy node types are
// remapped onto current type identifiers; any construct that cannot be
// mapped is omitted from the imported graph and reported, never silently
// guessed. The importer builds the graph through the normal mutation path,
// so the result always satisfies the DAG and port-type invariants.
package hsd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/barrulus/Hesiod/internal/ctxlog"
	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/registry"
)

// legacyTypeMap remaps legacy .hsd node class names onto current type
// identifiers.
var legacyTypeMap = map[string]string{
	"ConstantNode": "primitives.constant",
	"GradientNode": "primitives.gradient",
	"NoiseNode":    "noise.value",
	"AddNode":      "math.add",
	"MultiplyNode": "math.multiply",
	"BlendNode":    "blend.mix",
	"ClampNode":    "filter.clamp",
	"MeshNode":     "mesh.from_heightmap",
}

// Report describes one construct the importer had to omit.
type Report struct {
	Kind   string // "unsupported-node", "dangling-connection", "bad-parameter", "invalid-connection"
	Detail string
}

func (r Report) String() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}

type legacyConnection struct {
	SourceNode string `json:"source_node"`
	SourcePort string `json:"source_port"`
}

type legacyNode struct {
	ID         string                     `json:"id"`
	Type       string                     `json:"type"`
	Parameters map[string]json.RawMessage `json:"parameters"`
}

type legacyGraph struct {
	Name        string                                 `json:"name"`
	Nodes       []legacyNode                           `json:"nodes"`
	Connections map[string]map[string]legacyConnection `json:"connections"`
}

type legacyDocument struct {
	Graph *legacyGraph `json:"graph"`
}

// Import converts legacy .hsd bytes into a graph plus a report of every
// construct that was dropped. A parse failure of the document itself is an
// error; per-construct problems are reports, not errors.
func Import(ctx context.Context, data []byte, reg *registry.Registry) (*graph.Graph, []Report, error) {
	logger := ctxlog.FromContext(ctx)

	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing legacy project: %w", err)
	}
	lg := doc.Graph
	if lg == nil {
		// Older .hsd files put the graph at the top level.
		lg = &legacyGraph{}
		if err := json.Unmarshal(data, lg); err != nil {
			return nil, nil, fmt.Errorf("parsing legacy project: %w", err)
		}
	}

	g := graph.New(reg)
	var reports []Report
	imported := make(map[string]struct{})

	for _, ln := range lg.Nodes {
		typeID, ok := legacyTypeMap[ln.Type]
		if !ok {
			reports = append(reports, Report{Kind: "unsupported-node", Detail: fmt.Sprintf("node %q has unsupported type %q", ln.ID, ln.Type)})
			logger.Warn("Unsupported legacy node omitted.", "node", ln.ID, "legacy_type", ln.Type)
			continue
		}
		def, err := reg.Lookup(typeID)
		if err != nil {
			reports = append(reports, Report{Kind: "unsupported-node", Detail: fmt.Sprintf("node %q maps to unregistered type %q", ln.ID, typeID)})
			continue
		}

		params := make(map[string]cty.Value, len(ln.Parameters))
		for name, raw := range ln.Parameters {
			spec, ok := def.Metadata.Param(name)
			if !ok {
				reports = append(reports, Report{Kind: "bad-parameter", Detail: fmt.Sprintf("node %q: unknown parameter %q dropped", ln.ID, name)})
				continue
			}
			v, err := ctyjson.Unmarshal(raw, spec.Type)
			if err != nil {
				reports = append(reports, Report{Kind: "bad-parameter", Detail: fmt.Sprintf("node %q: parameter %q unreadable, default used", ln.ID, name)})
				continue
			}
			params[name] = v
		}

		if err := g.AddNodeWithID(graph.NodeID(ln.ID), typeID, params); err != nil {
			reports = append(reports, Report{Kind: "unsupported-node", Detail: fmt.Sprintf("node %q rejected: %v", ln.ID, err)})
			continue
		}
		imported[ln.ID] = struct{}{}
	}

	for target, ports := range lg.Connections {
		for port, conn := range ports {
			edge := fmt.Sprintf("%s:%s -> %s:%s", conn.SourceNode, conn.SourcePort, target, port)
			if _, ok := imported[target]; !ok {
				reports = append(reports, Report{Kind: "dangling-connection", Detail: edge})
				continue
			}
			if _, ok := imported[conn.SourceNode]; !ok {
				reports = append(reports, Report{Kind: "dangling-connection", Detail: edge})
				continue
			}
			err := g.Connect(
				graph.PortRef{Node: graph.NodeID(conn.SourceNode), Port: conn.SourcePort},
				graph.PortRef{Node: graph.NodeID(target), Port: port},
			)
			if err != nil {
				reports = append(reports, Report{Kind: "invalid-connection", Detail: fmt.Sprintf("%s: %v", edge, err)})
			}
		}
	}

	logger.Info("Legacy project imported.", "nodes", len(imported), "reports", len(reports))
	return g, reports, nil
}
