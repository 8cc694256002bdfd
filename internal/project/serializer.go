package project

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/barrulus/Hesiod/internal/graph"
	"github.com/barrulus/Hesiod/internal/registry"
)

// Snapshot converts a graph into its persisted document form. Nodes and
// edges are emitted in ascending identifier order so equal graphs produce
// byte-identical documents.
func Snapshot(g *graph.Graph, reg *registry.Registry) (*Document, error) {
	snap, err := g.Snapshot()
	if err != nil {
		return nil, &SerializationError{Detail: "snapshotting graph", Err: err}
	}

	ids := make([]graph.NodeID, 0, snap.Len())
	for _, id := range snap.Order() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	doc := &Document{Version: Version, Nodes: make([]NodeDoc, 0, len(ids))}
	for _, id := range ids {
		node, _ := snap.Node(id)
		def, err := reg.Lookup(node.TypeID)
		if err != nil {
			return nil, &SerializationError{Detail: fmt.Sprintf("node %s", id), Err: err}
		}

		params := make(map[string]json.RawMessage, len(node.Params))
		for name, v := range node.Params {
			spec, ok := def.Metadata.Param(name)
			if !ok {
				return nil, &SerializationError{Detail: fmt.Sprintf("node %s has undeclared parameter %q", id, name)}
			}
			raw, err := ctyjson.Marshal(v, spec.Type)
			if err != nil {
				return nil, &SerializationError{Detail: fmt.Sprintf("node %s parameter %q", id, name), Err: err}
			}
			params[name] = raw
		}

		doc.Nodes = append(doc.Nodes, NodeDoc{
			ID:         string(id),
			Type:       node.TypeID,
			Parameters: params,
			Position:   node.Position,
		})
	}

	for _, id := range ids {
		ports := make([]string, 0, len(snap.Inputs(id)))
		for port := range snap.Inputs(id) {
			ports = append(ports, port)
		}
		sort.Strings(ports)
		for _, port := range ports {
			src := snap.Inputs(id)[port]
			doc.Edges = append(doc.Edges, EdgeDoc{
				FromNode: string(src.Node),
				FromPort: src.Port,
				ToNode:   string(id),
				ToPort:   port,
			})
		}
	}
	return doc, nil
}

// Restore builds a graph from a document. It is atomic: any malformed entry
// fails the whole restore with a SerializationError and no graph is
// returned.
func Restore(doc *Document, reg *registry.Registry) (*graph.Graph, error) {
	if doc.Version != Version {
		return nil, &SerializationError{Detail: fmt.Sprintf("unsupported document version %d", doc.Version)}
	}

	g := graph.New(reg)
	for _, nd := range doc.Nodes {
		def, err := reg.Lookup(nd.Type)
		if err != nil {
			return nil, &SerializationError{Detail: fmt.Sprintf("node %s", nd.ID), Err: err}
		}
		params := make(map[string]cty.Value, len(nd.Parameters))
		for name, raw := range nd.Parameters {
			spec, ok := def.Metadata.Param(name)
			if !ok {
				return nil, &SerializationError{Detail: fmt.Sprintf("node %s has undeclared parameter %q", nd.ID, name)}
			}
			v, err := ctyjson.Unmarshal(raw, spec.Type)
			if err != nil {
				return nil, &SerializationError{Detail: fmt.Sprintf("node %s parameter %q", nd.ID, name), Err: err}
			}
			params[name] = v
		}
		if err := g.AddNodeWithID(graph.NodeID(nd.ID), nd.Type, params); err != nil {
			return nil, &SerializationError{Detail: fmt.Sprintf("node %s", nd.ID), Err: err}
		}
		if err := g.SetPosition(graph.NodeID(nd.ID), nd.Position[0], nd.Position[1]); err != nil {
			return nil, &SerializationError{Detail: fmt.Sprintf("node %s", nd.ID), Err: err}
		}
	}

	for _, ed := range doc.Edges {
		err := g.Connect(
			graph.PortRef{Node: graph.NodeID(ed.FromNode), Port: ed.FromPort},
			graph.PortRef{Node: graph.NodeID(ed.ToNode), Port: ed.ToPort},
		)
		if err != nil {
			return nil, &SerializationError{
				Detail: fmt.Sprintf("edge %s:%s -> %s:%s", ed.FromNode, ed.FromPort, ed.ToNode, ed.ToPort),
				Err:    err,
			}
		}
	}
	return g, nil
}
