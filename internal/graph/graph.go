// Package graph implements the mutable node-and-edge model the editor
// operates on. It enforces the DAG invariant at mutation time, tracks which
// nodes are dirty, and produces the immutable snapshots runs execute against.
//
// A Graph is safe for concurrent use; all operations take the graph lock.
// Computed outputs are never stored on nodes; they live in the execution
// cache, addressed by fingerprint.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/barrulus/Hesiod/internal/registry"
)

// NodeID is the stable identifier of a node within one graph.
type NodeID string

// PortRef names one port on one node.
type PortRef struct {
	Node NodeID
	Port string
}

func (p PortRef) String() string {
	return fmt.Sprintf("%s:%s", p.Node, p.Port)
}

// nodeState is the per-node mutable state: type, parameters, and editor
// position. Ports are not stored; they are derived from the type's metadata.
type nodeState struct {
	typeID   string
	params   map[string]cty.Value
	position [2]float64
}

// Graph owns the node and edge sets.
type Graph struct {
	mu     sync.Mutex
	reg    *registry.Registry
	nodes  map[NodeID]*nodeState
	inputs map[NodeID]map[string]PortRef // consumer -> input port -> producer output
	dirty  map[NodeID]struct{}
	frozen bool
	seq    int
}

// New creates an empty graph validated against the given registry.
func New(reg *registry.Registry) *Graph {
	return &Graph{
		reg:    reg,
		nodes:  make(map[NodeID]*nodeState),
		inputs: make(map[NodeID]map[string]PortRef),
		dirty:  make(map[NodeID]struct{}),
	}
}

// AddNode creates a node of the given type with a generated identifier.
// Provided parameters are validated against the type's schema; declared
// parameters that are absent take their defaults. The new node is dirty.
func (g *Graph) AddNode(typeID string, params map[string]cty.Value) (NodeID, error) {
	def, err := g.reg.Lookup(typeID)
	if err != nil {
		return "", err
	}
	full, err := def.Metadata.ApplyDefaults(params)
	if err != nil {
		return "", &ValidationError{Kind: KindBadParameter, Detail: typeID, Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return "", ErrLocked
	}

	id := g.nextID(typeID)
	g.nodes[id] = &nodeState{typeID: typeID, params: full}
	g.dirty[id] = struct{}{}
	return id, nil
}

// AddNodeWithID creates a node under a caller-supplied identifier. It is the
// restore/import path; generated and persisted identifiers coexist.
func (g *Graph) AddNodeWithID(id NodeID, typeID string, params map[string]cty.Value) error {
	if id == "" {
		return &ValidationError{Kind: KindUnknownNode, Detail: "empty node identifier"}
	}
	def, err := g.reg.Lookup(typeID)
	if err != nil {
		return err
	}
	full, err := def.Metadata.ApplyDefaults(params)
	if err != nil {
		return &ValidationError{Kind: KindBadParameter, Detail: typeID, Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("node %q already exists", id)
	}

	g.nodes[id] = &nodeState{typeID: typeID, params: full}
	g.dirty[id] = struct{}{}
	return nil
}

// RemoveNode deletes a node and every edge touching it. All transitive
// downstream consumers are marked dirty.
func (g *Graph) RemoveNode(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}
	if _, ok := g.nodes[id]; !ok {
		return &ValidationError{Kind: KindUnknownNode, Detail: string(id)}
	}

	// Dependents lose an input; dirty them before the edges disappear.
	g.markDirtyLocked(id)

	for consumer, ports := range g.inputs {
		if consumer == id {
			continue
		}
		for port, src := range ports {
			if src.Node == id {
				delete(ports, port)
			}
		}
		if len(ports) == 0 {
			delete(g.inputs, consumer)
		}
	}
	delete(g.inputs, id)
	delete(g.nodes, id)
	delete(g.dirty, id)
	return nil
}

// Connect adds an edge from an output port to an input port. The edge is
// rejected, leaving the graph unchanged, if either port is unknown, the
// port types differ, the input is already fed, or the edge would close a
// cycle. The consumer and its transitive dependents are marked dirty.
func (g *Graph) Connect(from, to PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}

	fromNode, ok := g.nodes[from.Node]
	if !ok {
		return &ValidationError{Kind: KindUnknownNode, Detail: string(from.Node)}
	}
	toNode, ok := g.nodes[to.Node]
	if !ok {
		return &ValidationError{Kind: KindUnknownNode, Detail: string(to.Node)}
	}

	fromDef, err := g.reg.Lookup(fromNode.typeID)
	if err != nil {
		return err
	}
	toDef, err := g.reg.Lookup(toNode.typeID)
	if err != nil {
		return err
	}

	outSpec, ok := fromDef.Metadata.OutputSpec(from.Port)
	if !ok {
		return &ValidationError{Kind: KindUnknownPort, Detail: fmt.Sprintf("%s has no output %q", fromNode.typeID, from.Port)}
	}
	inSpec, ok := toDef.Metadata.InputSpec(to.Port)
	if !ok {
		return &ValidationError{Kind: KindUnknownPort, Detail: fmt.Sprintf("%s has no input %q", toNode.typeID, to.Port)}
	}
	if outSpec.Type != inSpec.Type {
		return &ValidationError{
			Kind:   KindTypeMismatch,
			Detail: fmt.Sprintf("%s (%s) -> %s (%s)", from, outSpec.Type, to, inSpec.Type),
		}
	}
	if _, occupied := g.inputs[to.Node][to.Port]; occupied {
		return &ValidationError{Kind: KindPortOccupied, Detail: to.String()}
	}
	if g.reachesLocked(to.Node, from.Node) {
		return &ValidationError{
			Kind:   KindCycle,
			Detail: fmt.Sprintf("edge %s -> %s would close a cycle", from, to),
		}
	}

	ports := g.inputs[to.Node]
	if ports == nil {
		ports = make(map[string]PortRef)
		g.inputs[to.Node] = ports
	}
	ports[to.Port] = from
	g.markDirtyLocked(to.Node)
	return nil
}

// Disconnect removes the edge feeding an input port. Disconnecting a port
// with no incoming edge is a no-op. The consumer and its transitive
// dependents are marked dirty.
func (g *Graph) Disconnect(to PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}
	if _, ok := g.nodes[to.Node]; !ok {
		return &ValidationError{Kind: KindUnknownNode, Detail: string(to.Node)}
	}
	ports, ok := g.inputs[to.Node]
	if !ok {
		return nil
	}
	if _, connected := ports[to.Port]; !connected {
		return nil
	}
	delete(ports, to.Port)
	if len(ports) == 0 {
		delete(g.inputs, to.Node)
	}
	g.markDirtyLocked(to.Node)
	return nil
}

// SetParameter assigns a parameter value, coerced and checked against the
// node type's schema. The node and its transitive dependents are marked
// dirty.
func (g *Graph) SetParameter(id NodeID, key string, value cty.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}
	node, ok := g.nodes[id]
	if !ok {
		return &ValidationError{Kind: KindUnknownNode, Detail: string(id)}
	}
	def, err := g.reg.Lookup(node.typeID)
	if err != nil {
		return err
	}
	coerced, err := def.Metadata.CoerceParam(key, value)
	if err != nil {
		return &ValidationError{Kind: KindBadParameter, Detail: string(id), Err: err}
	}
	node.params[key] = coerced
	g.markDirtyLocked(id)
	return nil
}

// SetPosition records the node's editor position. Position is presentation
// state: it does not dirty the node and never affects fingerprints.
func (g *Graph) SetPosition(id NodeID, x, y float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}
	node, ok := g.nodes[id]
	if !ok {
		return &ValidationError{Kind: KindUnknownNode, Detail: string(id)}
	}
	node.position = [2]float64{x, y}
	return nil
}

// DirtySet returns the identifiers of all dirty nodes in ascending order.
func (g *Graph) DirtySet() []NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]NodeID, 0, len(g.dirty))
	for id := range g.dirty {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// MarkClean clears the dirty flag on the given nodes. The scheduler calls
// this for every node that resolved during a run; it works while the graph
// is frozen.
func (g *Graph) MarkClean(ids ...NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		delete(g.dirty, id)
	}
}

// Freeze locks the graph for the duration of a run. It fails with ErrLocked
// if another run already holds the graph.
func (g *Graph) Freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return ErrLocked
	}
	g.frozen = true
	return nil
}

// Unfreeze releases the run lock.
func (g *Graph) Unfreeze() {
	g.mu.Lock()
	g.frozen = false
	g.mu.Unlock()
}

// NodeType returns the type identifier of a node.
func (g *Graph) NodeType(id NodeID) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return "", &ValidationError{Kind: KindUnknownNode, Detail: string(id)}
	}
	return node.typeID, nil
}

// Parameter returns the current value of one parameter.
func (g *Graph) Parameter(id NodeID, key string) (cty.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node, ok := g.nodes[id]
	if !ok {
		return cty.NilVal, &ValidationError{Kind: KindUnknownNode, Detail: string(id)}
	}
	v, ok := node.params[key]
	if !ok {
		return cty.NilVal, &ValidationError{Kind: KindBadParameter, Detail: fmt.Sprintf("%s has no parameter %q", id, key)}
	}
	return v, nil
}

// markDirtyLocked marks id and every transitive downstream consumer dirty.
// Caller holds g.mu.
func (g *Graph) markDirtyLocked(id NodeID) {
	stack := []NodeID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := g.dirty[n]; seen && n != id {
			continue
		}
		g.dirty[n] = struct{}{}
		for _, dep := range g.dependentsLocked(n) {
			if _, seen := g.dirty[dep]; !seen {
				stack = append(stack, dep)
			}
		}
	}
}

// reachesLocked reports whether target is reachable from start by following
// edges forward. Used as the incremental cycle check on Connect: the new
// edge from -> to closes a cycle exactly when from is already reachable from
// to. Caller holds g.mu.
func (g *Graph) reachesLocked(start, target NodeID) bool {
	if start == target {
		return true
	}
	seen := map[NodeID]struct{}{start: {}}
	stack := []NodeID{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.dependentsLocked(n) {
			if dep == target {
				return true
			}
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// dependentsLocked returns the distinct direct consumers of id. Caller holds
// g.mu.
func (g *Graph) dependentsLocked(id NodeID) []NodeID {
	var out []NodeID
	for consumer, ports := range g.inputs {
		for _, src := range ports {
			if src.Node == id {
				out = append(out, consumer)
				break
			}
		}
	}
	return out
}

// nextID generates an identifier from the type's last path segment and a
// zero-padded sequence number, so lexicographic order is creation order.
// Caller holds g.mu.
func (g *Graph) nextID(typeID string) NodeID {
	leaf := typeID
	if i := strings.LastIndexByte(typeID, '.'); i >= 0 {
		leaf = typeID[i+1:]
	}
	for {
		g.seq++
		id := NodeID(fmt.Sprintf("%s-%04d", leaf, g.seq))
		if _, taken := g.nodes[id]; !taken {
			return id
		}
	}
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
