package graph

import "github.com/zclconf/go-cty/cty"

// SnapshotNode is the frozen view of one node.
type SnapshotNode struct {
	ID       NodeID
	TypeID   string
	Params   map[string]cty.Value
	Position [2]float64
}

// Snapshot is an immutable copy of the graph structure taken at planning
// time. A run executes entirely against its snapshot; later edits to the
// live graph are invisible to it.
type Snapshot struct {
	nodes  map[NodeID]SnapshotNode
	inputs map[NodeID]map[string]PortRef
	dirty  map[NodeID]struct{}
	order  []NodeID
}

// Snapshot copies the current structure and computes the full topological
// order once. cty values are immutable, so parameter maps are shallow-copied.
func (g *Graph) Snapshot() (*Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, err := topoOrder(g.nodeSetLocked(), g.inputs)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		nodes:  make(map[NodeID]SnapshotNode, len(g.nodes)),
		inputs: make(map[NodeID]map[string]PortRef, len(g.inputs)),
		dirty:  make(map[NodeID]struct{}, len(g.dirty)),
		order:  order,
	}
	for id, n := range g.nodes {
		params := make(map[string]cty.Value, len(n.params))
		for k, v := range n.params {
			params[k] = v
		}
		s.nodes[id] = SnapshotNode{ID: id, TypeID: n.typeID, Params: params, Position: n.position}
	}
	for consumer, ports := range g.inputs {
		cp := make(map[string]PortRef, len(ports))
		for port, src := range ports {
			cp[port] = src
		}
		s.inputs[consumer] = cp
	}
	for id := range g.dirty {
		s.dirty[id] = struct{}{}
	}
	return s, nil
}

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Order returns the precomputed deterministic topological order.
func (s *Snapshot) Order() []NodeID { return s.order }

// Node returns the frozen view of one node.
func (s *Snapshot) Node(id NodeID) (SnapshotNode, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Inputs returns the input connections of a node: input port -> producer
// output. The returned map is owned by the snapshot; do not mutate.
func (s *Snapshot) Inputs(id NodeID) map[string]PortRef {
	return s.inputs[id]
}

// Dirty reports whether the node was dirty when the snapshot was taken.
func (s *Snapshot) Dirty(id NodeID) bool {
	_, ok := s.dirty[id]
	return ok
}

// DirtySet returns the dirty node identifiers in ascending order.
func (s *Snapshot) DirtySet() []NodeID {
	out := make([]NodeID, 0, len(s.dirty))
	for id := range s.dirty {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

// Dependents returns the distinct direct consumers of each node.
func (s *Snapshot) Dependents() map[NodeID][]NodeID {
	deps := make(map[NodeID][]NodeID, len(s.nodes))
	for consumer, ports := range s.inputs {
		seen := make(map[NodeID]struct{})
		for _, src := range ports {
			if _, dup := seen[src.Node]; dup {
				continue
			}
			seen[src.Node] = struct{}{}
			deps[src.Node] = append(deps[src.Node], consumer)
		}
	}
	for id := range deps {
		sortIDs(deps[id])
	}
	return deps
}

// Descendants returns from plus every node reachable forward from it.
func (s *Snapshot) Descendants(from map[NodeID]struct{}) map[NodeID]struct{} {
	deps := s.Dependents()
	out := make(map[NodeID]struct{}, len(from))
	var stack []NodeID
	for id := range from {
		out[id] = struct{}{}
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range deps[n] {
			if _, ok := out[d]; !ok {
				out[d] = struct{}{}
				stack = append(stack, d)
			}
		}
	}
	return out
}

// Ancestors returns from plus every node reachable backward from it.
func (s *Snapshot) Ancestors(from map[NodeID]struct{}) map[NodeID]struct{} {
	out := make(map[NodeID]struct{}, len(from))
	var stack []NodeID
	for id := range from {
		out[id] = struct{}{}
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, src := range s.inputs[n] {
			if _, ok := out[src.Node]; !ok {
				out[src.Node] = struct{}{}
				stack = append(stack, src.Node)
			}
		}
	}
	return out
}
