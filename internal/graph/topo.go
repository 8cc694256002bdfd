package graph

import "fmt"

// TopologicalOrder returns every node in an order that places producers
// before consumers. Ties between independent nodes break by ascending node
// identifier, so the order is reproducible across runs for an unchanged
// graph.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return topoOrder(g.nodeSetLocked(), g.inputs)
}

func (g *Graph) nodeSetLocked() map[NodeID]struct{} {
	set := make(map[NodeID]struct{}, len(g.nodes))
	for id := range g.nodes {
		set[id] = struct{}{}
	}
	return set
}

// topoOrder is Kahn's algorithm over the subgraph induced by include, with a
// sorted ready list for the deterministic tie-break. Edges from producers
// outside include are ignored.
func topoOrder(include map[NodeID]struct{}, inputs map[NodeID]map[string]PortRef) ([]NodeID, error) {
	indegree := make(map[NodeID]int, len(include))
	dependents := make(map[NodeID][]NodeID, len(include))
	for id := range include {
		indegree[id] = 0
	}
	for consumer, ports := range inputs {
		if _, ok := include[consumer]; !ok {
			continue
		}
		producers := make(map[NodeID]struct{})
		for _, src := range ports {
			if _, ok := include[src.Node]; !ok {
				continue
			}
			producers[src.Node] = struct{}{}
		}
		for p := range producers {
			indegree[consumer]++
			dependents[p] = append(dependents[p], consumer)
		}
	}

	ready := make([]NodeID, 0, len(include))
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	order := make([]NodeID, 0, len(include))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		unlocked := make([]NodeID, 0, len(dependents[next]))
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		if len(unlocked) > 0 {
			sortIDs(unlocked)
			ready = mergeSorted(ready, unlocked)
		}
	}

	if len(order) != len(include) {
		// Unreachable while Connect enforces acyclicity; kept as a guard.
		return nil, fmt.Errorf("graph contains a cycle: ordered %d of %d nodes", len(order), len(include))
	}
	return order, nil
}

// mergeSorted merges two ascending NodeID slices.
func mergeSorted(a, b []NodeID) []NodeID {
	out := make([]NodeID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
