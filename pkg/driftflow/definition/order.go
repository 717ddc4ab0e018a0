package definition

import "github.com/driftflow/driftflow/pkg/driftflow/domain"

// ExecutionOrder computes the topological order the engine visits nodes in.
// Ties between nodes at equal depth are broken by declaration order, so the
// result is deterministic for a given graph. A cycle yields a CycleError.
func ExecutionOrder(g *Graph) ([]*Node, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for _, id := range g.NodeOrder {
		indegree[id] = 0
	}
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.Source]; !ok {
			continue
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			continue
		}
		indegree[e.Target]++
	}

	placed := make(map[string]bool, len(g.Nodes))
	order := make([]*Node, 0, len(g.Nodes))
	for len(order) < len(g.NodeOrder) {
		next := ""
		for _, id := range g.NodeOrder {
			if !placed[id] && indegree[id] == 0 {
				next = id
				break
			}
		}
		if next == "" {
			for _, id := range g.NodeOrder {
				if !placed[id] {
					return nil, &domain.CycleError{NodeID: id}
				}
			}
			break
		}
		placed[next] = true
		order = append(order, g.Nodes[next])
		for _, e := range g.OutgoingEdges(next) {
			if _, ok := g.Nodes[e.Target]; ok {
				indegree[e.Target]--
			}
		}
	}
	return order, nil
}
