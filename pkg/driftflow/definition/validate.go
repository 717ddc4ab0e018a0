package definition

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// NodeCheck validates one node's type-specific data bag. The executor
// registry supplies the real implementation; nil means structural checks only.
type NodeCheck func(n *Node) []error

// Validate enumerates every structural problem in the graph rather than
// stopping at the first: duplicate ids, dangling edge references, unreachable
// nodes, per-node configuration failures and cycles. A nil return means the
// definition may be published and run.
func Validate(g *Graph, check NodeCheck) error {
	var problems *multierror.Error

	if g.Name == "" {
		problems = multierror.Append(problems, fmt.Errorf("definition name is required"))
	}
	if g.Version < 1 {
		problems = multierror.Append(problems, fmt.Errorf("version must be at least 1, got %d", g.Version))
	}
	if !domain.ValidTrigger(g.Trigger) {
		problems = multierror.Append(problems, fmt.Errorf("trigger must be one of manual, scheduled, webhook, event; got %q", g.Trigger))
	}
	if g.Trigger == domain.TriggerScheduled {
		if g.Schedule == "" {
			problems = multierror.Append(problems, fmt.Errorf("a scheduled workflow requires a schedule"))
		} else if _, err := cron.ParseStandard(g.Schedule); err != nil {
			problems = multierror.Append(problems, fmt.Errorf("schedule %q is not a valid cron expression: %w", g.Schedule, err))
		}
	}

	problems = multierror.Append(problems, validateVariables(g)...)

	for _, id := range g.DuplicateIDs {
		problems = multierror.Append(problems, fmt.Errorf("duplicate node id %q", id))
	}

	if len(g.Nodes) == 0 {
		problems = multierror.Append(problems, fmt.Errorf("definition has no nodes"))
		return definitionError(g, problems)
	}

	var triggers []string
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.ID == "" {
			problems = multierror.Append(problems, fmt.Errorf("a node is missing its id"))
		}
		if !n.Type.Known() {
			problems = multierror.Append(problems, &domain.NodeValidationError{
				NodeID: n.ID, Field: "type", Reason: fmt.Sprintf("unknown node type %q", n.Type),
			})
			continue
		}
		if n.Type == NodeTrigger {
			triggers = append(triggers, n.ID)
		}
		if check != nil {
			for _, err := range check(n) {
				problems = multierror.Append(problems, err)
			}
		}
	}
	if len(triggers) == 0 {
		problems = multierror.Append(problems, fmt.Errorf("definition requires a trigger node"))
	}

	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.Source]; !ok {
			problems = multierror.Append(problems, fmt.Errorf("edge references unknown source node %q", e.Source))
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			problems = multierror.Append(problems, fmt.Errorf("edge references unknown target node %q", e.Target))
		}
	}

	for _, id := range unreachableFrom(g, triggers) {
		problems = multierror.Append(problems, fmt.Errorf("node %q is unreachable from the trigger", id))
	}

	if err := detectCycle(g); err != nil {
		problems = multierror.Append(problems, err)
	}

	return definitionError(g, problems)
}

func validateVariables(g *Graph) []error {
	var errs []error
	seen := make(map[string]bool, len(g.Variables))
	for _, v := range g.Variables {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("a declared variable is missing its name"))
			continue
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Errorf("duplicate variable %q", v.Name))
		}
		seen[v.Name] = true
		if !v.Type.Known() {
			errs = append(errs, fmt.Errorf("variable %q has unknown type %q", v.Name, v.Type))
		}
	}
	return errs
}

// unreachableFrom walks forward from the trigger nodes and returns every node
// id, in declaration order, that no path reaches.
func unreachableFrom(g *Graph, triggers []string) []string {
	if len(triggers) == 0 {
		return nil
	}
	visited := make(map[string]bool, len(g.Nodes))
	queue := append([]string(nil), triggers...)
	for _, id := range triggers {
		visited[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(id) {
			if _, ok := g.Nodes[e.Target]; !ok {
				continue
			}
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	var unreachable []string
	for _, id := range g.NodeOrder {
		if !visited[id] {
			unreachable = append(unreachable, id)
		}
	}
	return unreachable
}

// detectCycle runs a three-color depth-first search over the edge set.
// A back edge to a node still on the stack means the graph is cyclic.
func detectCycle(g *Graph) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Nodes))

	var visit func(id string) *domain.CycleError
	visit = func(id string) *domain.CycleError {
		color[id] = gray
		for _, e := range g.OutgoingEdges(id) {
			if _, ok := g.Nodes[e.Target]; !ok {
				continue
			}
			switch color[e.Target] {
			case gray:
				return &domain.CycleError{NodeID: e.Target}
			case white:
				if err := visit(e.Target); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range g.NodeOrder {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func definitionError(g *Graph, problems *multierror.Error) error {
	if problems == nil || len(problems.Errors) == 0 {
		return nil
	}
	return &domain.DefinitionError{Name: g.Name, Problems: problems}
}
