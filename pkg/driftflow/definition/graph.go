package definition

// NodeType is the closed set of node kinds the engine can execute.
type NodeType string

const (
	NodeTrigger      NodeType = "trigger"
	NodeAction       NodeType = "action"
	NodeCondition    NodeType = "condition"
	NodeApproval     NodeType = "approval"
	NodeNotification NodeType = "notification"
	NodeDelay        NodeType = "delay"
)

// KnownNodeTypes lists every node type in declaration order.
func KnownNodeTypes() []NodeType {
	return []NodeType{NodeTrigger, NodeAction, NodeCondition, NodeApproval, NodeNotification, NodeDelay}
}

func (t NodeType) Known() bool {
	switch t {
	case NodeTrigger, NodeAction, NodeCondition, NodeApproval, NodeNotification, NodeDelay:
		return true
	}
	return false
}

// VarType is the closed set of declared variable types.
type VarType string

const (
	VarString  VarType = "string"
	VarNumber  VarType = "number"
	VarBoolean VarType = "boolean"
	VarObject  VarType = "object"
	VarSecret  VarType = "secret"
)

func (t VarType) Known() bool {
	switch t {
	case VarString, VarNumber, VarBoolean, VarObject, VarSecret:
		return true
	}
	return false
}

// Node is one vertex of the workflow graph. Data is the type-specific
// configuration bag; its shape is validated by the executor registered for
// Type, not here.
type Node struct {
	ID    string         `json:"-" yaml:"id"`
	Label string         `json:"label,omitempty" yaml:"label,omitempty"`
	Type  NodeType       `json:"type" yaml:"type"`
	Data  map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Edge is a directed connection between two nodes. Label disambiguates
// branch outcomes, e.g. a condition's "true"/"false" arms.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Variable declares an input the definition accepts. A variable is secret
// when Secret is set or its type is "secret"; secret values must never reach
// persisted snapshots in plaintext.
type Variable struct {
	Name    string  `json:"name" yaml:"name"`
	Type    VarType `json:"type" yaml:"type"`
	Default any     `json:"default,omitempty" yaml:"default,omitempty"`
	Secret  bool    `json:"isSecret,omitempty" yaml:"isSecret,omitempty"`
}

// IsSecret reports whether the variable's value must be redacted.
func (v Variable) IsSecret() bool {
	return v.Secret || v.Type == VarSecret
}

// Graph is the parsed, in-memory form of a workflow definition. NodeOrder
// preserves declaration order so execution ordering is reproducible; duplicate
// ids encountered during parsing are kept aside for the validator to report.
type Graph struct {
	Version     int
	Name        string
	Description string
	Trigger     string
	Schedule    string
	Variables   []Variable
	Nodes       map[string]*Node
	NodeOrder   []string
	Edges       []Edge

	DuplicateIDs []string
}

// IncomingEdges returns the edges pointing at the given node, in declaration
// order.
func (g *Graph) IncomingEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// OutgoingEdges returns the edges leaving the given node, in declaration
// order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Roots returns the ids of nodes with no incoming edges, in declaration order.
func (g *Graph) Roots() []string {
	targets := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		targets[e.Target] = true
	}
	var roots []string
	for _, id := range g.NodeOrder {
		if !targets[id] {
			roots = append(roots, id)
		}
	}
	return roots
}

// VariableByName returns the declared variable with the given name.
func (g *Graph) VariableByName(name string) (Variable, bool) {
	for _, v := range g.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// SecretNames returns the names of all secret variables.
func (g *Graph) SecretNames() []string {
	var names []string
	for _, v := range g.Variables {
		if v.IsSecret() {
			names = append(names, v.Name)
		}
	}
	return names
}
