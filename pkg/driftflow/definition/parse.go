package definition

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// jsonDefinition is the nested-object encoding: nodes are an object keyed by
// node id. Declaration order is recovered from the raw bytes because a plain
// map loses it.
type jsonDefinition struct {
	Version     int              `json:"version"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Trigger     string           `json:"trigger"`
	Schedule    string           `json:"schedule,omitempty"`
	Variables   []Variable       `json:"variables,omitempty"`
	Nodes       codec.RawMessage `json:"nodes"`
	Edges       []Edge           `json:"edges,omitempty"`
}

// yamlDefinition is the flow encoding: nodes are an ordered list carrying
// their own ids.
type yamlDefinition struct {
	Version     int        `yaml:"version"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Trigger     string     `yaml:"trigger"`
	Schedule    string     `yaml:"schedule,omitempty"`
	Variables   []Variable `yaml:"variables,omitempty"`
	Nodes       []*Node    `yaml:"nodes"`
	Edges       []Edge     `yaml:"edges,omitempty"`
}

// Parse converts serialized definition content into a Graph. The two
// encodings are interchangeable: equivalent inputs produce equivalent graphs.
func Parse(content []byte, format string) (*Graph, error) {
	switch format {
	case FormatJSON:
		return parseJSON(content)
	case FormatYAML:
		return parseYAML(content)
	default:
		return nil, parseError("", fmt.Errorf("unsupported definition format %q", format))
	}
}

func parseJSON(content []byte) (*Graph, error) {
	var def jsonDefinition
	if err := codec.Unmarshal(content, &def); err != nil {
		return nil, parseError("", fmt.Errorf("decode json definition: %w", err))
	}
	var byID map[string]*Node
	var order []string
	if len(def.Nodes) > 0 {
		if err := codec.Unmarshal(def.Nodes, &byID); err != nil {
			return nil, parseError(def.Name, fmt.Errorf("decode nodes object: %w", err))
		}
		keys, err := codec.OrderedKeys(def.Nodes)
		if err != nil {
			return nil, parseError(def.Name, fmt.Errorf("read node order: %w", err))
		}
		order = keys
	}
	ordered := make([]*Node, 0, len(order))
	for _, id := range order {
		n := byID[id]
		if n == nil {
			n = &Node{}
		}
		cp := *n
		cp.ID = id
		ordered = append(ordered, &cp)
	}
	return buildGraph(def.Version, def.Name, def.Description, def.Trigger, def.Schedule, def.Variables, ordered, def.Edges), nil
}

func parseYAML(content []byte) (*Graph, error) {
	var def yamlDefinition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, parseError("", fmt.Errorf("decode yaml definition: %w", err))
	}
	return buildGraph(def.Version, def.Name, def.Description, def.Trigger, def.Schedule, def.Variables, def.Nodes, def.Edges), nil
}

func buildGraph(version int, name, description, trigger, schedule string, vars []Variable, nodes []*Node, edges []Edge) *Graph {
	g := &Graph{
		Version:     version,
		Name:        name,
		Description: description,
		Trigger:     trigger,
		Schedule:    schedule,
		Variables:   vars,
		Nodes:       make(map[string]*Node, len(nodes)),
		Edges:       edges,
	}
	for i := range g.Variables {
		g.Variables[i].Default = normalizeValue(g.Variables[i].Default)
	}
	for _, n := range nodes {
		n.Data = normalizeMap(n.Data)
		if _, seen := g.Nodes[n.ID]; seen {
			g.DuplicateIDs = append(g.DuplicateIDs, n.ID)
			continue
		}
		g.Nodes[n.ID] = n
		g.NodeOrder = append(g.NodeOrder, n.ID)
	}
	return g
}

// Serialize renders the graph in the requested encoding. Serializing and
// re-parsing yields an equivalent graph; serializing that again yields the
// same bytes.
func Serialize(g *Graph, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return serializeJSON(g)
	case FormatYAML:
		return serializeYAML(g)
	default:
		return nil, fmt.Errorf("unsupported definition format %q", format)
	}
}

func serializeJSON(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.NodeOrder {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := codec.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		body, err := codec.Marshal(g.Nodes[id])
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')

	def := jsonDefinition{
		Version:     g.Version,
		Name:        g.Name,
		Description: g.Description,
		Trigger:     g.Trigger,
		Schedule:    g.Schedule,
		Variables:   g.Variables,
		Nodes:       codec.RawMessage(buf.Bytes()),
		Edges:       g.Edges,
	}
	return codec.Marshal(def)
}

func serializeYAML(g *Graph) ([]byte, error) {
	nodes := make([]*Node, 0, len(g.NodeOrder))
	for _, id := range g.NodeOrder {
		nodes = append(nodes, g.Nodes[id])
	}
	def := yamlDefinition{
		Version:     g.Version,
		Name:        g.Name,
		Description: g.Description,
		Trigger:     g.Trigger,
		Schedule:    g.Schedule,
		Variables:   g.Variables,
		Nodes:       nodes,
		Edges:       g.Edges,
	}
	return yaml.Marshal(def)
}

// normalizeValue folds every numeric representation the two decoders produce
// into float64 so graphs parsed from either encoding compare equal.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case map[string]any:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func parseError(name string, err error) *domain.DefinitionError {
	return &domain.DefinitionError{Name: name, Problems: multierror.Append(nil, err)}
}
