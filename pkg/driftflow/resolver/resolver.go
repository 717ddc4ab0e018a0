package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/spf13/cast"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
)

// undefined is the sentinel a missing path resolves to. Resolution never
// panics or errors on a missing value; the calling executor decides whether
// that matters.
type undefined struct{}

func (undefined) String() string { return "undefined" }

func (undefined) MarshalJSON() ([]byte, error) { return []byte(`"undefined"`), nil }

var Undefined = undefined{}

// IsUndefined reports whether a resolved value is the missing-path sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Context is the layered namespace placeholders resolve against: the current
// actor, the run's effective variables, the trigger input, and prior node
// outputs keyed by node id.
type Context struct {
	Actor     map[string]any
	Variables map[string]any
	Trigger   map[string]any
	Outputs   map[string]map[string]any
}

func NewContext(actor core.Actor, vars, trigger map[string]any, outputs map[string]map[string]any) *Context {
	return &Context{
		Actor:     map[string]any{"id": actor.ID, "team": actor.Team},
		Variables: vars,
		Trigger:   trigger,
		Outputs:   outputs,
	}
}

// Lookup walks a dotted path through the context. Roots are tried in order:
// the explicit prefixes actor/variables/vars/trigger/nodes, then a node id,
// then a bare variable name.
func Lookup(path string, ctx *Context) (any, bool) {
	parts := strings.Split(strings.TrimSpace(path), ".")
	if len(parts) == 0 || parts[0] == "" {
		return nil, false
	}
	root, rest := parts[0], parts[1:]
	switch root {
	case "actor":
		return descend(ctx.Actor, rest)
	case "variables", "vars":
		return descend(ctx.Variables, rest)
	case "trigger":
		return descend(ctx.Trigger, rest)
	case "nodes":
		if len(rest) == 0 {
			return nil, false
		}
		out, ok := ctx.Outputs[rest[0]]
		if !ok {
			return nil, false
		}
		return descend(out, rest[1:])
	}
	if out, ok := ctx.Outputs[root]; ok {
		return descend(out, rest)
	}
	if v, ok := ctx.Variables[root]; ok {
		if len(rest) == 0 {
			return v, true
		}
		return descendValue(v, rest)
	}
	return nil, false
}

func descend(m map[string]any, parts []string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if len(parts) == 0 {
		return m, true
	}
	v, ok := m[parts[0]]
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return v, true
	}
	return descendValue(v, parts[1:])
}

func descendValue(v any, parts []string) (any, bool) {
	for _, part := range parts {
		switch container := v.(type) {
		case map[string]any:
			next, ok := container[part]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(container) {
				return nil, false
			}
			v = container[idx]
		default:
			return nil, false
		}
	}
	return v, true
}

// Resolve substitutes every {{ path }} placeholder in the template with the
// string form of its value; missing paths render as "undefined".
func Resolve(template string, ctx *Context) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.Index(rest[open:], "}}")
		if closing < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		path := rest[open+2 : open+closing]
		v, ok := Lookup(path, ctx)
		if !ok {
			b.WriteString(Undefined.String())
		} else {
			b.WriteString(Render(v))
		}
		rest = rest[open+closing+2:]
	}
}

// ResolveObject recursively resolves placeholders inside nested containers.
// A string that is exactly one placeholder yields the raw typed value instead
// of a rendered string, so numbers and objects survive substitution.
func ResolveObject(value any, ctx *Context) any {
	switch v := value.(type) {
	case string:
		if path, only := solePlaceholder(v); only {
			resolved, ok := Lookup(path, ctx)
			if !ok {
				return Undefined
			}
			return resolved
		}
		return Resolve(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = ResolveObject(item, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ResolveObject(item, ctx)
		}
		return out
	default:
		return value
	}
}

func solePlaceholder(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") {
		return "", false
	}
	inner := t[2 : len(t)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// Render converts a resolved value into its template string form.
func Render(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case undefined:
		return val.String()
	case string:
		return val
	case bool, int, int64, float64:
		return cast.ToString(val)
	default:
		b, err := codec.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// EffectiveVariables overlays the invocation input onto the declared
// defaults (input wins) and coerces each value to its declared type.
func EffectiveVariables(declared []definition.Variable, input map[string]any) (map[string]any, error) {
	vars := make(map[string]any, len(declared))
	for _, v := range declared {
		if v.Default != nil {
			vars[v.Name] = v.Default
		}
	}
	if len(input) > 0 {
		if err := mergo.Merge(&vars, input, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge input variables: %w", err)
		}
	}
	for _, decl := range declared {
		raw, ok := vars[decl.Name]
		if !ok {
			continue
		}
		coerced, err := coerce(raw, decl.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", decl.Name, err)
		}
		vars[decl.Name] = coerced
	}
	return vars, nil
}

func coerce(v any, t definition.VarType) (any, error) {
	switch t {
	case definition.VarString, definition.VarSecret:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a string value, got %T", v)
		}
		return s, nil
	case definition.VarNumber:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("expected a numeric value, got %v", v)
		}
		return f, nil
	case definition.VarBoolean:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean value, got %v", v)
		}
		return b, nil
	case definition.VarObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected an object value, got %T", v)
	default:
		return v, nil
	}
}
