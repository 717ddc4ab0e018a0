package nodes

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
	"github.com/driftflow/driftflow/pkg/driftflow/resolver"
)

// ConditionExecutor evaluates the restricted comparison grammar
// "<path> <operator> <literal>". The outcome selects the "true" or "false"
// outgoing edge. Anything outside the grammar is rejected at validation,
// never evaluated.
type ConditionExecutor struct{}

func (e *ConditionExecutor) Type() definition.NodeType {
	return definition.NodeCondition
}

func (e *ConditionExecutor) Validate(n *definition.Node) []error {
	expr := dataString(n.Data, "expression")
	if expr == "" {
		return []error{&domain.NodeValidationError{NodeID: n.ID, Field: "expression", Reason: "required"}}
	}
	if _, err := parseComparison(expr); err != nil {
		return []error{&domain.NodeValidationError{NodeID: n.ID, Field: "expression", Reason: err.Error()}}
	}
	return nil
}

func (e *ConditionExecutor) Execute(ctx context.Context, req *Request) *models.NodeResult {
	expr := dataString(req.Data, "expression")
	cmp, err := parseComparison(expr)
	if err != nil {
		return models.Fail(err)
	}

	left, ok := resolver.Lookup(cmp.path, req.Vars)
	if !ok {
		left = resolver.Undefined
	}

	verdict := evaluate(left, cmp)
	branch := "false"
	if verdict {
		branch = "true"
	}
	res := models.Succeed(map[string]any{"result": verdict, "expression": expr})
	res.Branch = branch
	return res
}

// comparison is one parsed "<path> <operator> <literal>" expression.
type comparison struct {
	path     string
	operator string
	literal  any
}

func isPathChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.' || c == '-'
}

func isOperatorChar(c byte) bool {
	return c == '=' || c == '!' || c == '<' || c == '>'
}

// parseComparison scans the expression with a small hand tokenizer. The
// literal is JSON-decoded when possible and kept as a plain string
// otherwise.
func parseComparison(expr string) (*comparison, error) {
	s := expr
	i, n := 0, len(s)
	skipSpaces := func() {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	skipSpaces()
	start := i
	for i < n && isPathChar(s[i]) {
		i++
	}
	path := s[start:i]
	if path == "" {
		return nil, fmt.Errorf("expression %q must start with a value path", expr)
	}

	skipSpaces()
	start = i
	for i < n && isOperatorChar(s[i]) {
		i++
	}
	op := s[start:i]
	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
	case "":
		return nil, fmt.Errorf("expression %q is missing an operator", expr)
	default:
		return nil, fmt.Errorf("unsupported operator %q in expression %q", op, expr)
	}

	literal := strings.TrimSpace(s[i:])
	if literal == "" {
		return nil, fmt.Errorf("expression %q is missing a literal", expr)
	}

	cmp := &comparison{path: path, operator: op}
	var decoded any
	if err := codec.Unmarshal([]byte(literal), &decoded); err == nil {
		cmp.literal = decoded
	} else {
		cmp.literal = literal
	}
	return cmp, nil
}

func evaluate(left any, cmp *comparison) bool {
	switch cmp.operator {
	case "==":
		return equalValues(left, cmp.literal)
	case "!=":
		return !equalValues(left, cmp.literal)
	}

	// Ordering operators need both sides numeric, anything else is false.
	lf, lok := toFloat(left)
	rf, rok := toFloat(cmp.literal)
	if !lok || !rok {
		return false
	}
	switch cmp.operator {
	case "<":
		return lf < rf
	case ">":
		return lf > rf
	case "<=":
		return lf <= rf
	case ">=":
		return lf >= rf
	}
	return false
}

// equalValues compares with numeric unification but no cross-type coercion;
// a missing path equals nothing.
func equalValues(left, right any) bool {
	if resolver.IsUndefined(left) {
		return false
	}
	if lf, ok := toFloat(left); ok {
		rf, ok := toFloat(right)
		return ok && lf == rf
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	case nil:
		return right == nil
	}
	return reflect.DeepEqual(left, right)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
