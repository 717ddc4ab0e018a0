package nodes

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/driftflow/driftflow/pkg/driftflow/definition"
)

func TestParseComparison(t *testing.T) {
	tests := []struct {
		expr     string
		path     string
		operator string
		literal  any
	}{
		{`variables.env == "prod"`, "variables.env", "==", "prod"},
		{`check.count >= 10`, "check.count", ">=", float64(10)},
		{`enabled != true`, "enabled", "!=", true},
		{`attempts < 5`, "attempts", "<", float64(5)},
		{`trigger.tag == v1.4.0`, "trigger.tag", "==", "v1.4.0"},
	}
	for _, tt := range tests {
		cmp, err := parseComparison(tt.expr)
		if err != nil {
			t.Errorf("parseComparison(%q) failed: %v", tt.expr, err)
			continue
		}
		if cmp.path != tt.path || cmp.operator != tt.operator {
			t.Errorf("parseComparison(%q) = %s %s, expected %s %s",
				tt.expr, cmp.path, cmp.operator, tt.path, tt.operator)
		}
		if cmp.literal != tt.literal {
			t.Errorf("parseComparison(%q) literal = %v (%T), expected %v (%T)",
				tt.expr, cmp.literal, cmp.literal, tt.literal, tt.literal)
		}
	}
}

func TestParseComparisonRejectsBadExpressions(t *testing.T) {
	tests := []struct {
		expr   string
		reason string
	}{
		{`== 3`, "value path"},
		{`attempts 3`, "missing an operator"},
		{`attempts ==== 3`, "unsupported operator"},
		{`attempts ==`, "missing a literal"},
		{``, "value path"},
	}
	for _, tt := range tests {
		_, err := parseComparison(tt.expr)
		if err == nil {
			t.Errorf("parseComparison(%q) succeeded, expected an error", tt.expr)
			continue
		}
		if !strings.Contains(err.Error(), tt.reason) {
			t.Errorf("parseComparison(%q) = %q, expected mention of %q", tt.expr, err, tt.reason)
		}
	}
}

func TestConditionSelectsBranch(t *testing.T) {
	tests := []struct {
		expr   string
		branch string
	}{
		{`variables.env == "prod"`, "true"},
		{`variables.env == "staging"`, "false"},
		{`attempts == 3`, "true"},
		{`attempts >= 4`, "false"},
		{`check.count <= 0`, "true"},
		{`enabled == true`, "true"},
		{`enabled == "true"`, "false"},
		{`nodes.check.status == "ok"`, "true"},
		{`missing.path == 1`, "false"},
	}
	ex := &ConditionExecutor{}
	for _, tt := range tests {
		req := nodeRequest(definition.NodeCondition, map[string]any{"expression": tt.expr}, time.Now())
		res := ex.Execute(context.Background(), req)
		if !res.Success {
			t.Errorf("Execute(%q) failed: %s", tt.expr, res.Error)
			continue
		}
		if res.Branch != tt.branch {
			t.Errorf("Execute(%q) branch = %q, expected %q", tt.expr, res.Branch, tt.branch)
		}
	}
}

func TestConditionFailsOnBadExpression(t *testing.T) {
	ex := &ConditionExecutor{}
	req := nodeRequest(definition.NodeCondition, map[string]any{"expression": "attempts ==== 3"}, time.Now())
	res := ex.Execute(context.Background(), req)
	if res.Success {
		t.Fatal("Expected a failed result for an unsupported operator")
	}
	if !strings.Contains(res.Error, "unsupported operator") {
		t.Errorf("Expected the operator named, got %q", res.Error)
	}
}

func TestConditionValidate(t *testing.T) {
	ex := &ConditionExecutor{}

	errs := ex.Validate(&definition.Node{ID: "gate", Type: definition.NodeCondition})
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "required") {
		t.Errorf("Expected a required-expression error, got %v", errs)
	}

	errs = ex.Validate(&definition.Node{ID: "gate", Type: definition.NodeCondition,
		Data: map[string]any{"expression": "a && b"}})
	if len(errs) != 1 {
		t.Errorf("Expected the expression rejected, got %v", errs)
	}

	errs = ex.Validate(&definition.Node{ID: "gate", Type: definition.NodeCondition,
		Data: map[string]any{"expression": `variables.env == "prod"`}})
	if len(errs) != 0 {
		t.Errorf("Expected a valid expression, got %v", errs)
	}
}
