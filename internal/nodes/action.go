package nodes

import (
	"context"
	"fmt"

	"dario.cat/mergo"
	"github.com/spf13/cast"

	"github.com/driftflow/driftflow/internal/capability"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// Engine-internal operations that never touch a provider.
const (
	OpSetVariable = "set_variable"
	OpTransform   = "transform"
)

// ActionExecutor dispatches on a closed set of operation names. Environment
// work goes through the capability provider; set_variable and transform are
// pure context manipulation.
type ActionExecutor struct {
	Provider capability.Provider
}

func (e *ActionExecutor) Type() definition.NodeType {
	return definition.NodeAction
}

func (e *ActionExecutor) Validate(n *definition.Node) []error {
	var errs []error
	require := func(field string) {
		if dataString(n.Data, field) == "" {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: field, Reason: "required"})
		}
	}

	op := dataString(n.Data, "operation")
	switch op {
	case "":
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "operation", Reason: "required"})
	case capability.OpDiscover:
		require("target")
	case capability.OpSimulate, capability.OpApply, capability.OpRevert, capability.OpQuery:
		require("target")
		require("statement")
	case capability.OpHTTP:
		require("url")
	case OpSetVariable:
		require("name")
	case OpTransform:
		if n.Data == nil {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "value", Reason: "transform needs a value or a merge list"})
			break
		}
		_, hasValue := n.Data["value"]
		_, hasMerge := n.Data["merge"]
		if !hasValue && !hasMerge {
			errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "value", Reason: "transform needs a value or a merge list"})
		}
	default:
		errs = append(errs, &domain.NodeValidationError{NodeID: n.ID, Field: "operation", Reason: fmt.Sprintf("unknown operation %q", op)})
	}
	return errs
}

func (e *ActionExecutor) Execute(ctx context.Context, req *Request) *models.NodeResult {
	op := dataString(req.Data, "operation")
	switch op {
	case OpSetVariable:
		return e.setVariable(req)
	case OpTransform:
		return e.transform(req)
	case capability.OpDiscover, capability.OpSimulate, capability.OpApply, capability.OpRevert, capability.OpQuery, capability.OpHTTP:
		return e.provide(ctx, op, req)
	default:
		return models.Fail(fmt.Errorf("unknown operation %q on node %s", op, req.Node.ID))
	}
}

func (e *ActionExecutor) provide(ctx context.Context, op string, req *Request) *models.NodeResult {
	target := dataString(req.Data, "target")
	if op == capability.OpHTTP {
		target = dataString(req.Data, "url")
	}

	capReq := capability.Request{
		Operation: op,
		Target:    target,
		Statement: dataString(req.Data, "statement"),
		Method:    dataString(req.Data, "method"),
	}
	if h, ok := req.Data["headers"]; ok {
		capReq.Headers = cast.ToStringMapString(h)
	}
	if p, ok := req.Data["payload"]; ok {
		if m, ok := p.(map[string]any); ok {
			capReq.Payload = m
		} else {
			capReq.Payload = cast.ToStringMap(p)
		}
	}

	result, err := e.Provider.Execute(ctx, capReq)
	if err != nil {
		res := models.Fail(&domain.ExecutionError{NodeID: req.Node.ID, Op: op, Err: err})
		res.Retryable = true
		if result != nil {
			res.Output = result.Data
		}
		return res
	}
	return models.Succeed(result.Data)
}

func (e *ActionExecutor) setVariable(req *Request) *models.NodeResult {
	name := dataString(req.Data, "name")
	if name == "" {
		return models.Fail(fmt.Errorf("set_variable on node %s needs a name", req.Node.ID))
	}
	value := req.Data["value"]
	res := models.Succeed(map[string]any{"name": name, "value": value})
	res.Vars = map[string]any{name: value}
	return res
}

func (e *ActionExecutor) transform(req *Request) *models.NodeResult {
	if raw, ok := req.Data["merge"]; ok {
		parts, ok := raw.([]any)
		if !ok {
			return models.Fail(fmt.Errorf("transform merge on node %s must be a list of objects", req.Node.ID))
		}
		merged := map[string]any{}
		for i, part := range parts {
			m, ok := part.(map[string]any)
			if !ok {
				return models.Fail(fmt.Errorf("transform merge entry %d on node %s is not an object", i, req.Node.ID))
			}
			if err := mergo.Merge(&merged, m, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
				return models.Fail(fmt.Errorf("transform merge on node %s: %w", req.Node.ID, err))
			}
		}
		return models.Succeed(map[string]any{"result": merged})
	}
	return models.Succeed(map[string]any{"result": req.Data["value"]})
}
