package nodes

import (
	"context"

	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// TriggerExecutor starts a run. Its output exposes who and what started the
// run so later nodes can reference it by the trigger node's id.
type TriggerExecutor struct{}

func (e *TriggerExecutor) Type() definition.NodeType {
	return definition.NodeTrigger
}

func (e *TriggerExecutor) Validate(n *definition.Node) []error {
	return nil
}

func (e *TriggerExecutor) Execute(ctx context.Context, req *Request) *models.NodeResult {
	output := map[string]any{
		"actor": req.Vars.Actor["id"],
		"team":  req.Vars.Actor["team"],
	}
	for k, v := range req.Vars.Trigger {
		output[k] = v
	}
	return models.Succeed(output)
}
