package nodes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// Registry maps node types to their executors. It is a plain value built at
// engine construction time; tests swap in fakes by building their own.
type Registry struct {
	executors map[definition.NodeType]Executor
}

// NewRegistry builds a registry holding the six built-in executors.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{executors: make(map[definition.NodeType]Executor)}
	r.Register(&TriggerExecutor{})
	r.Register(&ActionExecutor{Provider: deps.Provider})
	r.Register(&ConditionExecutor{})
	r.Register(&ApprovalExecutor{Clock: deps.Clock, Approvals: deps.Approvals, Notifier: deps.Notifier})
	r.Register(&NotificationExecutor{Notifier: deps.Notifier})
	r.Register(&DelayExecutor{Clock: deps.Clock})
	return r
}

// Register adds or replaces the executor for one node type.
func (r *Registry) Register(ex Executor) {
	r.executors[ex.Type()] = ex
}

// Executor returns the executor for a node type.
func (r *Registry) Executor(t definition.NodeType) (Executor, bool) {
	ex, ok := r.executors[t]
	return ex, ok
}

// Check returns the per-node validation hook the definition validator calls
// for every node.
func (r *Registry) Check() definition.NodeCheck {
	return func(n *definition.Node) []error {
		ex, ok := r.executors[n.Type]
		if !ok {
			return []error{&domain.UnknownNodeTypeError{NodeID: n.ID, NodeType: string(n.Type)}}
		}
		return ex.Validate(n)
	}
}

// SafeExecute dispatches a node to its executor, converting panics and
// unknown types into failed results so nothing escapes the registry
// boundary.
func (r *Registry) SafeExecute(ctx context.Context, req *Request) (result *models.NodeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("node executor panicked", "executionId", req.ExecutionID, "nodeId", req.Node.ID, "panic", rec)
			result = models.Fail(fmt.Errorf("node %s panicked: %v", req.Node.ID, rec))
		}
	}()

	ex, ok := r.executors[req.Node.Type]
	if !ok {
		return models.Fail(&domain.UnknownNodeTypeError{NodeID: req.Node.ID, NodeType: string(req.Node.Type)})
	}
	return ex.Execute(ctx, req)
}
