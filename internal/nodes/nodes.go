package nodes

import (
	"context"
	"database/sql"
	"time"

	"github.com/driftflow/driftflow/internal/capability"
	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
	"github.com/driftflow/driftflow/pkg/driftflow/resolver"
)

// Request carries everything one node needs to execute.
type Request struct {
	ExecutionID string
	WorkflowID  string
	Node        *definition.Node

	// Data is the node's configuration after placeholder resolution.
	Data map[string]any

	// Vars is the run's layered lookup context, for executors that read
	// paths directly (condition expressions).
	Vars *resolver.Context

	// Attempt is 0 for the first try of this node in this run.
	Attempt int

	// Resuming is true when the run was suspended at this node and is being
	// picked back up.
	Resuming bool

	// StartedAt is when this node's attempt first began. Stable across
	// suspensions, so executors can derive deterministic wakeup targets.
	StartedAt time.Time
}

// Executor performs one node type's work. Execute must not panic or leak
// errors; every failure comes back inside the NodeResult.
type Executor interface {
	Type() definition.NodeType
	Validate(n *definition.Node) []error
	Execute(ctx context.Context, req *Request) *models.NodeResult
}

// ApprovalStore is the slice of approval persistence the approval executor
// needs.
type ApprovalStore interface {
	Save(a *domain.WorkflowApproval) (int64, error)
	FindLatestByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error)
	ResolveConditional(id int64, status domain.ApprovalStatus, reason sql.NullString) bool
	ExtendDeadline(id int64, deadline time.Time) error
}

// Deps are the collaborators shared by the built-in executors.
type Deps struct {
	Clock     core.Clock
	Provider  capability.Provider
	Notifier  notify.Notifier
	Approvals ApprovalStore
}

func dataString(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
