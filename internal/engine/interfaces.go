package engine

import (
	"database/sql"
	"time"

	"github.com/driftflow/driftflow/internal/repository"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// ExecutionStore defines the interface for run persistence, matching
// repository.ExecutionRepository.
type ExecutionStore interface {
	Save(ex *domain.WorkflowExecution) (string, error)
	FindByID(id string) (*domain.WorkflowExecution, error)
	FindPendingExecutions(size int) (*[]domain.WorkflowExecution, error)
	MarkExecutionAsScheduled(id string, engineId int64, modified time.Time) bool
	MarkExecutionStarted(id string) bool
	SaveExecutionContext(id string, context string) error
	FinishExecution(id string, status domain.ExecutionStatus, output sql.NullString, errMsg sql.NullString) bool
	RequestCancel(id string) bool
	UpdateNextActivationSpecific(id string, next time.Time) error
	ClearEngineId(id string) error
	IncrementRetryCounterAndSetNextActivation(id string, activation time.Time) error
	FindStuckExecutions(minutesRepair string, limit int) (*[]domain.WorkflowExecution, error)
	ReleaseExecutionByModified(id string, modified time.Time) bool
	FindByWorkflowID(workflowId string, limit int, offset int) (*[]domain.WorkflowExecution, error)
	GetExecutionOverview() ([]repository.ExecutionOverviewRow, error)
	GetTopRunning(limit int) (*[]domain.WorkflowExecution, error)
	GetNextToExecute(limit int) (*[]domain.WorkflowExecution, error)
}

// NodeExecutionStore defines the interface for node record persistence.
type NodeExecutionStore interface {
	Save(n *domain.NodeExecution) (string, error)
	FindByID(id string) (*domain.NodeExecution, error)
	FindAllByExecutionID(executionID string) (*[]domain.NodeExecution, error)
	Finalize(id string, status domain.NodeStatus, branch sql.NullString, output sql.NullString, errMsg sql.NullString, durationMS int64, retryable bool) bool
}

// ApprovalStore defines the interface for approval gate persistence. It is a
// superset of what the approval executor consumes; the extra methods serve
// the decision API.
type ApprovalStore interface {
	Save(a *domain.WorkflowApproval) (int64, error)
	FindByID(id int64) (*domain.WorkflowApproval, error)
	FindLatestByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error)
	FindOpenByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error)
	FindAllByExecutionID(executionID string) (*[]domain.WorkflowApproval, error)
	FindPendingForApprover(approver string) (*[]domain.WorkflowApproval, error)
	RecordDecision(id int64, status domain.ApprovalStatus, approvedBy []string, reason sql.NullString, prevApprovedBy []string) bool
	ResolveConditional(id int64, status domain.ApprovalStatus, reason sql.NullString) bool
	ExtendDeadline(id int64, deadline time.Time) error
}

// DefinitionStore defines the interface for workflow definition persistence.
type DefinitionStore interface {
	Save(def *domain.WorkflowDefinition) error
	FindByIDAndVersion(id string, version int) (*domain.WorkflowDefinition, error)
	FindLatestByID(id string) (*domain.WorkflowDefinition, error)
	FindLatestPublishedByID(id string) (*domain.WorkflowDefinition, error)
	FindByName(name string) (*domain.WorkflowDefinition, error)
	FindAll() (*[]domain.WorkflowDefinition, error)
	FindPublishedScheduled() (*[]domain.WorkflowDefinition, error)
	MarkPublished(id string, version int) bool
}

// EngineInstanceStore defines the interface for engine heartbeat persistence.
type EngineInstanceStore interface {
	Save(e *domain.EngineInstance) (int64, error)
	UpdateLastActive(id int64, ts time.Time) error
	GetInstancesByLastActive(limit int) ([]*domain.EngineInstance, error)
}
