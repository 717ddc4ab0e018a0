package controllers

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/driftflow/driftflow/internal/capability"
	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/internal/nodes"
	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/internal/repository"
	"github.com/driftflow/driftflow/internal/secrets"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// Mock stores for controller tests, implementing the engine store
// interfaces. Methods not set fall back to harmless defaults.

type MockExecutionStore struct {
	SaveFunc                        func(ex *domain.WorkflowExecution) (string, error)
	FindByIDFunc                    func(id string) (*domain.WorkflowExecution, error)
	FindByWorkflowIDFunc            func(workflowId string, limit int, offset int) (*[]domain.WorkflowExecution, error)
	RequestCancelFunc               func(id string) bool
	GetExecutionOverviewFunc        func() ([]repository.ExecutionOverviewRow, error)
	GetTopRunningFunc               func(limit int) (*[]domain.WorkflowExecution, error)
	GetNextToExecuteFunc            func(limit int) (*[]domain.WorkflowExecution, error)
	UpdateNextActivationSpecificFun func(id string, next time.Time) error
}

func (m *MockExecutionStore) Save(ex *domain.WorkflowExecution) (string, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ex)
	}
	return ex.ID, nil
}
func (m *MockExecutionStore) FindByID(id string) (*domain.WorkflowExecution, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockExecutionStore) FindPendingExecutions(size int) (*[]domain.WorkflowExecution, error) {
	return &[]domain.WorkflowExecution{}, nil
}
func (m *MockExecutionStore) MarkExecutionAsScheduled(id string, engineId int64, modified time.Time) bool {
	return true
}
func (m *MockExecutionStore) MarkExecutionStarted(id string) bool              { return true }
func (m *MockExecutionStore) SaveExecutionContext(id string, ctx string) error { return nil }
func (m *MockExecutionStore) FinishExecution(id string, status domain.ExecutionStatus, output sql.NullString, errMsg sql.NullString) bool {
	return true
}
func (m *MockExecutionStore) RequestCancel(id string) bool {
	if m.RequestCancelFunc != nil {
		return m.RequestCancelFunc(id)
	}
	return true
}
func (m *MockExecutionStore) UpdateNextActivationSpecific(id string, next time.Time) error {
	if m.UpdateNextActivationSpecificFun != nil {
		return m.UpdateNextActivationSpecificFun(id, next)
	}
	return nil
}
func (m *MockExecutionStore) ClearEngineId(id string) error { return nil }
func (m *MockExecutionStore) IncrementRetryCounterAndSetNextActivation(id string, activation time.Time) error {
	return nil
}
func (m *MockExecutionStore) FindStuckExecutions(minutesRepair string, limit int) (*[]domain.WorkflowExecution, error) {
	return &[]domain.WorkflowExecution{}, nil
}
func (m *MockExecutionStore) ReleaseExecutionByModified(id string, modified time.Time) bool {
	return true
}
func (m *MockExecutionStore) FindByWorkflowID(workflowId string, limit int, offset int) (*[]domain.WorkflowExecution, error) {
	if m.FindByWorkflowIDFunc != nil {
		return m.FindByWorkflowIDFunc(workflowId, limit, offset)
	}
	return &[]domain.WorkflowExecution{}, nil
}
func (m *MockExecutionStore) GetExecutionOverview() ([]repository.ExecutionOverviewRow, error) {
	if m.GetExecutionOverviewFunc != nil {
		return m.GetExecutionOverviewFunc()
	}
	return nil, nil
}
func (m *MockExecutionStore) GetTopRunning(limit int) (*[]domain.WorkflowExecution, error) {
	if m.GetTopRunningFunc != nil {
		return m.GetTopRunningFunc(limit)
	}
	return &[]domain.WorkflowExecution{}, nil
}
func (m *MockExecutionStore) GetNextToExecute(limit int) (*[]domain.WorkflowExecution, error) {
	if m.GetNextToExecuteFunc != nil {
		return m.GetNextToExecuteFunc(limit)
	}
	return &[]domain.WorkflowExecution{}, nil
}

type MockNodeExecutionStore struct {
	FindAllByExecutionIDFunc func(executionID string) (*[]domain.NodeExecution, error)
}

func (m *MockNodeExecutionStore) Save(n *domain.NodeExecution) (string, error) { return n.ID, nil }
func (m *MockNodeExecutionStore) FindByID(id string) (*domain.NodeExecution, error) {
	return nil, sql.ErrNoRows
}
func (m *MockNodeExecutionStore) FindAllByExecutionID(executionID string) (*[]domain.NodeExecution, error) {
	if m.FindAllByExecutionIDFunc != nil {
		return m.FindAllByExecutionIDFunc(executionID)
	}
	return &[]domain.NodeExecution{}, nil
}
func (m *MockNodeExecutionStore) Finalize(id string, status domain.NodeStatus, branch sql.NullString, output sql.NullString, errMsg sql.NullString, durationMS int64, retryable bool) bool {
	return true
}

type MockApprovalStore struct {
	FindOpenByExecutionAndNodeFunc func(executionID string, nodeID string) (*domain.WorkflowApproval, error)
	FindAllByExecutionIDFunc       func(executionID string) (*[]domain.WorkflowApproval, error)
	FindPendingForApproverFunc     func(approver string) (*[]domain.WorkflowApproval, error)
	FindByIDFunc                   func(id int64) (*domain.WorkflowApproval, error)
	RecordDecisionFunc             func(id int64, status domain.ApprovalStatus, approvedBy []string, reason sql.NullString, prevApprovedBy []string) bool
}

func (m *MockApprovalStore) Save(a *domain.WorkflowApproval) (int64, error) { return 1, nil }
func (m *MockApprovalStore) FindByID(id int64) (*domain.WorkflowApproval, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockApprovalStore) FindLatestByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	return nil, sql.ErrNoRows
}
func (m *MockApprovalStore) FindOpenByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	if m.FindOpenByExecutionAndNodeFunc != nil {
		return m.FindOpenByExecutionAndNodeFunc(executionID, nodeID)
	}
	return nil, sql.ErrNoRows
}
func (m *MockApprovalStore) FindAllByExecutionID(executionID string) (*[]domain.WorkflowApproval, error) {
	if m.FindAllByExecutionIDFunc != nil {
		return m.FindAllByExecutionIDFunc(executionID)
	}
	return &[]domain.WorkflowApproval{}, nil
}
func (m *MockApprovalStore) FindPendingForApprover(approver string) (*[]domain.WorkflowApproval, error) {
	if m.FindPendingForApproverFunc != nil {
		return m.FindPendingForApproverFunc(approver)
	}
	return &[]domain.WorkflowApproval{}, nil
}
func (m *MockApprovalStore) RecordDecision(id int64, status domain.ApprovalStatus, approvedBy []string, reason sql.NullString, prevApprovedBy []string) bool {
	if m.RecordDecisionFunc != nil {
		return m.RecordDecisionFunc(id, status, approvedBy, reason, prevApprovedBy)
	}
	return true
}
func (m *MockApprovalStore) ResolveConditional(id int64, status domain.ApprovalStatus, reason sql.NullString) bool {
	return true
}
func (m *MockApprovalStore) ExtendDeadline(id int64, deadline time.Time) error { return nil }

type MockDefinitionStore struct {
	SaveFunc                    func(def *domain.WorkflowDefinition) error
	FindByIDAndVersionFunc      func(id string, version int) (*domain.WorkflowDefinition, error)
	FindLatestByIDFunc          func(id string) (*domain.WorkflowDefinition, error)
	FindLatestPublishedByIDFunc func(id string) (*domain.WorkflowDefinition, error)
	FindByNameFunc              func(name string) (*domain.WorkflowDefinition, error)
	FindAllFunc                 func() (*[]domain.WorkflowDefinition, error)
	MarkPublishedFunc           func(id string, version int) bool
}

func (m *MockDefinitionStore) Save(def *domain.WorkflowDefinition) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(def)
	}
	return nil
}
func (m *MockDefinitionStore) FindByIDAndVersion(id string, version int) (*domain.WorkflowDefinition, error) {
	if m.FindByIDAndVersionFunc != nil {
		return m.FindByIDAndVersionFunc(id, version)
	}
	return nil, sql.ErrNoRows
}
func (m *MockDefinitionStore) FindLatestByID(id string) (*domain.WorkflowDefinition, error) {
	if m.FindLatestByIDFunc != nil {
		return m.FindLatestByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockDefinitionStore) FindLatestPublishedByID(id string) (*domain.WorkflowDefinition, error) {
	if m.FindLatestPublishedByIDFunc != nil {
		return m.FindLatestPublishedByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockDefinitionStore) FindByName(name string) (*domain.WorkflowDefinition, error) {
	if m.FindByNameFunc != nil {
		return m.FindByNameFunc(name)
	}
	return nil, sql.ErrNoRows
}
func (m *MockDefinitionStore) FindAll() (*[]domain.WorkflowDefinition, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc()
	}
	return &[]domain.WorkflowDefinition{}, nil
}
func (m *MockDefinitionStore) FindPublishedScheduled() (*[]domain.WorkflowDefinition, error) {
	return &[]domain.WorkflowDefinition{}, nil
}
func (m *MockDefinitionStore) MarkPublished(id string, version int) bool {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(id, version)
	}
	return true
}

type MockEngineInstanceStore struct {
	GetInstancesByLastActiveFunc func(limit int) ([]*domain.EngineInstance, error)
}

func (m *MockEngineInstanceStore) Save(e *domain.EngineInstance) (int64, error)    { return 1, nil }
func (m *MockEngineInstanceStore) UpdateLastActive(id int64, ts time.Time) error   { return nil }
func (m *MockEngineInstanceStore) GetInstancesByLastActive(limit int) ([]*domain.EngineInstance, error) {
	if m.GetInstancesByLastActiveFunc != nil {
		return m.GetInstancesByLastActiveFunc(limit)
	}
	return nil, nil
}

type managerMocks struct {
	execs     *MockExecutionStore
	nodeExecs *MockNodeExecutionStore
	approvals *MockApprovalStore
	defs      *MockDefinitionStore
	instances *MockEngineInstanceStore
}

func newTestManager(t *testing.T, mocks managerMocks) *engine.Manager {
	t.Helper()
	if mocks.execs == nil {
		mocks.execs = &MockExecutionStore{}
	}
	if mocks.nodeExecs == nil {
		mocks.nodeExecs = &MockNodeExecutionStore{}
	}
	if mocks.approvals == nil {
		mocks.approvals = &MockApprovalStore{}
	}
	if mocks.defs == nil {
		mocks.defs = &MockDefinitionStore{}
	}
	if mocks.instances == nil {
		mocks.instances = &MockEngineInstanceStore{}
	}

	box, err := secrets.NewBox([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("Failed to build secrets box: %v", err)
	}
	clock := core.NewRealClock()
	registry := nodes.NewRegistry(nodes.Deps{
		Clock:     clock,
		Provider:  capability.NewSimulationProvider(),
		Notifier:  notify.LogNotifier{},
		Approvals: mocks.approvals,
	})
	return engine.NewManager(
		mocks.execs, mocks.nodeExecs, mocks.approvals, mocks.defs, mocks.instances,
		registry, box, clock)
}

// actorRequest stamps the identity RequireActor would inject, so handlers can
// be called directly.
func actorRequest(req *http.Request) *http.Request {
	ctx := core.WithActor(req.Context(), core.Actor{ID: "release-bot", Team: "platform"})
	return req.WithContext(ctx)
}

const noticeFlowYAML = `
version: 1
name: release-notice
trigger: manual
nodes:
  - id: start
    type: trigger
  - id: announce
    type: notification
    data:
      channel: slack
      target: "#releases"
      message: "release went out"
edges:
  - source: start
    target: announce
`
