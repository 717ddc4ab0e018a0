package engine

import (
	"database/sql"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/driftflow/driftflow/internal/repository"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// testClock is a manually advanced clock shared by the engine under test and
// the in-memory stores.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now().Add(d)
	return ch
}

func (c *testClock) Sleep(d time.Duration) {}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memData backs in-memory store implementations that keep the same guard
// semantics as the SQL repositories, so runner tests exercise the real
// claim, finalize and terminal-transition rules.
type memData struct {
	mu      sync.Mutex
	clock   *testClock
	execs   map[string]*domain.WorkflowExecution
	rows    []*domain.NodeExecution
	gates   map[int64]*domain.WorkflowApproval
	gateSeq int64
	defs    []*domain.WorkflowDefinition
}

func newMemData(clock *testClock) *memData {
	return &memData{
		clock: clock,
		execs: map[string]*domain.WorkflowExecution{},
		gates: map[int64]*domain.WorkflowApproval{},
	}
}

func copyExecution(ex *domain.WorkflowExecution) *domain.WorkflowExecution {
	cp := *ex
	return &cp
}

type memExecutions struct{ d *memData }

func (s *memExecutions) Save(ex *domain.WorkflowExecution) (string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.execs[ex.ID] = copyExecution(ex)
	return ex.ID, nil
}

func (s *memExecutions) FindByID(id string) (*domain.WorkflowExecution, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ex, ok := s.d.execs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyExecution(ex), nil
}

func (s *memExecutions) FindPendingExecutions(size int) (*[]domain.WorkflowExecution, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	now := s.d.clock.Now()
	var out []domain.WorkflowExecution
	for _, ex := range s.d.execs {
		if ex.Status.Terminal() || ex.EngineID.Valid || !ex.NextActivation.Valid {
			continue
		}
		if ex.NextActivation.Time.After(now) {
			continue
		}
		out = append(out, *ex)
		if len(out) >= size {
			break
		}
	}
	return &out, nil
}

func (s *memExecutions) MarkExecutionAsScheduled(id string, engineId int64, modified time.Time) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ex, ok := s.d.execs[id]
	if !ok || ex.Status.Terminal() || ex.EngineID.Valid || !ex.Modified.Equal(modified) {
		return false
	}
	ex.EngineID = sql.NullInt64{Int64: engineId, Valid: true}
	ex.Modified = s.d.clock.Now()
	return true
}

func (s *memExecutions) MarkExecutionStarted(id string) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ex, ok := s.d.execs[id]
	if !ok || ex.Status != domain.ExecutionPending {
		return false
	}
	ex.Status = domain.ExecutionRunning
	ex.Started = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
	ex.Modified = s.d.clock.Now()
	return true
}

func (s *memExecutions) SaveExecutionContext(id string, context string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if ex, ok := s.d.execs[id]; ok {
		ex.Context = sql.NullString{String: context, Valid: true}
		ex.Modified = s.d.clock.Now()
	}
	return nil
}

func (s *memExecutions) FinishExecution(id string, status domain.ExecutionStatus, output sql.NullString, errMsg sql.NullString) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ex, ok := s.d.execs[id]
	if !ok || ex.Status.Terminal() {
		return false
	}
	ex.Status = status
	ex.Output = output
	ex.Error = errMsg
	ex.Completed = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
	ex.NextActivation = sql.NullTime{}
	ex.EngineID = sql.NullInt64{}
	ex.Modified = s.d.clock.Now()
	return true
}

func (s *memExecutions) RequestCancel(id string) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ex, ok := s.d.execs[id]
	if !ok || ex.Status.Terminal() {
		return false
	}
	ex.Status = domain.ExecutionCancelled
	ex.Completed = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
	ex.NextActivation = sql.NullTime{}
	ex.Modified = s.d.clock.Now()
	return true
}

func (s *memExecutions) UpdateNextActivationSpecific(id string, next time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if ex, ok := s.d.execs[id]; ok {
		ex.NextActivation = sql.NullTime{Time: next, Valid: true}
		ex.EngineID = sql.NullInt64{}
		ex.Modified = s.d.clock.Now()
	}
	return nil
}

func (s *memExecutions) ClearEngineId(id string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if ex, ok := s.d.execs[id]; ok {
		ex.EngineID = sql.NullInt64{}
		ex.Modified = s.d.clock.Now()
	}
	return nil
}

func (s *memExecutions) IncrementRetryCounterAndSetNextActivation(id string, activation time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if ex, ok := s.d.execs[id]; ok {
		ex.RetryCount++
		ex.NextActivation = sql.NullTime{Time: activation, Valid: true}
		ex.EngineID = sql.NullInt64{}
		ex.Modified = s.d.clock.Now()
	}
	return nil
}

func (s *memExecutions) FindStuckExecutions(minutesRepair string, limit int) (*[]domain.WorkflowExecution, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	minutes, _ := strconv.Atoi(minutesRepair)
	cutoff := s.d.clock.Now().Add(-time.Duration(minutes) * time.Minute)
	var out []domain.WorkflowExecution
	for _, ex := range s.d.execs {
		if ex.EngineID.Valid && !ex.Status.Terminal() && ex.Modified.Before(cutoff) {
			out = append(out, *ex)
		}
	}
	return &out, nil
}

func (s *memExecutions) ReleaseExecutionByModified(id string, modified time.Time) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	ex, ok := s.d.execs[id]
	if !ok || !ex.Modified.Equal(modified) {
		return false
	}
	ex.EngineID = sql.NullInt64{}
	ex.RetryCount++
	ex.NextActivation = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
	ex.Modified = s.d.clock.Now()
	return true
}

func (s *memExecutions) FindByWorkflowID(workflowId string, limit int, offset int) (*[]domain.WorkflowExecution, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var all []domain.WorkflowExecution
	for _, ex := range s.d.execs {
		if ex.WorkflowID == workflowId {
			all = append(all, *ex)
		}
	}
	slices.SortFunc(all, func(a, b domain.WorkflowExecution) int {
		return b.Created.Compare(a.Created)
	})
	if offset >= len(all) {
		return &[]domain.WorkflowExecution{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return &all, nil
}

func (s *memExecutions) GetExecutionOverview() ([]repository.ExecutionOverviewRow, error) {
	return nil, nil
}

func (s *memExecutions) GetTopRunning(limit int) (*[]domain.WorkflowExecution, error) {
	return &[]domain.WorkflowExecution{}, nil
}

func (s *memExecutions) GetNextToExecute(limit int) (*[]domain.WorkflowExecution, error) {
	return &[]domain.WorkflowExecution{}, nil
}

type memNodes struct{ d *memData }

func (s *memNodes) Save(n *domain.NodeExecution) (string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *n
	s.d.rows = append(s.d.rows, &cp)
	return n.ID, nil
}

func (s *memNodes) FindByID(id string) (*domain.NodeExecution, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, row := range s.d.rows {
		if row.ID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memNodes) FindAllByExecutionID(executionID string) (*[]domain.NodeExecution, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.NodeExecution
	for _, row := range s.d.rows {
		if row.ExecutionID == executionID {
			out = append(out, *row)
		}
	}
	return &out, nil
}

func (s *memNodes) Finalize(id string, status domain.NodeStatus, branch sql.NullString, output sql.NullString, errMsg sql.NullString, durationMS int64, retryable bool) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, row := range s.d.rows {
		if row.ID != id || row.Status.Terminal() {
			continue
		}
		row.Status = status
		row.Branch = branch
		row.Output = output
		row.Error = errMsg
		row.Completed = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
		row.DurationMS = durationMS
		row.Retryable = retryable
		return true
	}
	return false
}

type memApprovals struct{ d *memData }

func (s *memApprovals) Save(a *domain.WorkflowApproval) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.gateSeq++
	cp := *a
	cp.ID = s.d.gateSeq
	s.d.gates[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memApprovals) FindByID(id int64) (*domain.WorkflowApproval, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	gate, ok := s.d.gates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *gate
	return &cp, nil
}

func (s *memApprovals) findLatest(executionID, nodeID string, pendingOnly bool) (*domain.WorkflowApproval, error) {
	var best *domain.WorkflowApproval
	for _, gate := range s.d.gates {
		if gate.ExecutionID != executionID || gate.NodeID != nodeID {
			continue
		}
		if pendingOnly && gate.Status != domain.ApprovalPending {
			continue
		}
		if best == nil || gate.ID > best.ID {
			best = gate
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	cp := *best
	return &cp, nil
}

func (s *memApprovals) FindLatestByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.findLatest(executionID, nodeID, false)
}

func (s *memApprovals) FindOpenByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.findLatest(executionID, nodeID, true)
}

func (s *memApprovals) FindAllByExecutionID(executionID string) (*[]domain.WorkflowApproval, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.WorkflowApproval
	for _, gate := range s.d.gates {
		if gate.ExecutionID == executionID {
			out = append(out, *gate)
		}
	}
	return &out, nil
}

func (s *memApprovals) FindPendingForApprover(approver string) (*[]domain.WorkflowApproval, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.WorkflowApproval
	for _, gate := range s.d.gates {
		if gate.Status == domain.ApprovalPending && slices.Contains(gate.Approvers, approver) {
			out = append(out, *gate)
		}
	}
	return &out, nil
}

func (s *memApprovals) RecordDecision(id int64, status domain.ApprovalStatus, approvedBy []string, reason sql.NullString, prevApprovedBy []string) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	gate, ok := s.d.gates[id]
	if !ok || gate.Status != domain.ApprovalPending || !slices.Equal(gate.ApprovedBy, prevApprovedBy) {
		return false
	}
	gate.Status = status
	gate.ApprovedBy = approvedBy
	gate.Reason = reason
	if status != domain.ApprovalPending {
		gate.ResolvedAt = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
	}
	return true
}

func (s *memApprovals) ResolveConditional(id int64, status domain.ApprovalStatus, reason sql.NullString) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	gate, ok := s.d.gates[id]
	if !ok || gate.Status != domain.ApprovalPending {
		return false
	}
	gate.Status = status
	gate.Reason = reason
	gate.ResolvedAt = sql.NullTime{Time: s.d.clock.Now(), Valid: true}
	return true
}

func (s *memApprovals) ExtendDeadline(id int64, deadline time.Time) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if gate, ok := s.d.gates[id]; ok {
		gate.Deadline = deadline
	}
	return nil
}

type memDefinitions struct{ d *memData }

func (s *memDefinitions) Save(def *domain.WorkflowDefinition) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *def
	s.d.defs = append(s.d.defs, &cp)
	return nil
}

func (s *memDefinitions) FindByIDAndVersion(id string, version int) (*domain.WorkflowDefinition, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, def := range s.d.defs {
		if def.ID == id && def.Version == version {
			cp := *def
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memDefinitions) findLatest(match func(*domain.WorkflowDefinition) bool) (*domain.WorkflowDefinition, error) {
	var best *domain.WorkflowDefinition
	for _, def := range s.d.defs {
		if !match(def) {
			continue
		}
		if best == nil || def.Version > best.Version {
			best = def
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	cp := *best
	return &cp, nil
}

func (s *memDefinitions) FindLatestByID(id string) (*domain.WorkflowDefinition, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.findLatest(func(def *domain.WorkflowDefinition) bool { return def.ID == id })
}

func (s *memDefinitions) FindLatestPublishedByID(id string) (*domain.WorkflowDefinition, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.findLatest(func(def *domain.WorkflowDefinition) bool { return def.ID == id && def.Published })
}

func (s *memDefinitions) FindByName(name string) (*domain.WorkflowDefinition, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.findLatest(func(def *domain.WorkflowDefinition) bool { return def.Name == name })
}

func (s *memDefinitions) FindAll() (*[]domain.WorkflowDefinition, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.WorkflowDefinition
	for _, def := range s.d.defs {
		out = append(out, *def)
	}
	return &out, nil
}

func (s *memDefinitions) FindPublishedScheduled() (*[]domain.WorkflowDefinition, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []domain.WorkflowDefinition
	for _, def := range s.d.defs {
		if def.Published && def.Trigger == domain.TriggerScheduled && def.Schedule.Valid {
			out = append(out, *def)
		}
	}
	return &out, nil
}

func (s *memDefinitions) MarkPublished(id string, version int) bool {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, def := range s.d.defs {
		if def.ID == id && def.Version == version && !def.Published {
			def.Published = true
			return true
		}
	}
	return false
}

type memInstances struct{ d *memData }

func (s *memInstances) Save(e *domain.EngineInstance) (int64, error) { return 1, nil }

func (s *memInstances) UpdateLastActive(id int64, ts time.Time) error { return nil }

func (s *memInstances) GetInstancesByLastActive(limit int) ([]*domain.EngineInstance, error) {
	return nil, nil
}

// nodeRowsFor returns the stored records for one node of one run, in
// insertion order.
func (d *memData) nodeRowsFor(executionID, nodeID string) []*domain.NodeExecution {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.NodeExecution
	for _, row := range d.rows {
		if row.ExecutionID == executionID && row.NodeID == nodeID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out
}

func (d *memData) rowCount(executionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, row := range d.rows {
		if row.ExecutionID == executionID {
			n++
		}
	}
	return n
}

func (d *memData) execution(id string) *domain.WorkflowExecution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyExecution(d.execs[id])
}

func (d *memData) gate(executionID, nodeID string) *domain.WorkflowApproval {
	d.mu.Lock()
	defer d.mu.Unlock()
	var best *domain.WorkflowApproval
	for _, gate := range d.gates {
		if gate.ExecutionID == executionID && gate.NodeID == nodeID {
			if best == nil || gate.ID > best.ID {
				best = gate
			}
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}
