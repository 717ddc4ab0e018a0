package nodes

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/driftflow/driftflow/internal/notify"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/resolver"
)

// testClock is a manually advanced clock for executor tests.
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

// captureNotifier records every message instead of delivering it.
type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *captureNotifier) Notify(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Message, len(n.msgs))
	copy(out, n.msgs)
	return out
}

// gateStore is an ApprovalStore double with per-test overrides.
type gateStore struct {
	SaveFunc                         func(a *domain.WorkflowApproval) (int64, error)
	FindLatestByExecutionAndNodeFunc func(executionID string, nodeID string) (*domain.WorkflowApproval, error)
	ResolveConditionalFunc           func(id int64, status domain.ApprovalStatus, reason sql.NullString) bool
	ExtendDeadlineFunc               func(id int64, deadline time.Time) error
}

func (s *gateStore) Save(a *domain.WorkflowApproval) (int64, error) {
	if s.SaveFunc != nil {
		return s.SaveFunc(a)
	}
	return 1, nil
}

func (s *gateStore) FindLatestByExecutionAndNode(executionID string, nodeID string) (*domain.WorkflowApproval, error) {
	if s.FindLatestByExecutionAndNodeFunc != nil {
		return s.FindLatestByExecutionAndNodeFunc(executionID, nodeID)
	}
	return nil, sql.ErrNoRows
}

func (s *gateStore) ResolveConditional(id int64, status domain.ApprovalStatus, reason sql.NullString) bool {
	if s.ResolveConditionalFunc != nil {
		return s.ResolveConditionalFunc(id, status, reason)
	}
	return true
}

func (s *gateStore) ExtendDeadline(id int64, deadline time.Time) error {
	if s.ExtendDeadlineFunc != nil {
		return s.ExtendDeadlineFunc(id, deadline)
	}
	return nil
}

func testVars() *resolver.Context {
	return resolver.NewContext(
		core.Actor{ID: "release-bot", Team: "platform"},
		map[string]any{"env": "prod", "attempts": 3, "enabled": true},
		map[string]any{"tag": "v1.4.0"},
		map[string]map[string]any{
			"check": {"count": float64(0), "status": "ok"},
		},
	)
}

func nodeRequest(nodeType definition.NodeType, data map[string]any, started time.Time) *Request {
	return &Request{
		ExecutionID: "run-1",
		WorkflowID:  "wf-1",
		Node:        &definition.Node{ID: "n1", Type: nodeType, Data: data},
		Data:        data,
		Vars:        testVars(),
		StartedAt:   started,
	}
}
