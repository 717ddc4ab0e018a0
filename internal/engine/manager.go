package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftflow/driftflow/internal/config"
	"github.com/driftflow/driftflow/internal/nodes"
	"github.com/driftflow/driftflow/internal/secrets"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
)

// Manager owns the run lifecycle: it polls the database for due executions,
// claims them for this engine instance and hands them to the worker pool.
// All coordination between instances happens through the database; the only
// in-process state is the claim queue and the parsed-definition cache.
type Manager struct {
	executions     ExecutionStore
	nodeExecutions NodeExecutionStore
	approvals      ApprovalStore
	definitions    DefinitionStore
	instances      EngineInstanceStore

	registry *nodes.Registry
	box      *secrets.Box
	clock    core.Clock

	engineID  int64
	batchSize int
	queue     chan domain.WorkflowExecution
	wakeup    chan struct{}

	graphMu sync.RWMutex
	graphs  map[string]*cachedGraph
}

type cachedGraph struct {
	graph *definition.Graph
	order []*definition.Node
}

func NewManager(
	executions ExecutionStore,
	nodeExecutions NodeExecutionStore,
	approvals ApprovalStore,
	definitions DefinitionStore,
	instances EngineInstanceStore,
	registry *nodes.Registry,
	box *secrets.Box,
	clock core.Clock,
) *Manager {
	batchSize := config.GetSystemSettingInteger(config.ENGINE_BATCH_SIZE)
	return &Manager{
		executions:     executions,
		nodeExecutions: nodeExecutions,
		approvals:      approvals,
		definitions:    definitions,
		instances:      instances,
		registry:       registry,
		box:            box,
		clock:          clock,
		batchSize:      batchSize,
		queue:          make(chan domain.WorkflowExecution, batchSize*2),
		wakeup:         make(chan struct{}, 1),
	}
}

// Registry exposes the node executor registry, used by the definition
// validation path.
func (m *Manager) Registry() *nodes.Registry {
	return m.registry
}

// StartEngine registers this instance, launches the repair service and the
// worker pool, then polls for due executions until the context is cancelled.
// A tick or a Wakeup triggers one poll; anything claimed goes on the queue.
func (m *Manager) StartEngine(ctx context.Context, pollInterval time.Duration) {
	slog.Info("Starting workflow engine", "pollInterval", pollInterval)

	m.registerEngineInstance(ctx)
	go m.startExecutionRepairService(ctx)

	workerCount := config.GetSystemSettingInteger(config.ENGINE_WORKER_SIZE)
	for i := 0; i < workerCount; i++ {
		go Worker(ctx, i, m)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping workflow engine")
			return
		case <-ticker.C:
			m.pollAndRunExecutions()
		case <-m.wakeup:
			m.pollAndRunExecutions()
		}
	}
}

// Wakeup nudges the poll loop without waiting for the next tick. It never
// blocks; a pending nudge is enough.
func (m *Manager) Wakeup() {
	select {
	case m.wakeup <- struct{}{}:
	default:
	}
}

func (m *Manager) pollAndRunExecutions() {
	if len(m.queue) >= m.batchSize {
		slog.Warn("Execution queue is full, skipping database poll")
		return
	}
	pending, err := m.executions.FindPendingExecutions(m.batchSize)
	if err != nil {
		slog.Error("Error finding pending executions", "error", err)
		return
	}
	for _, ex := range *pending {
		// the claim can lose against another instance; losing is fine
		if m.executions.MarkExecutionAsScheduled(ex.ID, m.engineID, ex.Modified) {
			slog.Info("Claimed execution", "executionId", ex.ID, "workflowId", ex.WorkflowID)
			m.queue <- ex
		}
	}
}

// registerEngineInstance writes this instance's heartbeat row and keeps
// last_active fresh so other instances can tell a live engine from a dead
// one.
func (m *Manager) registerEngineInstance(ctx context.Context) {
	name, err := os.Hostname()
	if err != nil {
		name = "engine-" + uuid.NewString()
		slog.Warn("Could not determine hostname, using generated name", "name", name)
	}
	now := m.clock.Now()
	id, err := m.instances.Save(&domain.EngineInstance{Name: name, Started: now, LastActive: now})
	if err != nil {
		slog.Error("Failed to register engine instance", "error", err)
		return
	}
	m.engineID = id
	slog.Info("Registered engine instance", "engineId", id, "name", name)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.instances.UpdateLastActive(id, m.clock.Now()); err != nil {
					slog.Error("Failed to update engine heartbeat", "engineId", id, "error", err)
				}
			}
		}
	}()
}

// startExecutionRepairService periodically releases runs claimed by engines
// that stopped heartbeating, so another instance can pick them up.
func (m *Manager) startExecutionRepairService(ctx context.Context) {
	interval, err := time.ParseDuration(config.GetSystemSettingString(config.ENGINE_STUCK_RUNS_INTERVAL))
	if err != nil {
		slog.Error("Invalid stuck run check interval, using 60s", "error", err)
		interval = 60 * time.Second
	}
	repairAfter := config.GetSystemSettingString(config.ENGINE_STUCK_RUNS_REPAIR_AFTER_MINUTES)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := m.executions.FindStuckExecutions(repairAfter, m.batchSize)
			if err != nil {
				slog.Error("Error finding stuck executions", "error", err)
				continue
			}
			released := 0
			for _, ex := range *stuck {
				if m.executions.ReleaseExecutionByModified(ex.ID, ex.Modified) {
					slog.Warn("Released stuck execution", "executionId", ex.ID, "workflowId", ex.WorkflowID, "engineId", ex.EngineID.Int64)
					released++
				}
			}
			if released > 0 {
				m.Wakeup()
			}
		}
	}
}
