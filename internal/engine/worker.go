package engine

import (
	"context"
	"log/slog"
)

// Worker pulls claimed executions off the queue and runs them one at a time.
func Worker(ctx context.Context, id int, m *Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case ex := <-m.queue:
			slog.Info("Worker starting execution", "workerId", id, "executionId", ex.ID)
			m.RunExecution(ctx, &ex)
			slog.Info("Worker finished execution", "workerId", id, "executionId", ex.ID)
		}
	}
}
