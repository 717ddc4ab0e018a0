package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/pkg/driftflow/core"
)

// ScheduledActor is the identity recorded on runs the cron service starts.
const ScheduledActor = "system:scheduler"

const reloadInterval = time.Minute

// RunStarter is the slice of the engine manager the scheduler needs.
type RunStarter interface {
	StartExecution(ctx context.Context, workflowID string, input map[string]any) (string, error)
}

// Service keeps one cron entry per published scheduled definition and starts
// a run each time an entry fires. The schedule table is re-read from the
// database on an interval, so a publish on any engine instance is picked up
// here without coordination.
type Service struct {
	starter     RunStarter
	definitions engine.DefinitionStore

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	id       cron.EntryID
	schedule string
	version  int
}

func New(starter RunStarter, definitions engine.DefinitionStore) *Service {
	return &Service{
		starter:     starter,
		definitions: definitions,
		cron:        cron.New(),
		entries:     make(map[string]scheduledEntry),
	}
}

// Start loads the schedule table and blocks until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.Reload()
	s.cron.Start()
	slog.Info("Scheduler started", "reloadInterval", reloadInterval.String())

	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			return
		case <-ticker.C:
			s.Reload()
		}
	}
}

// Reload syncs cron entries with the published scheduled definitions. New
// definitions gain an entry, changed schedules are replaced, definitions
// whose latest published version is no longer scheduled lose theirs.
func (s *Service) Reload() {
	defs, err := s.definitions.FindPublishedScheduled()
	if err != nil {
		slog.Error("Failed to load scheduled definitions", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(*defs))
	for _, def := range *defs {
		seen[def.ID] = true
		schedule := def.Schedule.String
		current, ok := s.entries[def.ID]
		if ok && current.schedule == schedule && current.version == def.Version {
			continue
		}
		if ok {
			s.cron.Remove(current.id)
		}
		workflowID := def.ID
		entryID, err := s.cron.AddFunc(schedule, func() { s.fire(workflowID) })
		if err != nil {
			slog.Error("Failed to schedule definition",
				"workflowId", def.ID, "schedule", schedule, "error", err)
			continue
		}
		s.entries[def.ID] = scheduledEntry{id: entryID, schedule: schedule, version: def.Version}
		slog.Info("Scheduled definition",
			"workflowId", def.ID, "version", def.Version, "schedule", schedule)
	}
	for id, entry := range s.entries {
		if !seen[id] {
			s.cron.Remove(entry.id)
			delete(s.entries, id)
			slog.Info("Unscheduled definition", "workflowId", id)
		}
	}
}

func (s *Service) fire(workflowID string) {
	ctx := core.WithActor(context.Background(), core.Actor{ID: ScheduledActor})
	executionID, err := s.starter.StartExecution(ctx, workflowID, nil)
	if err != nil {
		slog.Error("Failed to start scheduled execution", "workflowId", workflowID, "error", err)
		return
	}
	slog.Info("Started scheduled execution", "workflowId", workflowID, "executionId", executionID)
}
