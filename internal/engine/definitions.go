package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/driftflow/driftflow/pkg/driftflow/core"
	"github.com/driftflow/driftflow/pkg/driftflow/definition"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// CreateDefinition validates and stores a new draft. A definition whose name
// already exists becomes the next version of that definition; published
// versions are never overwritten.
func (m *Manager) CreateDefinition(ctx context.Context, req *models.CreateDefinitionRequest) (*domain.WorkflowDefinition, error) {
	graph, err := definition.Parse([]byte(req.Content), req.Format)
	if err != nil {
		return nil, err
	}
	// request fields fill in whatever the content leaves out
	if graph.Name == "" {
		graph.Name = req.Name
	}
	if graph.Description == "" {
		graph.Description = req.Description
	}
	if graph.Trigger == "" {
		graph.Trigger = req.Trigger
	}
	if graph.Schedule == "" {
		graph.Schedule = req.Schedule
	}
	if graph.Version == 0 {
		graph.Version = 1
	}
	if err := definition.Validate(graph, m.registry.Check()); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	version := 1
	existing, err := m.definitions.FindByName(graph.Name)
	switch {
	case err == nil:
		id = existing.ID
		version = existing.Version + 1
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, err
	}

	actor := core.ActorFromContext(ctx)
	now := m.clock.Now()
	def := &domain.WorkflowDefinition{
		ID:          id,
		Name:        graph.Name,
		Description: graph.Description,
		Version:     version,
		Trigger:     graph.Trigger,
		Schedule:    nullString(graph.Schedule),
		Format:      req.Format,
		Content:     req.Content,
		Published:   false,
		Team:        actor.Team,
		CreatedBy:   actor.ID,
		Created:     now,
		Updated:     now,
	}
	if err := m.definitions.Save(def); err != nil {
		return nil, err
	}
	slog.Info("Created definition", "workflowId", id, "name", graph.Name, "version", version, "createdBy", actor.ID)
	return def, nil
}

// ValidateDefinitionContent enumerates every problem in a serialized
// definition. An empty slice means it would publish cleanly.
func (m *Manager) ValidateDefinitionContent(format, content string) []string {
	graph, err := definition.Parse([]byte(content), format)
	if err != nil {
		return []string{err.Error()}
	}
	if graph.Version == 0 {
		graph.Version = 1
	}
	err = definition.Validate(graph, m.registry.Check())
	if err == nil {
		return nil
	}
	var derr *domain.DefinitionError
	if errors.As(err, &derr) {
		msgs := make([]string, 0, len(derr.Errors()))
		for _, e := range derr.Errors() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

// PublishDefinition re-validates the latest draft and marks it published,
// making it the version new runs use. Publishing is idempotent.
func (m *Manager) PublishDefinition(id string) (*domain.WorkflowDefinition, error) {
	def, err := m.definitions.FindLatestByID(id)
	if err != nil {
		return nil, err
	}
	if def.Published {
		return def, nil
	}
	graph, _, err := m.parsedGraph(def)
	if err != nil {
		return nil, err
	}
	if err := definition.Validate(graph, m.registry.Check()); err != nil {
		return nil, err
	}
	if !m.definitions.MarkPublished(def.ID, def.Version) {
		return nil, fmt.Errorf("definition %s version %d could not be published", id, def.Version)
	}
	def.Published = true
	slog.Info("Published definition", "workflowId", def.ID, "name", def.Name, "version", def.Version)
	return def, nil
}

// GetDefinitions lists the latest version of every definition.
func (m *Manager) GetDefinitions() (*[]domain.WorkflowDefinition, error) {
	return m.definitions.FindAll()
}

// GetDefinition returns one definition, the latest version unless a specific
// one is asked for.
func (m *Manager) GetDefinition(id string, version int) (*domain.WorkflowDefinition, error) {
	if version > 0 {
		return m.definitions.FindByIDAndVersion(id, version)
	}
	return m.definitions.FindLatestByID(id)
}
