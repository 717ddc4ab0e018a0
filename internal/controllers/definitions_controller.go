package controllers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/driftflow/driftflow/internal/codec"
	"github.com/driftflow/driftflow/internal/engine"
	"github.com/driftflow/driftflow/pkg/driftflow/domain"
	"github.com/driftflow/driftflow/pkg/driftflow/models"
)

// DefinitionsController holds dependencies for the definition lifecycle
// endpoints: draft, validate, publish, read.
type DefinitionsController struct {
	ActorController
	Manager *engine.Manager
}

func NewDefinitionsController(manager *engine.Manager) *DefinitionsController {
	return &DefinitionsController{Manager: manager}
}

func (c *DefinitionsController) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.CreateDefinitionRequest
	dec := codec.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Format == "" || req.Content == "" {
		http.Error(w, "format and content are required", http.StatusBadRequest)
		return
	}

	def, err := c.Manager.CreateDefinition(r.Context(), &req)
	if err != nil {
		var derr *domain.DefinitionError
		if errors.As(err, &derr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to create definition", "error", err)
		http.Error(w, "failed to create definition", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	codec.NewEncoder(w).Encode(models.CreateDefinitionResponse{ID: def.ID, Version: def.Version})
}

func (c *DefinitionsController) handleValidateDefinition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ValidateDefinitionRequest
	dec := codec.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	problems := c.Manager.ValidateDefinitionContent(req.Format, req.Content)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(models.ValidateDefinitionResponse{
		Valid:  len(problems) == 0,
		Errors: problems,
	})
}

func (c *DefinitionsController) handlePublishDefinition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	def, err := c.Manager.PublishDefinition(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "workflow not found", http.StatusNotFound)
			return
		}
		var derr *domain.DefinitionError
		if errors.As(err, &derr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to publish definition", "workflowId", id, "error", err)
		http.Error(w, "failed to publish definition", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(models.PublishDefinitionResponse{
		ID:        def.ID,
		Version:   def.Version,
		Published: def.Published,
	})
}

func (c *DefinitionsController) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "version is an integer", http.StatusBadRequest)
			return
		}
		version = parsed
	}

	def, err := c.Manager.GetDefinition(id, version)
	if err != nil {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(mapDefinitionToApi(def, true))
}

func (c *DefinitionsController) handleGetDefinitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	defs, err := c.Manager.GetDefinitions()
	if err != nil {
		slog.Error("Failed to list definitions", "error", err)
		http.Error(w, "failed to list workflows", http.StatusInternalServerError)
		return
	}

	results := make([]models.DefinitionApiResponse, 0, len(*defs))
	for i := range *defs {
		// the serialized graph is only returned on single reads
		results = append(results, mapDefinitionToApi(&(*defs)[i], false))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	codec.NewEncoder(w).Encode(results)
}

func mapDefinitionToApi(def *domain.WorkflowDefinition, withContent bool) models.DefinitionApiResponse {
	resp := models.DefinitionApiResponse{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Version:     def.Version,
		Trigger:     def.Trigger,
		Format:      def.Format,
		Published:   def.Published,
		Team:        def.Team,
		CreatedBy:   def.CreatedBy,
		Created:     def.Created,
		Updated:     def.Updated,
	}
	if def.Schedule.Valid {
		resp.Schedule = def.Schedule.String
	}
	if withContent {
		resp.Content = def.Content
	}
	return resp
}
