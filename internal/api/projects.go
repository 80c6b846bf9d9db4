package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/outpost-ops/conductor/internal/projects"
	"github.com/outpost-ops/conductor/internal/store"
)

type projectResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Specs            string `json:"specs,omitempty"`
	Outcome          string `json:"outcome,omitempty"`
	DefinitionOfDone string `json:"definition_of_done,omitempty"`
	Status           string `json:"status"`
	QueuePosition    int    `json:"queue_position"`
	BlockerReason    string `json:"blocker_reason,omitempty"`
	BlockerDetails   string `json:"blocker_details,omitempty"`
	NextAction       string `json:"next_action,omitempty"`
	LastExecutionAt  string `json:"last_execution_at,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type projectStepResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	StepIndex int    `json:"step_index"`
	Text      string `json:"text"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

type executionStateResponse struct {
	Mode      string `json:"mode"`
	UpdatedAt string `json:"updated_at"`
}

type projectUpsertRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	Outcome          *string `json:"outcome"`
	Specs            *string `json:"specs"`
	DefinitionOfDone *string `json:"definition_of_done"`
	NextAction       *string `json:"next_action"`
}

type blockProjectRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

type tickResponse struct {
	Outcome string `json:"outcome"`
}

func toProjectResponse(project store.Project) projectResponse {
	return projectResponse{
		ID:               project.ID,
		Name:             project.Name,
		Description:      project.Description,
		Specs:            project.Specs,
		Outcome:          project.Outcome,
		DefinitionOfDone: project.DefinitionOfDone,
		Status:           project.Status,
		QueuePosition:    project.QueuePosition,
		BlockerReason:    project.BlockerReason,
		BlockerDetails:   project.BlockerDetails,
		NextAction:       project.NextAction,
		LastExecutionAt:  project.LastExecutionAt,
		CreatedAt:        project.CreatedAt,
		UpdatedAt:        project.UpdatedAt,
	}
}

func toProjectResponses(items []store.Project) []projectResponse {
	responses := make([]projectResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toProjectResponse(item))
	}
	return responses
}

func toProjectStepResponses(items []store.ProjectStep) []projectStepResponse {
	responses := make([]projectStepResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, projectStepResponse{
			ID:        item.ID,
			ProjectID: item.ProjectID,
			StepIndex: item.StepIndex,
			Text:      item.Text,
			Status:    item.Status,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return responses
}

func (s *Server) writeProjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, projects.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, projects.ErrGloballyPaused),
		errors.Is(err, projects.ErrProjectAlreadyActive),
		errors.Is(err, projects.ErrNoActiveProject),
		errors.Is(err, projects.ErrNoQueuedProjects),
		errors.Is(err, projects.ErrEmptySpecs):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectUpsertRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	params := projects.CreateParams{}
	if req.Name != nil {
		params.Name = *req.Name
	}
	if params.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if req.Description != nil {
		params.Description = *req.Description
	}
	if req.Outcome != nil {
		params.Outcome = *req.Outcome
	}
	if req.Specs != nil {
		params.Specs = *req.Specs
	}
	if req.DefinitionOfDone != nil {
		params.DefinitionOfDone = *req.DefinitionOfDone
	}
	project, err := s.projects.Create(r.Context(), params, time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSONStatus(w, toProjectResponse(project), http.StatusCreated)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	items, err := s.projects.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"projects": toProjectResponses(items)})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toProjectResponse(*project))
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var req projectUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	patch := projects.UpdateParams{
		Name:             req.Name,
		Description:      req.Description,
		Outcome:          req.Outcome,
		Specs:            req.Specs,
		DefinitionOfDone: req.DefinitionOfDone,
		NextAction:       req.NextAction,
	}
	project, err := s.projects.Update(r.Context(), chi.URLParam(r, "id"), patch, time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, toProjectResponse(project))
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeProjectError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listProjectQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.projects.ListQueue(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"queue": toProjectResponses(items)})
}

func (s *Server) enqueueProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.Enqueue(r.Context(), chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, toProjectResponse(project))
}

func (s *Server) activateNextProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.ActivateNext(r.Context(), time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, toProjectResponse(project))
}

func (s *Server) blockProject(w http.ResponseWriter, r *http.Request) {
	var req blockProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	project, err := s.projects.SetBlocked(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Details, time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, toProjectResponse(project))
}

func (s *Server) resolveProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.ResolveBlocked(r.Context(), chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, toProjectResponse(project))
}

func (s *Server) deactivateProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.SetInactive(r.Context(), chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, toProjectResponse(project))
}

func (s *Server) buildProjectPlan(w http.ResponseWriter, r *http.Request) {
	steps, err := s.projects.BuildPlan(r.Context(), chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, map[string]any{"steps": toProjectStepResponses(steps)})
}

func (s *Server) listProjectSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.projects.Steps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"steps": toProjectStepResponses(steps)})
}

func (s *Server) runProjectTick(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.projects.RunTick(r.Context(), time.Now().UTC())
	if err != nil {
		s.writeProjectError(w, err)
		return
	}
	writeJSON(w, tickResponse{Outcome: outcome})
}

func (s *Server) getExecutionState(w http.ResponseWriter, r *http.Request) {
	state, err := s.projects.ExecutionState(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, executionStateResponse{Mode: state.Mode, UpdatedAt: state.UpdatedAt})
}

func (s *Server) setExecutionMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	if err := s.projects.SetMode(r.Context(), req.Mode, now); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	state, err := s.projects.ExecutionState(r.Context(), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, executionStateResponse{Mode: state.Mode, UpdatedAt: state.UpdatedAt})
}
