package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/outpost-ops/conductor/internal/protocols"
	"github.com/outpost-ops/conductor/internal/store"
)

type protocolResponse struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	Trigger                 string   `json:"trigger"`
	Objective               string   `json:"objective,omitempty"`
	DefinitionOfDone        string   `json:"definition_of_done,omitempty"`
	RequiredInputs          []string `json:"required_inputs"`
	Steps                   []string `json:"steps"`
	ApprovalsRequired       bool     `json:"approvals_required"`
	AllowNoInput            bool     `json:"allow_no_input"`
	Active                  bool     `json:"active"`
	ScheduleEnabled         bool     `json:"schedule_enabled"`
	ScheduleMode            string   `json:"schedule_mode,omitempty"`
	ScheduleIntervalMinutes int      `json:"schedule_interval_minutes,omitempty"`
	ScheduleWeekday         string   `json:"schedule_weekday,omitempty"`
	ScheduleTime            string   `json:"schedule_time,omitempty"`
	ScheduleTimezone        string   `json:"schedule_timezone,omitempty"`
	LastScheduledRunAt      string   `json:"last_scheduled_run_at,omitempty"`
	LastScheduledSlot       string   `json:"last_scheduled_slot,omitempty"`
	TemplateCategory        string   `json:"template_category,omitempty"`
	CreatedAt               string   `json:"created_at"`
	UpdatedAt               string   `json:"updated_at"`
}

type protocolRunResponse struct {
	ID         string `json:"id"`
	ProtocolID string `json:"protocol_id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

type protocolRunStepResponse struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	StepIndex int    `json:"step_index"`
	StepText  string `json:"step_text"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type protocolUpsertRequest struct {
	Name                    *string  `json:"name"`
	Trigger                 *string  `json:"trigger"`
	Objective               *string  `json:"objective"`
	DefinitionOfDone        *string  `json:"definition_of_done"`
	RequiredInputs          []string `json:"required_inputs"`
	Steps                   []string `json:"steps"`
	ApprovalsRequired       *bool    `json:"approvals_required"`
	AllowNoInput            *bool    `json:"allow_no_input"`
	ScheduleEnabled         *bool    `json:"schedule_enabled"`
	ScheduleMode            *string  `json:"schedule_mode"`
	ScheduleIntervalMinutes *int     `json:"schedule_interval_minutes"`
	ScheduleWeekday         *string  `json:"schedule_weekday"`
	ScheduleTime            *string  `json:"schedule_time"`
	ScheduleTimezone        *string  `json:"schedule_timezone"`
	TemplateCategory        *string  `json:"template_category"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

type runProtocolRequest struct {
	ApprovalGranted bool     `json:"approval_granted"`
	ProvidedInputs  []string `json:"provided_inputs"`
}

func toProtocolResponse(protocol store.Protocol) protocolResponse {
	inputs := protocol.RequiredInputs
	if inputs == nil {
		inputs = []string{}
	}
	steps := protocol.Steps
	if steps == nil {
		steps = []string{}
	}
	return protocolResponse{
		ID:                      protocol.ID,
		Name:                    protocol.Name,
		Trigger:                 protocol.Trigger,
		Objective:               protocol.Objective,
		DefinitionOfDone:        protocol.DefinitionOfDone,
		RequiredInputs:          inputs,
		Steps:                   steps,
		ApprovalsRequired:       protocol.ApprovalsRequired,
		AllowNoInput:            protocol.AllowNoInput,
		Active:                  protocol.Active,
		ScheduleEnabled:         protocol.ScheduleEnabled,
		ScheduleMode:            protocol.ScheduleMode,
		ScheduleIntervalMinutes: protocol.ScheduleIntervalMinutes,
		ScheduleWeekday:         protocol.ScheduleWeekday,
		ScheduleTime:            protocol.ScheduleTime,
		ScheduleTimezone:        protocol.ScheduleTimezone,
		LastScheduledRunAt:      protocol.LastScheduledRunAt,
		LastScheduledSlot:       protocol.LastScheduledSlot,
		TemplateCategory:        protocol.TemplateCategory,
		CreatedAt:               protocol.CreatedAt,
		UpdatedAt:               protocol.UpdatedAt,
	}
}

func toProtocolRunResponse(run store.ProtocolRun) protocolRunResponse {
	return protocolRunResponse{
		ID:         run.ID,
		ProtocolID: run.ProtocolID,
		Status:     run.Status,
		StartedAt:  run.StartedAt,
		EndedAt:    run.EndedAt,
		Output:     run.Output,
		Error:      run.Error,
	}
}

func (s *Server) writeProtocolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, protocols.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, protocols.ErrProtocolPaused):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) createProtocol(w http.ResponseWriter, r *http.Request) {
	var req protocolUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == nil || *req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	params := protocols.CreateParams{
		Name:           *req.Name,
		RequiredInputs: req.RequiredInputs,
		Steps:          req.Steps,
	}
	if req.Trigger != nil {
		params.Trigger = *req.Trigger
	}
	if req.Objective != nil {
		params.Objective = *req.Objective
	}
	if req.DefinitionOfDone != nil {
		params.DefinitionOfDone = *req.DefinitionOfDone
	}
	if req.ApprovalsRequired != nil {
		params.ApprovalsRequired = *req.ApprovalsRequired
	}
	if req.AllowNoInput != nil {
		params.AllowNoInput = *req.AllowNoInput
	}
	if req.ScheduleEnabled != nil {
		params.ScheduleEnabled = *req.ScheduleEnabled
	}
	if req.ScheduleMode != nil {
		params.ScheduleMode = *req.ScheduleMode
	}
	if req.ScheduleIntervalMinutes != nil {
		params.ScheduleIntervalMinutes = *req.ScheduleIntervalMinutes
	}
	if req.ScheduleWeekday != nil {
		params.ScheduleWeekday = *req.ScheduleWeekday
	}
	if req.ScheduleTime != nil {
		params.ScheduleTime = *req.ScheduleTime
	}
	if req.ScheduleTimezone != nil {
		params.ScheduleTimezone = *req.ScheduleTimezone
	}
	if req.TemplateCategory != nil {
		params.TemplateCategory = *req.TemplateCategory
	}
	protocol, err := s.registry.Create(r.Context(), params, time.Now().UTC())
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	writeJSONStatus(w, toProtocolResponse(protocol), http.StatusCreated)
}

func (s *Server) listProtocols(w http.ResponseWriter, r *http.Request) {
	items, err := s.registry.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	responses := make([]protocolResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toProtocolResponse(item))
	}
	writeJSON(w, map[string]any{"protocols": responses})
}

func (s *Server) getProtocol(w http.ResponseWriter, r *http.Request) {
	protocol, err := s.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if protocol == nil {
		http.Error(w, "protocol not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toProtocolResponse(*protocol))
}

func (s *Server) updateProtocol(w http.ResponseWriter, r *http.Request) {
	var req protocolUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	patch := protocols.UpdateParams{
		Name:                    req.Name,
		Trigger:                 req.Trigger,
		Objective:               req.Objective,
		DefinitionOfDone:        req.DefinitionOfDone,
		RequiredInputs:          req.RequiredInputs,
		Steps:                   req.Steps,
		ApprovalsRequired:       req.ApprovalsRequired,
		AllowNoInput:            req.AllowNoInput,
		ScheduleEnabled:         req.ScheduleEnabled,
		ScheduleMode:            req.ScheduleMode,
		ScheduleIntervalMinutes: req.ScheduleIntervalMinutes,
		ScheduleWeekday:         req.ScheduleWeekday,
		ScheduleTime:            req.ScheduleTime,
		ScheduleTimezone:        req.ScheduleTimezone,
	}
	protocol, err := s.registry.Update(r.Context(), chi.URLParam(r, "id"), patch, time.Now().UTC())
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	writeJSON(w, toProtocolResponse(protocol))
}

func (s *Server) deleteProtocol(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Remove(r.Context(), chi.URLParam(r, "id"), time.Now().UTC()); err != nil {
		s.writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setProtocolActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := s.registry.SetActive(r.Context(), chi.URLParam(r, "id"), req.Active, time.Now().UTC()); err != nil {
		s.writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runProtocol(w http.ResponseWriter, r *http.Request) {
	var req runProtocolRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	run, err := s.runs.Run(r.Context(), chi.URLParam(r, "id"), protocols.RunParams{
		ApprovalGranted: req.ApprovalGranted,
		ProvidedInputs:  req.ProvidedInputs,
		Source:          protocols.SourceManual,
	}, time.Now().UTC())
	if err != nil {
		s.writeProtocolError(w, err)
		return
	}
	writeJSON(w, toProtocolRunResponse(run))
}

func (s *Server) seedTemplateProtocols(w http.ResponseWriter, r *http.Request) {
	created, err := s.registry.EnsureTemplates(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"created": created})
}

func (s *Server) runDueProtocols(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.RunDueSchedules(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"executed_count": result.ExecutedCount,
		"executed":       result.Executed,
	})
}

func (s *Server) listProtocolRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.ListRuns(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	responses := make([]protocolRunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, toProtocolRunResponse(run))
	}
	writeJSON(w, map[string]any{"runs": responses})
}

func (s *Server) getProtocolRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetProtocolRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toProtocolRunResponse(*run))
}

func (s *Server) listProtocolRunSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.runs.RunSteps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	responses := make([]protocolRunStepResponse, 0, len(steps))
	for _, step := range steps {
		responses = append(responses, protocolRunStepResponse{
			ID:        step.ID,
			RunID:     step.RunID,
			StepIndex: step.StepIndex,
			StepText:  step.StepText,
			Status:    step.Status,
			StartedAt: step.StartedAt,
			EndedAt:   step.EndedAt,
		})
	}
	writeJSON(w, map[string]any{"steps": responses})
}

func (s *Server) protocolAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.runs.Analytics(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, analytics)
}
