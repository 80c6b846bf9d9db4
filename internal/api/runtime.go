package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/outpost-ops/conductor/internal/store"
)

type runtimeMonitorResponse struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Medium        string `json:"medium"`
	Target        string `json:"target,omitempty"`
	Status        string `json:"status"`
	Details       string `json:"details,omitempty"`
	LastCheckedAt string `json:"last_checked_at"`
	UpdatedAt     string `json:"updated_at"`
}

type processingStateResponse struct {
	Key        string `json:"key"`
	Processing bool   `json:"processing"`
	Reason     string `json:"reason,omitempty"`
	TimeoutAt  string `json:"timeout_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

type setProcessingRequest struct {
	Key            string `json:"key"`
	Processing     bool   `json:"processing"`
	Reason         string `json:"reason"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type maintenanceTickResponse struct {
	ProbedCount   int    `json:"probed_count"`
	ExecutedCount int    `json:"executed_count"`
	FailSafe      string `json:"fail_safe,omitempty"`
}

func toMonitorResponses(items []store.RuntimeMonitor) []runtimeMonitorResponse {
	responses := make([]runtimeMonitorResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, runtimeMonitorResponse{
			Key:           item.Key,
			Label:         item.Label,
			Medium:        item.Medium,
			Target:        item.Target,
			Status:        item.Status,
			Details:       item.Details,
			LastCheckedAt: item.LastCheckedAt,
			UpdatedAt:     item.UpdatedAt,
		})
	}
	return responses
}

func toProcessingResponse(state store.ProcessingState) processingStateResponse {
	return processingStateResponse{
		Key:        state.Key,
		Processing: state.Processing,
		Reason:     state.Reason,
		TimeoutAt:  state.TimeoutAt,
		UpdatedAt:  state.UpdatedAt,
	}
}

func (s *Server) listRuntimeMonitors(w http.ResponseWriter, r *http.Request) {
	items, err := s.prober.Monitors(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"monitors": toMonitorResponses(items)})
}

func (s *Server) probeRuntime(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.prober.ProbeAll(r.Context(), s.probeTargets(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"monitors": toMonitorResponses(monitors)})
}

func (s *Server) getProcessing(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	state, err := s.watchdog.Processing(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, toProcessingResponse(state))
}

func (s *Server) setProcessing(w http.ResponseWriter, r *http.Request) {
	var req setProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	state, err := s.watchdog.SetProcessing(r.Context(), req.Key, req.Processing, req.Reason, req.TimeoutSeconds, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, toProcessingResponse(state))
}

func (s *Server) runFailSafeTick(w http.ResponseWriter, r *http.Request) {
	reason, err := s.watchdog.FailSafeTick(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"reset": reason != "", "reason": reason})
}

// runMaintenanceTick mirrors what the periodic driver does: probe health,
// fire due schedules, then sweep the fail-safe.
func (s *Server) runMaintenanceTick(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	monitors, err := s.prober.ProbeAll(r.Context(), s.probeTargets(), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result, err := s.scheduler.RunDueSchedules(r.Context(), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	reason, err := s.watchdog.FailSafeTick(r.Context(), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, maintenanceTickResponse{
		ProbedCount:   len(monitors),
		ExecutedCount: result.ExecutedCount,
		FailSafe:      reason,
	})
}
