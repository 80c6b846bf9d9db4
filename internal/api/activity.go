package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/outpost-ops/conductor/internal/events"
	"github.com/outpost-ops/conductor/internal/store"
)

type activityEventResponse struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload"`
	Summary    string `json:"summary"`
	CreatedAt  string `json:"created_at"`
}

func toActivityResponses(items []store.ActivityEvent) []activityEventResponse {
	responses := make([]activityEventResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, activityEventResponse{
			ID:         item.ID,
			EventType:  item.EventType,
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			Payload:    item.Payload,
			Summary:    item.Summary,
			CreatedAt:  item.CreatedAt,
		})
	}
	return responses
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.ActivityLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := s.log.ListGlobal(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"events": toActivityResponses(items)})
}

func (s *Server) listActivityByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")
	items, err := s.log.ByEntity(r.Context(), entityType, entityID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"events": toActivityResponses(items)})
}

func (s *Server) streamActivity(w http.ResponseWriter, r *http.Request) {
	topic := events.NormalizeTopic(r.URL.Query().Get("topic"))
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	eventsChan := s.broker.Subscribe(ctx, topic)
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			sendActivitySSE(w, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendActivitySSE(w http.ResponseWriter, event events.ActivityEvent) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %s\n", event.ID)
	fmt.Fprint(w, "event: activity\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
