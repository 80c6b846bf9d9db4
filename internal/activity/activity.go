package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outpost-ops/conductor/internal/events"
	"github.com/outpost-ops/conductor/internal/store"
)

// Log is the append-only recorder of domain events. Every mutating operation
// elsewhere owns writing its own entries here, inline with its state change.
type Log struct {
	store  store.Store
	broker Broker
}

type Broker interface {
	Publish(event events.ActivityEvent)
}

func NewLog(st store.Store, broker Broker) *Log {
	return &Log{store: st, broker: broker}
}

// Append records one immutable event. The human-readable summary is derived
// from the event type and payload; unknown types fall back to a generic tag.
func (l *Log) Append(ctx context.Context, eventType string, entityType string, entityID string, payload map[string]any, now time.Time) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal activity payload: %w", err)
	}
	event := store.ActivityEvent{
		ID:         uuid.NewString(),
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    string(encoded),
		Summary:    SummaryFor(eventType, string(encoded)),
		CreatedAt:  now.UTC().Format(time.RFC3339Nano),
	}
	if err := l.store.AppendActivityEvent(ctx, event); err != nil {
		return "", err
	}
	if l.broker != nil {
		l.broker.Publish(events.ActivityEvent{
			ID:         event.ID,
			EventType:  event.EventType,
			EntityType: event.EntityType,
			EntityID:   event.EntityID,
			Payload:    event.Payload,
			Summary:    event.Summary,
			CreatedAt:  event.CreatedAt,
		})
	}
	return event.ID, nil
}

func (l *Log) ListGlobal(ctx context.Context, limit int) ([]store.ActivityEvent, error) {
	return l.store.ListActivityEvents(ctx, limit)
}

func (l *Log) ByEntity(ctx context.Context, entityType string, entityID string) ([]store.ActivityEvent, error) {
	return l.store.ListActivityEventsByEntity(ctx, entityType, entityID)
}

// SummaryFor is a pure lookup from event type to display text.
func SummaryFor(eventType string, payload string) string {
	fields := map[string]string{}
	raw := map[string]any{}
	if err := json.Unmarshal([]byte(payload), &raw); err == nil {
		for key, value := range raw {
			if text, ok := value.(string); ok {
				fields[key] = text
			}
		}
	}
	pick := func(keys ...string) string {
		for _, key := range keys {
			if fields[key] != "" {
				return fields[key]
			}
		}
		return ""
	}
	switch eventType {
	case "project_created":
		return "Project created: " + orDefault(pick("name"), "project")
	case "project_specs_updated":
		return "Project specs updated: " + orDefault(pick("projectId"), "project")
	case "project_queued":
		return "Project queued"
	case "project_activated":
		return "Project activated"
	case "project_paused":
		return "Project returned to queue: " + orDefault(pick("reason"), "paused")
	case "project_blocked":
		return "Project blocked: " + orDefault(pick("blockerReason"), "unknown")
	case "project_unblocked":
		return "Project unblocked"
	case "project_deactivated":
		return "Project deactivated"
	case "project_plan_built":
		return "Project plan built"
	case "project_tick_executed":
		return "Project step executed: " + orDefault(pick("step"), "step")
	case "project_completed":
		return "Project completed"
	case "protocol_created":
		return "Protocol created: " + orDefault(pick("name"), "protocol")
	case "protocol_updated":
		return "Protocol updated: " + orDefault(pick("protocolId"), "protocol")
	case "protocol_paused":
		return "Protocol paused"
	case "protocol_resumed":
		return "Protocol resumed"
	case "protocol_deleted":
		return "Protocol deleted: " + orDefault(pick("name"), "protocol")
	case "protocol_templates_seeded":
		return "Protocol templates seeded"
	case "protocol_run_started":
		return "Protocol run started"
	case "protocol_run_blocked":
		return "Protocol run blocked: " + orDefault(pick("reason"), "gated")
	case "protocol_run_completed":
		return "Protocol run completed"
	case "protocol_schedule_skipped":
		return "Protocol schedule skipped: " + orDefault(pick("reason"), "gated")
	case "processing_reset":
		return "Processing flag reset: " + orDefault(pick("reason"), "failsafe")
	default:
		return "Activity: " + eventType
	}
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
